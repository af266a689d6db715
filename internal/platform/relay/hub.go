package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single connected foreground context (a browser tab or mobile
// shell) belonging to one patient.
type Client struct {
	ID        string
	PatientID uuid.UUID
	Send      chan []byte
	conn      Conn
}

// Hub tracks connected foreground contexts keyed by patient. All operations
// are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[*Client]struct{})}
}

// Register adds a client under its patient.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.PatientID] == nil {
		h.clients[client.PatientID] = make(map[*Client]struct{})
	}
	h.clients[client.PatientID][client] = struct{}{}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.PatientID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.PatientID)
	}
	close(client.Send)
}

// BroadcastToPatient sends a message to every foreground context of the
// given patient and returns how many received it.
func (h *Hub) BroadcastToPatient(patientID uuid.UUID, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[patientID] {
		select {
		case client.Send <- data:
			delivered++
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
	return delivered
}

// PlayCue broadcasts one play_alarm_sound beat to a patient's foreground
// contexts.
func (h *Hub) PlayCue(patientID, doseID uuid.UUID) {
	h.BroadcastToPatient(patientID, Message{
		Type:      TypePlayAlarmSound,
		DoseID:    doseID,
		Timestamp: time.Now(),
	})
}

// ConnectedPatients returns the patients that currently have at least one
// foreground context attached.
func (h *Hub) ConnectedPatients() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of foreground contexts for a patient.
func (h *Hub) ClientCount(patientID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[patientID])
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// ClientMessageHandler receives inbound messages from foreground contexts.
type ClientMessageHandler interface {
	HandleClientMessage(patientID uuid.UUID, msg Message)
}

// NotificationGateway is the relay surface the platform shell reports
// notification button presses and closures into.
type NotificationGateway interface {
	HandleNotificationAction(action string, doseID uuid.UUID)
	NotificationClosed(doseID uuid.UUID)
}

// Handler upgrades WebSocket connections and exposes the notification
// callback endpoints, routing both into the relay.
type Handler struct {
	hub           *Hub
	inbound       ClientMessageHandler
	notifications NotificationGateway
	logger        zerolog.Logger
}

func NewHandler(hub *Hub, inbound ClientMessageHandler, notifications NotificationGateway, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, inbound: inbound, notifications: notifications, logger: logger}
}

// RegisterRoutes registers the WebSocket endpoint and the notification
// callback endpoints on the provided group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/reminders/ws", h.HandleConnect)
	g.POST("/notifications/:doseID/action", h.HandleNotificationAction)
	g.POST("/notifications/:doseID/closed", h.HandleNotificationClosed)
}

type notificationActionRequest struct {
	Action string `json:"action"`
}

// HandleNotificationAction receives a notification button press from the
// platform shell and hands it to the relay.
func (h *Handler) HandleNotificationAction(c echo.Context) error {
	doseID, err := uuid.Parse(c.Param("doseID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dose id")
	}
	var req notificationActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Action != ActionConfirmTaken && req.Action != ActionDismiss {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown notification action")
	}

	h.notifications.HandleNotificationAction(req.Action, doseID)
	return c.NoContent(http.StatusAccepted)
}

// HandleNotificationClosed receives a report that the notification was
// dismissed by other means. The relay treats it as an implicit stop.
func (h *Handler) HandleNotificationClosed(c echo.Context) error {
	doseID, err := uuid.Parse(c.Param("doseID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dose id")
	}
	h.notifications.NotificationClosed(doseID)
	return c.NoContent(http.StatusNoContent)
}

// HandleConnect upgrades the connection, registers the client under the
// authenticated patient, and starts the read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())
	if patientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing patient identity")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Send:      make(chan []byte, 256),
		conn:      &gorillaConnAdapter{ws},
	}
	h.hub.Register(client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("relay: dropping malformed client message")
			continue
		}
		h.inbound.HandleClientMessage(client.PatientID, msg)
	}
}

func (h *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
