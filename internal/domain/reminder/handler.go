package reminder

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/intake"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reminders", auth.RequireRole("patient", "admin"))
	g.GET("/session", h.GetSession)
	g.POST("/confirm", h.Confirm)
	g.POST("/dismiss", h.Dismiss)
}

// GetSession returns the active alert, or 204 when none is open.
func (h *Handler) GetSession(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())
	session := h.engine.ManagerFor(patientID).Current()
	if session == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, session)
}

type confirmRequest struct {
	Note *string `json:"note,omitempty"`
}

// Confirm resolves the active alert as taken via the intake reconciler.
func (h *Handler) Confirm(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())

	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.engine.ManagerFor(patientID).Confirm(c.Request().Context(), req.Note)
	switch {
	case errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusNotFound, "no active alert")
	case errors.Is(err, intake.ErrOutOfStock):
		return echo.NewHTTPError(http.StatusConflict, "out of stock: restock before marking as taken")
	case errors.Is(err, intake.ErrConfirmInFlight):
		return echo.NewHTTPError(http.StatusConflict, "a confirmation is already being processed")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to log medication")
	}
	return c.JSON(http.StatusCreated, entry)
}

type dismissRequest struct {
	// ViaNotification marks dismissals arriving through the system
	// notification path, which bypasses the sounding gate.
	ViaNotification bool `json:"via_notification"`
}

// Dismiss closes the active alert without logging an intake.
func (h *Handler) Dismiss(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())

	var req dismissRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := h.engine.ManagerFor(patientID).Dismiss(req.ViaNotification)
	switch {
	case errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusNotFound, "no active alert")
	case errors.Is(err, ErrDismissWhileSounding):
		return echo.NewHTTPError(http.StatusConflict, "alert is still sounding")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to dismiss alert")
	}
	return c.NoContent(http.StatusNoContent)
}
