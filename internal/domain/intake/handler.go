package intake

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("patient", "admin"))
	g.POST("/intake/confirm", h.Confirm)
	g.GET("/intake/logs", h.ListLogs)
	g.GET("/intake/logs/today", h.ListToday)
}

type confirmRequest struct {
	MedicineID    uuid.UUID `json:"medicine_id"`
	ScheduledTime string    `json:"scheduled_time"`
	Note          *string   `json:"note,omitempty"`
}

// Confirm handles POST /intake/confirm. Both the foreground confirmation
// dialog and clients reacting to a relay confirm_taken message land here, so
// every confirmation runs the same reconciliation.
func (h *Handler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MedicineID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "medicine_id is required")
	}

	patientID := auth.PatientIDFromContext(c.Request().Context())
	entry, err := h.svc.ConfirmIntake(c.Request().Context(), patientID, req.MedicineID, req.ScheduledTime, req.Note)
	switch {
	case errors.Is(err, ErrOutOfStock):
		return echo.NewHTTPError(http.StatusConflict, "out of stock: restock before marking as taken")
	case errors.Is(err, ErrConfirmInFlight):
		return echo.NewHTTPError(http.StatusConflict, "confirmation already in progress")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to log medication")
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListToday(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())
	entries, err := h.svc.ListToday(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListLogs(c echo.Context) error {
	patientID := auth.PatientIDFromContext(c.Request().Context())
	from, err := time.Parse("2006-01-02", c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
	}
	entries, err := h.svc.ListRange(c.Request().Context(), patientID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}
