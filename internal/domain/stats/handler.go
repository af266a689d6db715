package stats

import (
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
	api.GET("/stats/adherence", h.Adherence, auth.RequireRole("patient", "admin"))
	api.GET("/stats/platform", h.Platform, auth.RequireRole("admin"))
}

// Adherence handles GET /stats/adherence?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Defaults to the last 7 days when the range is omitted.
func (h *Handler) Adherence(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.PatientIDFromContext(ctx)
	if patientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing patient identity")
	}

	to := time.Now()
	from := to.AddDate(0, 0, -6)
	var err error
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, time.Local); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.ParseInLocation("2006-01-02", v, time.Local); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
	}

	report, err := h.svc.PatientAdherence(ctx, patientID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Platform(c echo.Context) error {
	report, err := h.svc.Platform(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute platform stats")
	}
	return c.JSON(http.StatusOK, report)
}
