package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /appointments on api. Every route needs a token.
func (h *Handler) RegisterRoutes(api *echo.Group, requireAuth echo.MiddlewareFunc) {
	g := api.Group("/appointments", requireAuth)

	patient := g.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/book", h.Book)
	patient.GET("/my-appointments", h.MyAppointments)
	patient.DELETE("/cancel/:id", h.Cancel)

	staff := g.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospital))
	staff.GET("/doctor/:doctorId", h.ForDoctor)

	readers := g.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleHospital))
	readers.GET("/:id", h.Get)
	readers.GET("/:id/history", h.History)

	doctor := g.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.PATCH("/:id/status", h.UpdateStatus)
}

func viewer(c echo.Context) (Viewer, error) {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return Viewer{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	return Viewer{ID: id, Role: auth.RoleFromContext(ctx)}, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Book(c.Request().Context(), v.ID, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) MyAppointments(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	list, err := h.svc.MyAppointments(c.Request().Context(), v.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Cancel(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), v.ID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Get(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.svc.Get(c.Request().Context(), v, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) History(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	hist, err := h.svc.History(c.Request().Context(), v, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req StatusUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), v.ID, id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ForDoctor(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return err
	}
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	list, err := h.svc.ForDoctor(c.Request().Context(), v, doctorID, c.QueryParam("status"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}
