package hospital

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /hospital and /doctors on api (the /api group).
func (h *Handler) RegisterRoutes(api *echo.Group, requireAuth echo.MiddlewareFunc) {
	hg := api.Group("/hospital")
	hg.POST("/signup", h.Signup)
	hg.POST("/login", h.Login)

	owner := hg.Group("", requireAuth, auth.RequireRole(auth.RoleHospital))
	owner.GET("/verify", h.Verify)
	owner.PUT("/update-profile", h.UpdateProfile)
	owner.GET("/settings", h.GetSettings)
	owner.PUT("/settings", h.UpdateSettings)
	owner.GET("/doctors", h.ListDoctors)
	owner.POST("/doctors", h.AddDoctor)
	owner.DELETE("/doctors/:id", h.DeleteDoctor)
	owner.GET("/patients", h.Patients)
	owner.GET("/billing", h.Billing)

	dg := api.Group("/doctors")
	dg.POST("/login", h.DoctorLogin)
	dg.GET("", h.ListDoctorsPublic)
	dg.GET("/hospital/:id", h.DoctorsByHospital)
	dg.GET("/:id", h.GetDoctor)
}

func currentHospitalID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	return id, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Signup(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Verify succeeds only while the token is valid and the hospital still exists.
func (h *Handler) Verify(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	hosp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "hospital not found")
		}
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"valid": true, "hospital": hosp})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	hosp, err := h.svc.UpdateProfile(c.Request().Context(), id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) GetSettings(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetSettings(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	var st Settings
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.UpdateSettings(c.Request().Context(), id, st)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDoctors(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) AddDoctor(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	var req NewDoctor
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.AddDoctor(c.Request().Context(), id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	hospitalID, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), hospitalID, doctorID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Patients(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Patients(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Billing(c echo.Context) error {
	id, err := currentHospitalID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.Billing(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DoctorLogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.DoctorLogin(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListDoctorsPublic(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctorsPublic(c.Request().Context(), c.QueryParam("specialization"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DoctorsByHospital(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDoctors(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, docs)
}
