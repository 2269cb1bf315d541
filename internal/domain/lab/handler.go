package lab

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medportal/portal/internal/platform/ai"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the test catalog and patient booking routes on root
// and the lab workspace on api under /lab.
func (h *Handler) RegisterRoutes(root, api *echo.Group, requireAuth echo.MiddlewareFunc) {
	root.GET("/tests", h.ListTests)
	root.GET("/tests/top-booked", h.TopBooked)
	root.GET("/test-details/:id", h.GetTest)

	// root has no prefix, so guards are attached per route rather than through
	// a group that would also claim every unmatched path.
	root.POST("/tests", h.CreateTest, requireAuth, auth.RequireRole(auth.RoleLab))
	patientOnly := []echo.MiddlewareFunc{requireAuth, auth.RequireRole(auth.RolePatient)}
	root.POST("/test-details/:id/book", h.Book, patientOnly...)
	root.GET("/test-report/:userId/booked-tests", h.BookedTests, patientOnly...)

	lg := api.Group("/lab")
	lg.POST("/signup", h.Signup)
	lg.POST("/login", h.Login)

	lg.GET("/test-details/:testId", h.TestDetails, requireAuth, auth.RequireRole(auth.RoleLab, auth.RolePatient))

	owner := lg.Group("", requireAuth, auth.RequireRole(auth.RoleLab))
	owner.GET("/pending-bookings/:labId", h.PendingBookings)
	owner.GET("/lab-tests/:labId", h.LabTests)
	owner.POST("/booking-response/:bookingId", h.Respond)
	owner.PATCH("/update-test/:testId", h.UpdateTest)
	owner.POST("/ai-draft/:testId", h.AIDraft)
	owner.POST("/generate-report/:testId", h.GenerateReport)
	owner.GET("/settings/profile", h.GetProfile)
	owner.PUT("/settings/profile", h.UpdateProfile)
	owner.GET("/settings/laboratory-info", h.GetLabInfo)
	owner.PUT("/settings/laboratory-info", h.UpdateLabInfo)
}

func toHTTP(err error) error {
	if errors.Is(err, ErrDraftFailed) {
		return ai.HTTPError(err)
	}
	return apperr.ToHTTP(err)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	return id, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// callerAndPath resolves the authenticated id and one uuid path parameter.
func callerAndPath(c echo.Context, name string) (uuid.UUID, uuid.UUID, error) {
	caller, err := callerID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := pathID(c, name)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return caller, id, nil
}

func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Signup(c.Request().Context(), req)
	if err != nil {
		return toHTTP(err)
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
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListTests(c echo.Context) error {
	list, err := h.svc.ListTests(c.Request().Context())
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) TopBooked(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.svc.TopBooked(c.Request().Context(), limit)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetTest(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTest(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTest(c echo.Context) error {
	labID, err := callerID(c)
	if err != nil {
		return err
	}
	var req NewTest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.CreateTest(c.Request().Context(), labID, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Book(c echo.Context) error {
	patientID, testID, err := callerAndPath(c, "id")
	if err != nil {
		return err
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.Book(c.Request().Context(), patientID, testID, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) BookedTests(c echo.Context) error {
	caller, userID, err := callerAndPath(c, "userId")
	if err != nil {
		return err
	}
	list, err := h.svc.BookedTests(c.Request().Context(), caller, userID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) PendingBookings(c echo.Context) error {
	labID, pathLab, err := callerAndPath(c, "labId")
	if err != nil {
		return err
	}
	list, err := h.svc.PendingBookings(c.Request().Context(), labID, pathLab)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) LabTests(c echo.Context) error {
	labID, pathLab, err := callerAndPath(c, "labId")
	if err != nil {
		return err
	}
	list, err := h.svc.LabTests(c.Request().Context(), labID, pathLab)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Respond(c echo.Context) error {
	labID, bookingID, err := callerAndPath(c, "bookingId")
	if err != nil {
		return err
	}
	var req BookingResponse
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.Respond(c.Request().Context(), labID, bookingID, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateTest(c echo.Context) error {
	labID, bookingID, err := callerAndPath(c, "testId")
	if err != nil {
		return err
	}
	var upd TestUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.UpdateTest(c.Request().Context(), labID, bookingID, upd)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) TestDetails(c echo.Context) error {
	caller, bookingID, err := callerAndPath(c, "testId")
	if err != nil {
		return err
	}
	role := auth.RoleFromContext(c.Request().Context())
	d, err := h.svc.TestDetails(c.Request().Context(), caller, role, bookingID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) AIDraft(c echo.Context) error {
	labID, bookingID, err := callerAndPath(c, "testId")
	if err != nil {
		return err
	}
	var req AIDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.AIDraft(c.Request().Context(), labID, bookingID, req.Prompt)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GenerateReport(c echo.Context) error {
	labID, bookingID, err := callerAndPath(c, "testId")
	if err != nil {
		return err
	}
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.GenerateReport(c.Request().Context(), labID, bookingID, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetProfile(c echo.Context) error {
	labID, err := callerID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), labID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	labID, err := callerID(c)
	if err != nil {
		return err
	}
	var p ProfileSettings
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.UpdateProfile(c.Request().Context(), labID, p)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetLabInfo(c echo.Context) error {
	labID, err := callerID(c)
	if err != nil {
		return err
	}
	info, err := h.svc.GetLabInfo(c.Request().Context(), labID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) UpdateLabInfo(c echo.Context) error {
	labID, err := callerID(c)
	if err != nil {
		return err
	}
	var info LabInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.UpdateLabInfo(c.Request().Context(), labID, info)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
