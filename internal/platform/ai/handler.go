package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medportal/portal/internal/platform/metrics"
)

// maxImageBytes bounds a decoded inline image.
const maxImageBytes = 4 << 20

type Handler struct {
	gen     Generator
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewHandler(gen Generator, timeout time.Duration, m *metrics.Metrics) *Handler {
	return &Handler{gen: gen, timeout: timeout, metrics: m}
}

// RegisterRoutes mounts the insight endpoint. Any authenticated role may call it.
func (h *Handler) RegisterRoutes(api *echo.Group, requireAuth echo.MiddlewareFunc) {
	api.POST("/ai/insights", h.Insights, requireAuth)
}

type insightRequest struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

type insightResponse struct {
	Text string `json:"text"`
}

func (h *Handler) Insights(c echo.Context) error {
	var req insightRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	var images []Image
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(req.Image))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "image must be base64 encoded")
		}
		if len(data) > maxImageBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
		}
		images = append(images, Image{MIMEType: req.MIMEType, Data: data})
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	text, err := h.gen.Generate(ctx, req.Prompt, images...)
	h.metrics.RecordAIRequest("insight", err == nil)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, insightResponse{Text: text})
}

// HTTPError maps a Generator or parsing failure to the response clients see.
func HTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrNotConfigured.Error())
	case errors.Is(err, ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, ErrQuotaExceeded.Error())
	case errors.Is(err, ErrInvalidFormat):
		return echo.NewHTTPError(http.StatusBadGateway, ErrInvalidFormat.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "AI service timed out")
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "AI service request failed")
	}
}

// stripDataURL drops a "data:image/png;base64," prefix if present.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
