package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type stubGenerator struct {
	text   string
	err    error
	prompt string
	images []Image
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, images ...Image) (string, error) {
	s.prompt = prompt
	s.images = images
	return s.text, s.err
}

func postInsight(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/ai/insights", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.Insights(c)
}

func TestInsights_ReturnsText(t *testing.T) {
	gen := &stubGenerator{text: "Your cholesterol is within range."}
	h := NewHandler(gen, 0, nil)

	rec, err := postInsight(t, h, `{"prompt":"explain my report"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp insightResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Text != gen.text {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if gen.prompt != "explain my report" {
		t.Errorf("prompt not forwarded: %q", gen.prompt)
	}
}

func TestInsights_ForwardsImage(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	h := NewHandler(gen, 0, nil)
	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})

	body := fmt.Sprintf(`{"prompt":"read this","image":"data:image/png;base64,%s","mimeType":"image/png"}`, img)
	if _, err := postInsight(t, h, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.images) != 1 || len(gen.images[0].Data) != 3 {
		t.Fatalf("expected one decoded image, got %+v", gen.images)
	}
	if gen.images[0].format() != "png" {
		t.Errorf("expected png format, got %s", gen.images[0].format())
	}
}

func TestInsights_Validation(t *testing.T) {
	h := NewHandler(&stubGenerator{}, 0, nil)
	for _, body := range []string{`{"prompt":"  "}`, `{"prompt":"x","image":"%%%"}`} {
		_, err := postInsight(t, h, body)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %v", body, err)
		}
	}
}

func TestInsights_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not configured", ErrNotConfigured, http.StatusServiceUnavailable},
		{"quota", fmt.Errorf("%w: googleapi 429", ErrQuotaExceeded), http.StatusTooManyRequests},
		{"upstream", errors.New("connection reset"), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&stubGenerator{err: tt.err}, 0, nil)
			_, err := postInsight(t, h, `{"prompt":"hi"}`)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, httpErr.Code)
			}
		})
	}
}

func TestQuotaMessage(t *testing.T) {
	err := HTTPError(ErrQuotaExceeded)
	if err.Message != "AI quota exceeded, try again later" {
		t.Errorf("unexpected message %v", err.Message)
	}
}

func TestIsQuotaError(t *testing.T) {
	for _, msg := range []string{
		"googleapi: Error 429: Resource has been exhausted (e.g. check quota).",
		"rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED",
		"You exceeded your current quota",
	} {
		if !isQuotaError(errors.New(msg)) {
			t.Errorf("expected %q to be a quota error", msg)
		}
	}
	if isQuotaError(errors.New("invalid api key")) {
		t.Error("auth failure is not a quota error")
	}
}

func TestDisabledGenerator(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), "hi")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNewGeminiGenerator_RequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", "gemini-1.5-flash", zerolog.Nop())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCollectText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			nil,
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("hello "), genai.Blob{MIMEType: "image/png"}, genai.Text("world")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	if got := collectText(resp); got != "hello world" {
		t.Errorf("collectText = %q", got)
	}
	if collectText(nil) != "" {
		t.Error("expected empty text for nil response")
	}
}

func TestImageFormat(t *testing.T) {
	tests := map[string]string{"": "jpeg", "image/jpg": "jpeg", "image/png": "png", "IMAGE/WEBP": "webp"}
	for in, want := range tests {
		if got := (Image{MIMEType: in}).format(); got != want {
			t.Errorf("format(%q) = %q, want %q", in, got, want)
		}
	}
}
