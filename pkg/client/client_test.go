package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medportal/portal/internal/platform/ai"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestSignInLab(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/lab/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lab@example.com", body["email"])
		writeJSON(w, http.StatusOK, map[string]any{
			"lab":   map[string]string{"id": "l1", "email": "lab@example.com", "labName": "Lab B"},
			"token": "lab-tok",
		})
	})

	lab, token, err := New(srv.URL).SignInLab(context.Background(), "lab@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "lab-tok", token)
	assert.Equal(t, "Lab B", lab.LabName)
	assert.NoError(t, lab.Validate())
}

func TestAPIError_MessageAndFallback(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/signin":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}
	})
	c := New(srv.URL)

	_, _, err := c.SignInPatient(context.Background(), "a@example.com", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", apiErr.Message)

	_, err = c.MyAppointments(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "request failed with status 502", apiErr.Message)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestAcceptBooking_BlankFieldsFailLocally(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"_id": "b1", "status": "started", "doctor": "Dr. X"})
	})
	c := New(srv.URL, WithToken("lab-tok"))

	_, err := c.AcceptBooking(context.Background(), "b1", " ", "Lab B")
	assert.ErrorIs(t, err, ErrAcceptFields)
	_, err = c.AcceptBooking(context.Background(), "b1", "Dr. X", "")
	assert.ErrorIs(t, err, ErrAcceptFields)
	assert.Zero(t, atomic.LoadInt32(&calls))

	b, err := c.AcceptBooking(context.Background(), "b1", "Dr. X", "Lab B")
	require.NoError(t, err)
	assert.Equal(t, "started", b.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBearerToken(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer h-tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
	})
	c := New(srv.URL)

	assert.NoError(t, c.Verify(context.Background(), "h-tok"))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(c.Verify(context.Background(), "other")))
	assert.Empty(t, c.Token())
	assert.Equal(t, "h-tok", c.As("h-tok").Token())
}

func TestInsightJSON(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/insights", r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		answer := "```json\n{\"summary\":\"ok\"}\n```"
		if body["prompt"] == "prose" {
			answer = "The values look normal."
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": answer})
	})
	c := New(srv.URL, WithToken("t"))

	var fenced, plain struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, c.InsightJSON(context.Background(), "summarise", &fenced))
	require.NoError(t, ai.DecodeJSON(`{"summary":"ok"}`, &plain))
	assert.Equal(t, plain, fenced)

	assert.ErrorIs(t, c.InsightJSON(context.Background(), "prose", &fenced), ai.ErrInvalidFormat)
}

func TestMalformedSuccessBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	})
	_, err := New(srv.URL).PendingBookings(context.Background(), "l1")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestContextCancelAbortsRequest(t *testing.T) {
	started := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := New(srv.URL).LabTests(ctx, "l1")
		errc <- err
	}()
	<-started
	cancel()
	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
}
