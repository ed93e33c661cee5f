package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	router := NewRouter(Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
		Stats: func() Stats {
			return Stats{Connections: 3, Participants: 2, HasState: true}
		},
	})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantCode: http.StatusOK, wantBody: "OK"},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK, wantBody: "metrics"},
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantCode: http.StatusNotFound},
		{name: "root", method: http.MethodGet, path: "/", wantCode: http.StatusNotFound},
		{name: "health wrong method", method: http.MethodPost, path: "/health", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestRouter_Stats(t *testing.T) {
	router := NewRouter(Options{
		Stats: func() Stats {
			return Stats{Connections: 3, Participants: 2, HasState: true}
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got Stats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, Stats{Connections: 3, Participants: 2, HasState: true}, got)
}

func TestRouter_CORS(t *testing.T) {
	router := NewRouter(Options{AllowedOrigins: []string{"chrome-extension://abc"}})

	allowed := httptest.NewRequest(http.MethodGet, "/health", nil)
	allowed.Header.Set("Origin", "chrome-extension://abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, allowed)
	assert.Equal(t, "chrome-extension://abc", rr.Header().Get("Access-Control-Allow-Origin"))

	denied := httptest.NewRequest(http.MethodGet, "/health", nil)
	denied.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, denied)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
