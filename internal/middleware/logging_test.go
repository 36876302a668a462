package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantPath string
	}{
		{"plain path", "/admin/blocks", "/admin/blocks"},
		{"harmless query kept", "/admin/dashboard/events?limit=5", "/admin/dashboard/events?limit=5"},
		{"sensitive query redacted", "/auth/login?password=hunter2", "/auth/login?[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))

			req := httptest.NewRequest("GET", tt.target, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.77")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "http_request", entry["msg"])
			assert.Equal(t, tt.wantPath, entry["path"])
			assert.Equal(t, float64(http.StatusTeapot), entry["status"])
			assert.Equal(t, "203.0.113.77", entry["identity"])
		})
	}
}
