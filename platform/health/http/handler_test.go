package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]Check
		expectedCode   int
		expectedStatus string
	}{
		{
			name:           "no checks",
			checks:         nil,
			expectedCode:   http.StatusOK,
			expectedStatus: "ok",
		},
		{
			name: "all checks pass",
			checks: map[string]Check{
				"postgres": func(ctx context.Context) error { return nil },
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "ok",
		},
		{
			name: "one check fails",
			checks: map[string]Check{
				"postgres": func(ctx context.Context) error { return nil },
				"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
			},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.expectedCode, rec.Code)

			var body response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.expectedStatus, body.Status)
			require.Len(t, body.Checks, len(tt.checks))
		})
	}
}
