package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithIdempotencyKey(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedKey    string
		expectKey      bool
	}{
		{name: "no header", expectedStatus: http.StatusOK},
		{name: "key passed to context", header: "order-1", expectedStatus: http.StatusOK, expectedKey: "order-1", expectKey: true},
		{name: "key too long", header: strings.Repeat("x", 256), expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotKey string
				gotOK  bool
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotKey, gotOK = IdempotencyKeyFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodPost, "/reservations", nil)
			if tt.header != "" {
				req.Header.Set(IdempotencyKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			WithIdempotencyKey(next).ServeHTTP(rec, req)

			require.Equal(t, tt.expectedStatus, rec.Code)
			require.Equal(t, tt.expectKey, gotOK)
			require.Equal(t, tt.expectedKey, gotKey)
		})
	}
}
