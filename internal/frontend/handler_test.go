package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	h := NewHandler()

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		contains string
	}{
		{"index", http.MethodGet, "/", http.StatusOK, "Assistant Versailles"},
		{"asset", http.MethodGet, "/static/app.js", http.StatusOK, "/v1/sessions/"},
		{"fallback", http.MethodGet, "/conversation/42", http.StatusOK, "Assistant Versailles"},
		{"post rejected", http.MethodPost, "/", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
		})
	}
}
