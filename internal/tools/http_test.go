package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---- ReadBody tests ----

func TestReadBody_WithinLimit(t *testing.T) {
	body := strings.NewReader("hello world")
	data, truncated, err := ReadBody(body, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if truncated {
		t.Fatal("expected truncated=false, got true")
	}
	if string(data) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", string(data))
	}
}

func TestReadBody_ExceedingLimit(t *testing.T) {
	content := strings.Repeat("a", 100)
	body := strings.NewReader(content)
	data, truncated, err := ReadBody(body, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !truncated {
		t.Fatal("expected truncated=true, got false")
	}
	if len(data) != 50 {
		t.Fatalf("expected data length 50, got %d", len(data))
	}
}

func TestReadBody_EmptyBody(t *testing.T) {
	body := strings.NewReader("")
	data, truncated, err := ReadBody(body, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if truncated {
		t.Fatal("expected truncated=false, got true")
	}
	if len(data) != 0 {
		t.Fatalf("expected empty data, got %d bytes", len(data))
	}
}

func TestReadBody_ZeroLimit(t *testing.T) {
	// A zero limit falls back to the default.
	body := strings.NewReader("test data")
	data, truncated, err := ReadBody(body, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if truncated {
		t.Fatal("expected truncated=false for small body with default limit")
	}
	if string(data) != "test data" {
		t.Fatalf("expected %q, got %q", "test data", string(data))
	}
}

// ---- SafeBodyString tests ----

func TestSafeBodyString_EscapesTemplateDelimiters(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
	}{
		{
			name:        "double curly braces escaped",
			body:        "Hello {{name}}",
			contentType: "text/plain",
			want:        "Hello { {name} }",
		},
		{
			name:        "multiple template expressions",
			body:        "{{a}} and {{b}}",
			contentType: "text/plain",
			want:        "{ {a} } and { {b} }",
		},
		{
			name:        "no template expressions unchanged",
			body:        "Hello world",
			contentType: "text/plain",
			want:        "Hello world",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SafeBodyString([]byte(tc.body), tc.contentType)
			if got != tc.want {
				t.Fatalf("SafeBodyString(%q, %q) = %q, want %q", tc.body, tc.contentType, got, tc.want)
			}
		})
	}
}

func TestSafeBodyString_HTMLContentType(t *testing.T) {
	body := "<div>Hello</div>"
	got := SafeBodyString([]byte(body), "text/html; charset=utf-8")

	// Template delimiters are sanitized first, then HTML entities are escaped
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Fatalf("expected HTML entities to be escaped, got: %q", got)
	}
	if !strings.Contains(got, "&lt;") || !strings.Contains(got, "&gt;") {
		t.Fatalf("expected &lt; and &gt; in output, got: %q", got)
	}
}

func TestSafeBodyString_PlainContentTypeNoHTMLEscape(t *testing.T) {
	body := "<div>Hello</div>"
	got := SafeBodyString([]byte(body), "text/plain")

	// For plain text, < and > should NOT be escaped
	if strings.Contains(got, "&lt;") || strings.Contains(got, "&gt;") {
		t.Fatalf("plain text should not escape HTML entities, got: %q", got)
	}
	if got != "<div>Hello</div>" {
		t.Fatalf("expected unchanged plain text, got: %q", got)
	}
}

// ---- HTTPExecutor.Execute tests ----

// ---- fetch / getJSON tests ----

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Versailles"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	if err := getJSON(context.Background(), srv.Client(), srv.URL, &out); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if out.Name != "Versailles" {
		t.Errorf("Name = %q", out.Name)
	}
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance {{.Secret}}"))
	}))
	defer srv.Close()

	_, _, err := fetch(context.Background(), srv.Client(), srv.URL, "")
	var se *statusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *statusError", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d", se.Code)
	}
	if strings.Contains(se.Body, "{{") {
		t.Errorf("Body not sanitized: %q", se.Body)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("château", 4); got != "chât…" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("court", 10); got != "court" {
		t.Errorf("truncateRunes = %q", got)
	}
}
