package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxResponseSize int64 = 2 * 1024 * 1024 // 2MB
	defaultHTTPTimeout           = 10 * time.Second
)

// NewHTTPClient returns the client used by the network tools: SSRF-safe
// transport and a bounded timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Transport: NewSafeTransport(),
		Timeout:   timeout,
	}
}

// statusError is returned for HTTP responses with a 4xx/5xx status.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// fetch performs a GET request and returns the bounded body.
func fetch(ctx context.Context, client *http.Client, url, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "versailles-assistant/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _, err := ReadBody(resp.Body, defaultMaxResponseSize)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", &statusError{Code: resp.StatusCode, Body: truncateRunes(SafeBodyString(body, ""), 200)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// getJSON performs a GET request and decodes the JSON response into dst.
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	body, _, err := fetch(ctx, client, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ReadBody reads the response body with a size limit.
// Returns (data, truncated, error).
func ReadBody(body io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		limit = defaultMaxResponseSize
	}
	lr := io.LimitReader(body, limit+1) // read one extra byte to detect truncation
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// SafeBodyString converts an upstream body to text fit for a model prompt.
// Template delimiters are broken up and HTML is escaped.
func SafeBodyString(body []byte, contentType string) string {
	s := string(body)
	s = strings.ReplaceAll(s, "{{", "{ {")
	s = strings.ReplaceAll(s, "}}", "} }")

	if strings.Contains(contentType, "text/html") {
		s = strings.ReplaceAll(s, "<", "&lt;")
		s = strings.ReplaceAll(s, ">", "&gt;")
	}
	return s
}

// truncateRunes keeps at most n runes of s, marking the cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
