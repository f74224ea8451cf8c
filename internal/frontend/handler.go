// Package frontend serves the built-in chat page.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed web
var webFS embed.FS

// Handler serves the embedded chat page and its assets. Unknown paths fall
// back to index.html.
type Handler struct {
	files      fs.FS
	fileServer http.Handler
}

// NewHandler creates the frontend handler.
func NewHandler() *Handler {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return &Handler{files: sub, fileServer: http.FileServerFS(sub)}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if _, err := fs.Stat(h.files, name); err != nil {
		r = r.Clone(r.Context())
		r.URL.Path = "/"
	}
	h.fileServer.ServeHTTP(w, r)
}
