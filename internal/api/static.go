package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yegors/co-flight/pkg/logger"
)

// StaticFileHandler serves the browser client without caching. Unknown
// paths without an extension fall back to index.html.
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, logger *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(staticDir)
	if err != nil {
		root = staticDir
	}
	return &StaticFileHandler{
		root:   root,
		logger: logger.Named("static-handler"),
	}
}

// ServeHTTP serves one file from the static directory
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// path.Clean on a rooted path never climbs above "/"
	rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	full := filepath.Join(h.root, filepath.FromSlash(rel))
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		h.logger.Warn("Rejected path outside static directory", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
		if _, err := os.Stat(full); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	case os.IsNotExist(err) && path.Ext(rel) == "":
		full = filepath.Join(h.root, "index.html")
		if _, err := os.Stat(full); err != nil {
			http.NotFound(w, r)
			return
		}
	case os.IsNotExist(err):
		h.logger.Debug("File not found", logger.String("path", full))
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	http.ServeFile(w, r, full)
}
