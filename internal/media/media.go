// Package media serves prepared DASH output (manifest and segments).
package media

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var contentTypes = map[string]string{
	".mpd":  "application/dash+xml",
	".m4s":  "video/iso.segment",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".html": "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
}

// ContentType returns the type served for name, or "" to let net/http sniff.
func ContentType(name string) string {
	return contentTypes[strings.ToLower(filepath.Ext(name))]
}

type Handler struct {
	logger *zap.Logger
	root   string
}

func NewHandler(logger *zap.Logger, dir string) *Handler {
	return &Handler{logger: logger, root: dir}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/index.html"
	}
	full := filepath.Join(h.root, filepath.FromSlash(name))

	f, err := os.Open(full)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		h.logger.Warn("failed to stat media file", zap.String("path", full), zap.Error(err))
		http.Error(w, "file stat failed", http.StatusInternalServerError)
		return
	}
	if st.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	if ct := ContentType(name); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if strings.HasSuffix(name, ".mpd") {
		w.Header().Set("Cache-Control", "no-cache")
	}

	http.ServeContent(w, r, filepath.Base(full), st.ModTime(), f)
}
