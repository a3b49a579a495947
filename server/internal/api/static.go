package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// staticHandler serves files from dir and falls back to dir/index.html for
// any path that is not a regular file, so client-side routes resolve.
type staticHandler struct {
	dir   string
	files http.Handler
}

func newStaticHandler(dir string) http.Handler {
	return &staticHandler{dir: dir, files: http.FileServer(http.Dir(dir))}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if name != "/" && s.isFile(name) {
		s.files.ServeHTTP(w, r)
		return
	}

	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, index)
}

func (s *staticHandler) isFile(name string) bool {
	fi, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(name)))
	return err == nil && fi.Mode().IsRegular()
}
