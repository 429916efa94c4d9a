package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed robots.txt
var robotsTxt []byte

//go:embed static
var staticFS embed.FS

// RobotsTxtHandler serves robots.txt. Admin pages are excluded from
// crawling.
func RobotsTxtHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(robotsTxt)
	})
}

// StaticHandler serves the stylesheet and images under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
