// Package ui embeds the static web pages: the public listener page,
// the contact page, and the minimal admin panel. Plain committed
// assets, no build step.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Assets serves the embedded pages and their static files. Paths are
// relative to the static root: /streams.html, /admin.html,
// /assets/style.css and so on.
func Assets() http.Handler {
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return http.FileServer(http.FS(fsys))
}
