// Package web embeds the HTML templates and static assets served by the
// application.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// TemplatesFS holds base.html and the page templates at its root.
var TemplatesFS = mustSub(templates, "templates")

// StaticFS holds the files served under /static/.
var StaticFS = mustSub(static, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
