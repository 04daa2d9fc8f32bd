package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var staticFS embed.FS

// Static returns the embedded UI rooted at static/.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
