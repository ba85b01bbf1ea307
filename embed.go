package voxguide

import (
	"embed"
	"io/fs"
)

//go:embed web/*
var webFiles embed.FS

// WebFiles returns the embedded web pages rooted at the web directory.
func WebFiles() fs.FS {
	sub, err := fs.Sub(webFiles, "web")
	if err != nil {
		panic(err)
	}
	return sub
}
