package ui

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Assets is the file system served under /assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
