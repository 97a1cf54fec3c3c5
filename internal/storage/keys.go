package storage

import (
	"path"
	"path/filepath"
)

// ProductKey addresses one product object: <base>/<filetype>/<file name>.
type ProductKey struct {
	Base     string
	FileType string
	File     string // local path or file name; only the base name is used
}

func (k ProductKey) Key() string {
	return path.Join(k.Base, k.FileType, filepath.Base(k.File))
}
