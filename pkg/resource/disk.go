package resource

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// DiskBlob stores resource bytes as flat files under a directory, one
// file per rid.
type DiskBlob struct {
	dir string
}

// NewDiskBlob creates the directory if needed and returns a disk-backed
// blob store.
func NewDiskBlob(dir string) (*DiskBlob, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskBlob{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *DiskBlob) Dir() string { return b.dir }

func (b *DiskBlob) path(rid string) string {
	// rid values are generated UUIDs, but clean anyway so a hostile rid
	// cannot escape the directory.
	return filepath.Join(b.dir, filepath.Base(rid))
}

func (b *DiskBlob) Writer(rid string) (io.WriteCloser, error) {
	return os.Create(b.path(rid))
}

func (b *DiskBlob) Open(rid string) (io.ReadCloser, error) {
	return os.Open(b.path(rid))
}

func (b *DiskBlob) Remove(rid string) error {
	err := os.Remove(b.path(rid))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// URL always reports false: disk objects are served by the resource HTTP
// server, whose base URL the store composes itself.
func (b *DiskBlob) URL(context.Context, string) (string, bool) {
	return "", false
}
