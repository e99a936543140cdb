package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/lockedfile"
)

// FS is a file-system based KeyValueStore. Each key is one file.
type FS struct {
	basedir string
}

var _ KeyValueStore = &FS{}

func NewFS(basedir string) (*FS, error) {
	if err := os.MkdirAll(basedir, 0o700); err != nil {
		return nil, err
	}
	return &FS{basedir: basedir}, nil
}

// filename escapes key so that separators in application names cannot
// leave basedir.
func (kvs *FS) filename(key string) string {
	return filepath.Join(kvs.basedir, url.QueryEscape(key))
}

func (kvs *FS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := lockedfile.Read(kvs.filename(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, err.Error())
	}
	return data, nil
}

func (kvs *FS) Set(ctx context.Context, key string, value []byte) error {
	return lockedfile.Write(kvs.filename(key), bytes.NewReader(value), 0o600)
}
