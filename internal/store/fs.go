package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rogpeppe/go-internal/lockedfile"

	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/pkg/metrics"
)

const (
	backendFS    = "fs"
	recordSuffix = ".json"
)

// FSStore keeps one file per request under a directory. Files are read
// and written through lockedfile so that several processes sharing the
// directory never observe a torn record.
type FSStore struct {
	dir    string
	now    clock
	logger logger.Logger
}

func NewFSStore(dir string, log logger.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create queue directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir, now: time.Now, logger: log}, nil
}

func (s *FSStore) filename(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid request id %q: %w", id, err)
	}
	return filepath.Join(s.dir, id+recordSuffix), nil
}

func (s *FSStore) Put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error {
	err := s.put(r, expiresAt)
	metrics.IncStoreOperation(backendFS, "put", err)
	return err
}

func (s *FSStore) put(r *request.Prepared, expiresAt time.Time) error {
	name, err := s.filename(r.ID)
	if err != nil {
		return err
	}
	data, err := request.Encode(r, expiresAt)
	if err != nil {
		return err
	}
	return lockedfile.Write(name, bytes.NewReader(data), 0o600)
}

func (s *FSStore) Remove(ctx context.Context, id string) error {
	err := s.remove(id)
	metrics.IncStoreOperation(backendFS, "remove", err)
	return err
}

func (s *FSStore) remove(id string) error {
	name, err := s.filename(id)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FSStore) All(ctx context.Context) iter.Seq[*request.Prepared] {
	return func(yield func(*request.Prepared) bool) {
		entries, err := os.ReadDir(s.dir)
		metrics.IncStoreOperation(backendFS, "scan", err)
		if err != nil {
			s.logger.Errorw("Failed to list queue directory", "dir", s.dir, "error", err)
			return
		}

		now := s.now()
		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordSuffix) {
				continue
			}

			name := filepath.Join(s.dir, entry.Name())
			data, err := lockedfile.Read(name)
			if err != nil {
				// Removed by a concurrent Remove between ReadDir and Read.
				if !errors.Is(err, fs.ErrNotExist) {
					s.logger.Warnw("Failed to read queue entry", "file", name, "error", err)
				}
				continue
			}

			r, expiresAt, err := request.Decode(data)
			if err != nil {
				metrics.IncStoreCorrupt(backendFS)
				s.logger.Warnw("Skipping undecodable queue entry", "backend", backendFS, "file", name, "error", err)
				continue
			}

			if !now.Before(expiresAt) {
				if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
					s.logger.Warnw("Failed to evict expired queue entry", "file", name, "error", err)
				}
				continue
			}

			if !yield(r) {
				return
			}
		}
	}
}

func (s *FSStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *FSStore) Close() error {
	return nil
}
