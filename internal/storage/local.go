package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalAppendFile appends chunks to a single file on local disk.
type LocalAppendFile struct {
	root string
	name string
}

var _ Appender = (*LocalAppendFile)(nil)

func NewLocalAppendFile(root, name string) (*LocalAppendFile, error) {
	name = strings.TrimSpace(name)
	if name == "" || filepath.IsAbs(name) || strings.Contains(filepath.ToSlash(name), "..") {
		return nil, fmt.Errorf("%w: bad local blob name %q", ErrInvalidEndpoint, name)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalAppendFile{root: root, name: name}, nil
}

// Path returns the absolute location of the append file.
func (l *LocalAppendFile) Path() string {
	return filepath.Join(l.root, l.name)
}

// Create makes the file if it does not exist yet. Existing content is kept.
func (l *LocalAppendFile) Create(_ context.Context) error {
	absPath := l.Path()
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create blob file: %w", err)
	}
	return f.Close()
}

func (l *LocalAppendFile) Append(ctx context.Context, chunk []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path(), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open blob file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close blob file: %w", cerr)
		}
	}()

	if _, err := f.Write(chunk); err != nil {
		return fmt.Errorf("append blob file: %w", err)
	}
	return nil
}
