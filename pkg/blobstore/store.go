// Package blobstore keeps attachment files outside the database. Callers
// only ever hold the opaque handle returned by Store.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/raids-lab/staffdesk/pkg/domain"
)

// Store is the blob store contract consumed by the request service.
type Store interface {
	Store(ctx context.Context, r io.Reader) (*Blob, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Delete(ctx context.Context, handle string) error
}

// Blob describes a stored file.
type Blob struct {
	Handle      string
	Size        int64
	ContentType string
}

var handlePattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f-]{36}$`)

// FSStore stores blobs below a root directory, sharded by the first two
// characters of the handle.
type FSStore struct {
	root     string
	maxBytes int64
}

// NewFSStore creates root if needed. maxBytes <= 0 means unlimited.
func NewFSStore(root string, maxBytes int64) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &FSStore{root: root, maxBytes: maxBytes}, nil
}

// ErrTooLarge is returned when a blob exceeds the configured limit.
var ErrTooLarge = errors.New("blob too large")

func (s *FSStore) Store(ctx context.Context, r io.Reader) (*Blob, error) {
	id := uuid.NewString()
	handle := id[:2] + "/" + id
	path := s.path(handle)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	// 先写临时文件，写完再改名，避免留下半个文件
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	// sniff the content type from the head of the stream
	head := make([]byte, 3072)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		tmp.Close()
		return nil, err
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	written, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), contextReader{ctx: ctx, r: src}))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, err
	}
	return &Blob{Handle: handle, Size: written, ContentType: contentType}, nil
}

func (s *FSStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	if !handlePattern.MatchString(handle) {
		return nil, fmt.Errorf("%w: blob %q", domain.ErrNotFound, handle)
	}
	f, err := os.Open(s.path(handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %q", domain.ErrNotFound, handle)
	}
	return f, err
}

// Delete is idempotent.
func (s *FSStore) Delete(_ context.Context, handle string) error {
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("invalid blob handle %q", handle)
	}
	err := os.Remove(s.path(handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FSStore) path(handle string) string {
	return filepath.Join(s.root, filepath.FromSlash(handle))
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
