package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vaidashi/storefront-api/pkg/logger"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds size limit")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// ImageStore keeps product images and hands back the URL they are served at
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// LocalStore writes images to a directory served under publicURL
type LocalStore struct {
	dir       string
	publicURL string
	maxBytes  int64
	logger    logger.Logger
}

// NewLocalStore creates dir if needed
func NewLocalStore(dir, publicURL string, maxBytes int64, logger logger.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir %s: %w", dir, err)
	}

	return &LocalStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		logger:    logger,
	}, nil
}

// Dir is the directory images are written to
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save stores the image under a random name that keeps the original extension
func (s *LocalStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	name := uuid.New().String() + ext
	target := filepath.Join(s.dir, name)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}

	n, err := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case err != nil:
		os.Remove(target)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	case closeErr != nil:
		os.Remove(target)
		return "", fmt.Errorf("failed to write %s: %w", name, closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		os.Remove(target)
		return "", ErrTooLarge
	}

	s.logger.Debug("Image stored", "file", name, "bytes", n)

	return s.publicURL + "/" + name, nil
}

// Delete removes the file behind url. URLs outside publicURL and files that
// are already gone are ignored.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}

	name := path.Base(strings.TrimPrefix(url, prefix))
	if name == "." || name == "/" || name == "" {
		return nil
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	return nil
}
