// Package storage keeps uploaded files on local disk and serves them under a
// public base URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var safePrefix = regexp.MustCompile(`^[a-z0-9_-]+$`)

type Local struct {
	Dir     string
	BaseURL string // e.g. /uploads
}

func NewLocal(dir, baseURL string) *Local {
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Save writes r under prefix with a random name that keeps filename's
// extension, and returns the public URL.
func (l *Local) Save(ctx context.Context, prefix, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !imageExts[ext] {
		return "", ErrUnsupportedType
	}
	if !safePrefix.MatchString(prefix) {
		return "", fmt.Errorf("invalid storage prefix %q", prefix)
	}

	dir := filepath.Join(l.Dir, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, readerWithContext(ctx, r)); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	return path.Join(l.BaseURL, prefix, name), nil
}

// Delete removes a file previously returned by Save. Unknown URLs are ignored.
func (l *Local) Delete(url string) error {
	rel := strings.TrimPrefix(url, l.BaseURL+"/")
	if rel == url || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(l.Dir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
