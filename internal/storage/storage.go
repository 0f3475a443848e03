package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fission/internal/config"
	"fission/internal/services"
	"fission/internal/textutil"
)

// ErrUploadFailed marks an upload that may succeed when retried.
var ErrUploadFailed = services.Code(services.ErrTransient, "UploadFailed")

// Uploader stores a named object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Local writes uploads into a directory served at PublicBaseURL.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal constructs a Local uploader from configuration.
func NewLocal(cfg *config.Config) *Local {
	return &Local{
		dir:     cfg.Storage.Dir,
		baseURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
	}
}

// Dir returns the storage root.
func (l *Local) Dir() string {
	return l.dir
}

// Upload copies r into storage. name may contain one level of directory
// ("<project>/<file>"); each segment is sanitized and the file name gets a
// unique suffix so re-running a stage never overwrites a published asset.
func (l *Local) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if r == nil {
		return "", services.Wrap(services.ErrValidation, "storage", "upload", "nil reader", nil)
	}
	rel, err := l.objectPath(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", services.Wrap(ErrUploadFailed, "storage", "create directory", filepath.Dir(target), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", services.Wrap(ErrUploadFailed, "storage", "create temp", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(ErrUploadFailed, "storage", "write", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", services.Wrap(ErrUploadFailed, "storage", "close", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", services.Wrap(ErrUploadFailed, "storage", "rename", target, err)
	}
	return l.URLFor(rel), nil
}

// URLFor maps a storage-relative path to its public URL.
func (l *Local) URLFor(rel string) string {
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")
	if l.baseURL == "" {
		return "/" + escaped
	}
	return l.baseURL + "/" + escaped
}

// LocalURL maps a file outside storage (a scratch clip kept after a failed
// upload) to a URL under the public base.
func (l *Local) LocalURL(localPath string) string {
	if rel, err := filepath.Rel(l.dir, localPath); err == nil && !strings.HasPrefix(rel, "..") {
		return l.URLFor(rel)
	}
	return l.URLFor(path.Join("local", filepath.Base(localPath)))
}

func (l *Local) objectPath(name string) (string, error) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "upload", "empty object name", nil)
	}
	dir, file := path.Split(name)
	dir = strings.Trim(dir, "/")
	if strings.Contains(dir, "/") {
		return "", services.Wrap(services.ErrValidation, "storage", "upload",
			fmt.Sprintf("object name %q is nested too deeply", name), nil)
	}
	ext := strings.ToLower(path.Ext(file))
	stem := textutil.SanitizeToken(strings.TrimSuffix(file, path.Ext(file)))
	unique := fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], textutil.SanitizeExtension(ext))
	if dir == "" {
		return unique, nil
	}
	return path.Join(textutil.SanitizeToken(dir), unique), nil
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

// UploadFile opens localPath and uploads it under name.
func UploadFile(ctx context.Context, uploader Uploader, name, localPath string) (string, error) {
	if uploader == nil {
		return "", errors.New("storage: nil uploader")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "storage", "open", localPath, err)
	}
	defer f.Close()
	return uploader.Upload(ctx, name, f)
}
