//go:generate go run go.uber.org/mock/mockgen -source=upload.go -destination=mocks/mock_uploader.go -package=mocks
package internal

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrImageTooLarge    = errors.New("image too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
	errInvalidDataURL   = errors.New("invalid image data")
)

// ImageUploader hosts image bytes somewhere reachable and returns their URL.
type ImageUploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// DiskUploader writes images under dir, named by content hash, and serves
// them back below baseURL.
type DiskUploader struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewDiskUploader(dir, baseURL string, maxBytes int64) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DiskUploader{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return "", ErrImageTooLarge
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mtype.String())
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + mtype.Extension()
	path := filepath.Join(u.dir, name)
	// identical content already hosted
	if _, err := os.Stat(path); err == nil {
		return u.baseURL + "/" + name, nil
	}

	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save file: %w", err)
	}
	return u.baseURL + "/" + name, nil
}

// Handler serves hosted images. Directory listings are not exposed.
func (u *DiskUploader) Handler() http.Handler {
	files := http.FileServer(http.Dir(u.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		name := filepath.Base(r.URL.Path)
		if name == "." || name == "/" || strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		r.URL.Path = "/" + name
		files.ServeHTTP(w, r)
	})
}

// decodeDataURL accepts "data:image/png;base64,...." or bare base64.
func decodeDataURL(value string) ([]byte, error) {
	payload := value
	if strings.HasPrefix(value, "data:") {
		comma := strings.IndexByte(value, ',')
		if comma < 0 || !strings.HasSuffix(value[:comma], ";base64") {
			return nil, errInvalidDataURL
		}
		payload = value[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidDataURL, err)
	}
	if len(data) == 0 {
		return nil, errInvalidDataURL
	}
	return data, nil
}
