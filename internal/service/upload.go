package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/storage"
)

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

// Upload size limits.
const (
	MaxImageBytes   = 10 << 20
	MaxIDProofBytes = 10 << 20
	MaxReportImages = 5
)

var (
	imageTypes   = map[string]bool{"image/jpeg": true, "image/jpg": true, "image/png": true}
	idProofTypes = map[string]bool{"image/jpeg": true, "image/jpg": true, "image/png": true, "application/pdf": true}
	extTypes     = map[string]string{".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png", ".pdf": "application/pdf", ".webp": "image/webp"}
)

// contentType trusts the declared type when present, otherwise the file
// extension.
func (u Upload) contentType() string {
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return extTypes[strings.ToLower(filepath.Ext(u.Filename))]
}

func (u Upload) check(allowed map[string]bool, limit int64, what string) error {
	if u.Body == nil {
		return invalid("%s is required", what)
	}
	if allowed != nil && !allowed[u.contentType()] {
		return invalid("%s has an unsupported file type", what)
	}
	if limit > 0 && u.Size > limit {
		return invalid("%s exceeds %d MB", what, limit>>20)
	}
	return nil
}

// readAll loads the upload into memory, enforcing limit.
func (u Upload) readAll(limit int64) ([]byte, error) {
	if _, err := u.Body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(u.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, invalid("file exceeds %d MB", limit>>20)
	}
	return b, nil
}

// storeMedia uploads u to folder and returns an unsaved Media row for it.
func storeMedia(ctx context.Context, objects storage.ObjectStore, ownerID *uint64, folder string, u Upload) (model.Media, storage.Object, error) {
	if _, err := u.Body.Seek(0, io.SeekStart); err != nil {
		return model.Media{}, storage.Object{}, err
	}
	obj, err := objects.Upload(ctx, folder, u.Filename, u.contentType(), u.Body, u.Size)
	if err != nil {
		return model.Media{}, storage.Object{}, fmt.Errorf("upload %s: %w", folder, err)
	}
	return model.Media{
		OwnerID:     ownerID,
		URL:         obj.URL,
		PublicID:    obj.Key,
		ContentType: obj.ContentType,
		SizeBytes:   obj.Size,
	}, obj, nil
}

func memUpload(name, contentType string, b []byte) Upload {
	return Upload{Filename: name, ContentType: contentType, Size: int64(len(b)), Body: bytes.NewReader(b)}
}

// discard deletes objects without failing the caller.
func discard(ctx context.Context, objects storage.ObjectStore, log logging.Logger, keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := objects.Delete(context.WithoutCancel(ctx), k); err != nil {
			log.Warn(ctx, "object cleanup failed", "key", k, "error", err)
		}
	}
}
