package servicetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/krushi/krushi-api/internal/storage"
)

// Objects is an in-memory storage.ObjectStore.
type Objects struct {
	mu       sync.Mutex
	seq      int
	items    map[string][]byte
	deleted  []string
	failNext error
}

func NewObjects() *Objects { return &Objects{items: map[string][]byte{}} }

// FailUploads makes every following upload return err (nil clears it).
func (o *Objects) FailUploads(err error) {
	o.mu.Lock()
	o.failNext = err
	o.mu.Unlock()
}

func (o *Objects) Upload(_ context.Context, folder, filename, contentType string, body io.ReadSeeker, _ int64) (storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNext != nil {
		return storage.Object{}, o.failNext
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return storage.Object{}, err
	}
	o.seq++
	key := fmt.Sprintf("%s/%d-%s", folder, o.seq, filename)
	o.items[key] = b
	return storage.Object{URL: "https://cdn.test/" + key, Key: key, ContentType: contentType, Size: int64(len(b))}, nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
	o.deleted = append(o.deleted, key)
	return nil
}

// Has reports whether key is currently stored.
func (o *Objects) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.items[key]
	return ok
}

// Len is the number of stored objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Deleted lists the keys passed to Delete, in order.
func (o *Objects) Deleted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.deleted...)
}

var _ storage.ObjectStore = (*Objects)(nil)
