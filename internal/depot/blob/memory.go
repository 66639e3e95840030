package blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memBucket
}

type memBucket struct {
	createdAt time.Time
	objects   map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memBucket)}
}

func (m *MemoryStore) MakeBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; ok {
		return ErrBucketExists
	}

	m.buckets[bucket] = &memBucket{
		createdAt: time.Now().UTC(),
		objects:   make(map[string]memObject),
	}
	return nil
}

func (m *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) ListBuckets(ctx context.Context) ([]domain.BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.BucketInfo, 0, len(m.buckets))
	for name, b := range m.buckets {
		out = append(out, domain.BucketInfo{Name: name, CreatedAt: b.createdAt})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) RemoveBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	if len(b.objects) > 0 {
		return ErrBucketNotEmpty
	}

	delete(m.buckets, bucket)
	return nil
}

func (m *MemoryStore) Put(
	ctx context.Context, bucket, key string,
	body io.Reader, size int64, contentType string,
) (domain.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.ObjectInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return domain.ObjectInfo{}, ErrBucketNotFound
	}

	now := time.Now().UTC()
	b.objects[key] = memObject{data: data, contentType: contentType, modified: now}

	return domain.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		LastModified: now,
	}, nil
}

func (m *MemoryStore) Stat(ctx context.Context, bucket, key string) (domain.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, err := m.lookup(bucket, key)
	if err != nil {
		return domain.ObjectInfo{}, err
	}

	return domain.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
	}, nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) (domain.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, err := m.lookup(bucket, key)
	if err != nil {
		return domain.Object{}, err
	}

	return domain.Object{
		Info: domain.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		},
		Body: io.NopCloser(bytes.NewReader(obj.data)),
	}, nil
}

func (m *MemoryStore) Remove(ctx context.Context, bucket string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}

	for _, key := range keys {
		delete(b.objects, key)
	}
	return nil
}

func (m *MemoryStore) List(
	ctx context.Context, bucket, prefix string, recursive bool,
) ([]domain.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}

	var out []domain.ObjectInfo
	folders := make(map[string]struct{})

	for key, obj := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		if !recursive {
			rest := strings.TrimPrefix(key, prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				folders[prefix+rest[:i+1]] = struct{}{}
				continue
			}
		}

		out = append(out, domain.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}

	for folder := range folders {
		out = append(out, domain.ObjectInfo{Key: folder})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// lookup requires m.mu held.
func (m *MemoryStore) lookup(bucket, key string) (memObject, error) {
	b, ok := m.buckets[bucket]
	if !ok {
		return memObject{}, ErrBucketNotFound
	}

	obj, ok := b.objects[key]
	if !ok {
		return memObject{}, ErrObjectNotFound
	}
	return obj, nil
}
