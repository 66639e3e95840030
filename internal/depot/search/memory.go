package search

import (
	"context"
	"strings"
	"sync"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Compile-time interface check.
var _ Index = (*MemoryIndex)(nil)

// MemoryIndex is a naive in-memory Index for tests and local development.
// Matching is substring-based on filename and content.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

func (m *MemoryIndex) EnsureSetup(ctx context.Context) error { return nil }
func (m *MemoryIndex) Ping(ctx context.Context) error        { return nil }

func (m *MemoryIndex) IndexObject(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[DocID(doc.Bucket, doc.Key)] = doc
	return nil
}

func (m *MemoryIndex) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, DocID(bucket, key))
	return nil
}

func (m *MemoryIndex) DeleteByBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, doc := range m.docs {
		if doc.Bucket == bucket {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]domain.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(q.Text)

	var hits []domain.SearchHit
	for _, doc := range m.docs {
		if q.OwnerID != "" && doc.OwnerID != q.OwnerID {
			continue
		}

		if !strings.Contains(strings.ToLower(doc.Filename), needle) &&
			!strings.Contains(strings.ToLower(string(doc.Data)), needle) {
			continue
		}

		hits = append(hits, domain.SearchHit{
			Bucket:    doc.Bucket,
			Key:       doc.Key,
			Filename:  doc.Filename,
			OwnerID:   doc.OwnerID,
			OwnerName: doc.OwnerName,
			Score:     1,
		})

		if q.Limit > 0 && len(hits) >= q.Limit {
			break
		}
	}

	return hits, nil
}

// Len reports how many documents are indexed. Test helper.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
