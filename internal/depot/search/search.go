// Package search maintains the full-text projection of stored files. The
// blob store stays authoritative; everything here is rebuildable and
// failures never block uploads or deletes.
package search

import (
	"context"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Document is what gets indexed per object. Data carries the raw content
// for attachment extraction and is stripped from the stored document.
type Document struct {
	Bucket      string
	Key         string
	Filename    string
	OwnerID     string
	OwnerName   string
	ContentType string
	Size        int64
	Data        []byte
	UploadedAt  time.Time
}

// Query is a full-text search request. An empty OwnerID means no
// ownership filter (admin view).
type Query struct {
	Text    string
	OwnerID string
	Limit   int
}

// Index is the search backend interface.
type Index interface {
	// EnsureSetup creates the ingest pipeline and index if missing.
	// Safe to call on every startup.
	EnsureSetup(ctx context.Context) error

	// IndexObject writes or replaces the document for bucket/key.
	IndexObject(ctx context.Context, doc Document) error

	// DeleteObject removes the document for bucket/key. Missing documents
	// are not an error.
	DeleteObject(ctx context.Context, bucket, key string) error

	// DeleteByBucket removes every document for a bucket.
	DeleteByBucket(ctx context.Context, bucket string) error

	// Search runs a full-text query and returns scored hits.
	Search(ctx context.Context, q Query) ([]domain.SearchHit, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// DocID is the deterministic document identifier, so re-uploads replace
// rather than duplicate.
func DocID(bucket, key string) string {
	return bucket + ":" + key
}
