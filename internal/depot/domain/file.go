package domain

import (
	"io"
	"time"
)

// BucketInfo describes a bucket in the blob store.
type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"creationDate"`
}

// ObjectInfo is a single object as reported by the blob store.
type ObjectInfo struct {
	Key          string    `json:"name"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// FileMeta is the ownership record kept alongside each stored object. The
// blob store remains the source of truth for content; this table only
// answers "who uploaded bucket/key". A nil owner means unowned (legacy
// uploads, or delegated identities with no local record) and is treated
// as deletable by anyone.
type FileMeta struct {
	ID        string
	Bucket    string
	Key       string
	OwnerID   *string
	OwnerName *string
	UpdatedAt time.Time
}

// FileEntry is a listing row: blob store facts enriched with ownership.
// Owner fields are nil for objects with no metadata record.
type FileEntry struct {
	ObjectInfo

	OwnerID   *string `json:"ownerId,omitempty"`
	OwnerName *string `json:"ownerName,omitempty"`
}

// SearchHit is one full-text match from the search index.
type SearchHit struct {
	Bucket     string   `json:"bucket"`
	Key        string   `json:"key"`
	Filename   string   `json:"filename"`
	OwnerID    string   `json:"ownerId,omitempty"`
	OwnerName  string   `json:"ownerName,omitempty"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}

// Object is streamed content plus its stat, returned by downloads.
type Object struct {
	Info ObjectInfo
	Body io.ReadCloser
}
