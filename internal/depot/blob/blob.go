// Package blob abstracts the object store. The S3 driver is the only
// implementation; tests use an in-memory fake.
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/quartzlab/depot/internal/depot/domain"
)

var (
	ErrBucketNotFound = errors.New("blob: bucket not found")
	ErrObjectNotFound = errors.New("blob: object not found")
	ErrBucketExists   = errors.New("blob: bucket already exists")
	ErrBucketNotEmpty = errors.New("blob: bucket not empty")
)

// Store is the object storage interface the services consume.
type Store interface {
	// MakeBucket creates a bucket. Returns ErrBucketExists when it is
	// already there.
	MakeBucket(ctx context.Context, bucket string) error

	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// ListBuckets returns all buckets, oldest first.
	ListBuckets(ctx context.Context) ([]domain.BucketInfo, error)

	// RemoveBucket deletes an empty bucket.
	RemoveBucket(ctx context.Context, bucket string) error

	// Put stores an object and returns its resulting info.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (domain.ObjectInfo, error)

	// Stat returns object info without the body.
	Stat(ctx context.Context, bucket, key string) (domain.ObjectInfo, error)

	// Get opens an object for reading. The caller must close the body.
	Get(ctx context.Context, bucket, key string) (domain.Object, error)

	// Remove deletes objects by key. Missing keys are not an error.
	Remove(ctx context.Context, bucket string, keys ...string) error

	// List returns objects under prefix. When recursive is false the
	// listing stops at "/" boundaries and only direct children appear.
	List(ctx context.Context, bucket, prefix string, recursive bool) ([]domain.ObjectInfo, error)
}
