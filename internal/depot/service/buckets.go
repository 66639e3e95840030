package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/slogx"
)

// S3 bucket naming rules, minus the IP-address exclusion which the
// pattern already makes unlikely enough in practice.
var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Buckets manages bucket lifecycle. All three operations are admin-only;
// the HTTP layer enforces that before calling in.
type Buckets struct {
	Blobs  blob.Store
	Store  store.Store
	Search search.Index
}

// Create makes a new bucket.
func (s *Buckets) Create(ctx context.Context, name string) error {
	if !bucketNameRe.MatchString(name) {
		return fmt.Errorf("%w: bucket name %q", ErrInvalidInput, name)
	}

	if err := s.Blobs.MakeBucket(ctx, name); err != nil {
		if errors.Is(err, blob.ErrBucketExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return nil
}

// List returns all buckets.
func (s *Buckets) List(ctx context.Context) ([]domain.BucketInfo, error) {
	buckets, err := s.Blobs.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return buckets, nil
}

// Delete purges a bucket: every object goes first, then the bucket
// itself, then ownership records, then the search projection. The blob
// store is authoritative, so its steps come before the derived state and
// must all succeed; projection cleanup is best-effort.
func (s *Buckets) Delete(ctx context.Context, name string) error {
	exists, err := s.Blobs.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !exists {
		return ErrNotFound
	}

	// 1. Empty the bucket.
	objects, err := s.Blobs.List(ctx, name, "", true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(objects) > 0 {
		keys := make([]string, 0, len(objects))
		for _, obj := range objects {
			keys = append(keys, obj.Key)
		}
		if err := s.Blobs.Remove(ctx, name, keys...); err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	// 2. Remove the bucket itself.
	if err := s.Blobs.RemoveBucket(ctx, name); err != nil {
		if errors.Is(err, blob.ErrBucketNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// 3. Drop ownership records.
	if err := s.Store.Files().DeleteFileMetaByBucket(ctx, name); err != nil {
		return err
	}

	// 4. Projection cleanup, best-effort.
	if err := s.Search.DeleteByBucket(ctx, name); err != nil {
		slogx.FromContext(ctx).Warn("search cleanup after bucket delete failed",
			"bucket", name, "err", err)
	}

	return nil
}
