package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/idx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// Files is the object plane: upload, listing, download, delete. The blob
// store is the source of truth for content; ownership lives in the
// relational store and the search index is a rebuildable projection.
type Files struct {
	Blobs  blob.Store
	Store  store.Store
	Search search.Index
}

// validateKey rejects keys that would escape or alias paths. A trailing
// slash is a folder marker, not an object.
func validateKey(key string) error {
	if key == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: object key %q", ErrInvalidInput, key)
	}
	if strings.HasPrefix(key, "/") || containsDotDot(key) {
		return fmt.Errorf("%w: object key %q", ErrInvalidInput, key)
	}
	return nil
}

func containsDotDot(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Upload stores an object and records who put it there. Content lands in
// the blob store first; the ownership record follows; indexing is
// best-effort and never fails the upload.
func (s *Files) Upload(ctx context.Context, id domain.Identity, bucket, key string, data []byte, contentType string) (domain.ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return domain.ObjectInfo{}, err
	}

	// 1. Authoritative write.
	info, err := s.Blobs.Put(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		if errors.Is(err, blob.ErrBucketNotFound) {
			return domain.ObjectInfo{}, ErrNotFound
		}
		return domain.ObjectInfo{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// 2. Ownership record. An empty identity id leaves the object
	// unowned rather than inventing an owner.
	meta := domain.FileMeta{
		ID:        idx.New().String(),
		Bucket:    bucket,
		Key:       key,
		UpdatedAt: time.Now().UTC(),
	}
	if id.ID != "" {
		meta.OwnerID = &id.ID
		meta.OwnerName = &id.Username
	}
	if err := s.Store.Files().UpsertFileMeta(ctx, meta); err != nil {
		return domain.ObjectInfo{}, err
	}

	// 3. Projection, best-effort.
	doc := search.Document{
		Bucket:      bucket,
		Key:         key,
		Filename:    path.Base(key),
		ContentType: info.ContentType,
		Size:        info.Size,
		Data:        data,
		UploadedAt:  info.LastModified,
	}
	if meta.OwnerID != nil {
		doc.OwnerID = *meta.OwnerID
		doc.OwnerName = *meta.OwnerName
	}
	if err := s.Search.IndexObject(ctx, doc); err != nil {
		slogx.FromContext(ctx).Warn("indexing upload failed",
			"bucket", bucket, "key", key, "err", err)
	}

	return info, nil
}

// List returns the objects under prefix with their owners merged in.
// Folder placeholders carry no ownership.
func (s *Files) List(ctx context.Context, bucket, prefix string, recursive bool) ([]domain.FileEntry, error) {
	objects, err := s.Blobs.List(ctx, bucket, prefix, recursive)
	if err != nil {
		if errors.Is(err, blob.ErrBucketNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}

	metas := map[string]domain.FileMeta{}
	if len(keys) > 0 {
		metas, err = s.Store.Files().GetFileMetaBatch(ctx, bucket, keys)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]domain.FileEntry, 0, len(objects))
	for _, obj := range objects {
		entry := domain.FileEntry{ObjectInfo: obj}
		if m, ok := metas[obj.Key]; ok {
			entry.OwnerID = m.OwnerID
			entry.OwnerName = m.OwnerName
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Download opens an object for streaming. The caller owns the body.
func (s *Files) Download(ctx context.Context, bucket, key string) (domain.Object, error) {
	if err := validateKey(key); err != nil {
		return domain.Object{}, err
	}

	obj, err := s.Blobs.Get(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) || errors.Is(err, blob.ErrBucketNotFound) {
			return domain.Object{}, ErrNotFound
		}
		return domain.Object{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return obj, nil
}

// Delete removes the given keys. Authorization runs over the whole batch
// before anything is touched: one foreign-owned key fails the lot, so a
// prefix delete cannot half-complete on a permissions boundary.
func (s *Files) Delete(ctx context.Context, id domain.Identity, bucket string, keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no keys", ErrInvalidInput)
	}
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return err
		}
	}

	// 1. Authorize everything up front. Keys without a record are
	// unowned and pass.
	metas, err := s.Store.Files().GetFileMetaBatch(ctx, bucket, keys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		var owner *string
		if m, ok := metas[key]; ok {
			owner = m.OwnerID
		}
		if !CanDelete(id, owner) {
			return fmt.Errorf("%w: %s", ErrForbidden, key)
		}
	}

	// 2. Blobs. Missing keys are tolerated so deletes are idempotent.
	if err := s.Blobs.Remove(ctx, bucket, keys...); err != nil {
		if errors.Is(err, blob.ErrBucketNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// 3. Ownership records.
	if err := s.Store.Files().DeleteFileMeta(ctx, bucket, keys); err != nil {
		return err
	}

	// 4. Projection, best-effort.
	log := slogx.FromContext(ctx)
	for _, key := range keys {
		if err := s.Search.DeleteObject(ctx, bucket, key); err != nil {
			log.Warn("deindexing failed", "bucket", bucket, "key", key, "err", err)
		}
	}

	return nil
}

// DeletePrefix expands a folder prefix to its objects and deletes them
// through the same batch authorization as Delete.
func (s *Files) DeletePrefix(ctx context.Context, id domain.Identity, bucket, prefix string) error {
	if !strings.HasSuffix(prefix, "/") || strings.HasPrefix(prefix, "/") || containsDotDot(prefix) {
		return fmt.Errorf("%w: prefix %q", ErrInvalidInput, prefix)
	}

	objects, err := s.Blobs.List(ctx, bucket, prefix, true)
	if err != nil {
		if errors.Is(err, blob.ErrBucketNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil
	}

	return s.Delete(ctx, id, bucket, keys)
}

// Reindex rebuilds the search document for one object from the stored
// content. Used by the storage webhook; errors surface so the sender can
// retry.
func (s *Files) Reindex(ctx context.Context, bucket, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	obj, err := s.Blobs.Get(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) || errors.Is(err, blob.ErrBucketNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return fmt.Errorf("%w: reading object: %v", ErrUpstream, err)
	}

	doc := search.Document{
		Bucket:      bucket,
		Key:         key,
		Filename:    path.Base(key),
		ContentType: obj.Info.ContentType,
		Size:        obj.Info.Size,
		Data:        data,
		UploadedAt:  obj.Info.LastModified,
	}
	meta, err := s.Store.Files().GetFileMeta(ctx, bucket, key)
	switch {
	case err == nil:
		if meta.OwnerID != nil {
			doc.OwnerID = *meta.OwnerID
		}
		if meta.OwnerName != nil {
			doc.OwnerName = *meta.OwnerName
		}
	case errors.Is(err, store.ErrNotFound):
		// Unowned object, index without an owner.
	default:
		return err
	}

	if err := s.Search.IndexObject(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}

// Deindex removes the search document for one object. Webhook companion
// to Reindex.
func (s *Files) Deindex(ctx context.Context, bucket, key string) error {
	if err := s.Search.DeleteObject(ctx, bucket, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}
