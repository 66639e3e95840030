package service_test

import (
	"context"
	"io"
	"testing"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var (
	admin = domain.Identity{ID: "id-admin", Username: "root", Role: jwtx.RoleAdmin}
	alice = domain.Identity{ID: "id-alice", Username: "alice", Role: jwtx.RoleUser}
	bob   = domain.Identity{ID: "id-bob", Username: "bob", Role: jwtx.RoleUser}
)

type fixture struct {
	files   *service.Files
	buckets *service.Buckets
	search  *service.Search
	blobs   *blob.MemoryStore
	index   *search.MemoryIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := newTestStore(t)
	blobs := blob.NewMemoryStore()
	index := search.NewMemoryIndex()

	return &fixture{
		files:   &service.Files{Blobs: blobs, Store: st, Search: index},
		buckets: &service.Buckets{Blobs: blobs, Store: st, Search: index},
		search:  &service.Search{Index: index},
		blobs:   blobs,
		index:   index,
	}
}

func TestCanDelete(t *testing.T) {
	owner := "id-alice"

	tests := []struct {
		name  string
		id    domain.Identity
		owner *string
		want  bool
	}{
		{"admin deletes anything", admin, &owner, true},
		{"owner deletes own", alice, &owner, true},
		{"stranger blocked", bob, &owner, false},
		{"anyone deletes unowned", bob, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, service.CanDelete(tt.id, tt.owner))
		})
	}
}

func TestBucketLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("create and list", func(t *testing.T) {
		require.NoError(t, f.buckets.Create(ctx, "docs"))

		err := f.buckets.Create(ctx, "docs")
		require.ErrorIs(t, err, service.ErrAlreadyExists)

		buckets, err := f.buckets.List(ctx)
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		require.Equal(t, "docs", buckets[0].Name)
	})

	t.Run("bad names rejected", func(t *testing.T) {
		for _, name := range []string{"", "A", "UPPER", "ab", "-leading", "trailing-", "has spaces"} {
			err := f.buckets.Create(ctx, name)
			require.ErrorIs(t, err, service.ErrInvalidInput, "name %q", name)
		}
	})

	t.Run("delete purges contents and projections", func(t *testing.T) {
		_, err := f.files.Upload(ctx, alice, "docs", "a/one.txt", []byte("alpha"), "text/plain")
		require.NoError(t, err)
		_, err = f.files.Upload(ctx, alice, "docs", "a/two.txt", []byte("beta"), "text/plain")
		require.NoError(t, err)
		require.Equal(t, 2, f.index.Len())

		require.NoError(t, f.buckets.Delete(ctx, "docs"))

		buckets, err := f.buckets.List(ctx)
		require.NoError(t, err)
		require.Empty(t, buckets)
		require.Equal(t, 0, f.index.Len())
	})

	t.Run("delete missing bucket", func(t *testing.T) {
		err := f.buckets.Delete(ctx, "ghost")
		require.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestFilesUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	t.Run("records owner and indexes", func(t *testing.T) {
		info, err := f.files.Upload(ctx, alice, "docs", "notes/todo.txt", []byte("buy milk"), "text/plain")
		require.NoError(t, err)
		require.Equal(t, "notes/todo.txt", info.Key)
		require.Equal(t, int64(8), info.Size)

		entries, err := f.files.List(ctx, "docs", "notes/", true)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].OwnerID)
		require.Equal(t, alice.ID, *entries[0].OwnerID)
		require.Equal(t, "alice", *entries[0].OwnerName)
	})

	t.Run("anonymous identity leaves object unowned", func(t *testing.T) {
		_, err := f.files.Upload(ctx, domain.Identity{}, "docs", "orphan.txt", []byte("x"), "text/plain")
		require.NoError(t, err)

		entries, err := f.files.List(ctx, "docs", "orphan.txt", true)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Nil(t, entries[0].OwnerID)
	})

	t.Run("bad keys rejected", func(t *testing.T) {
		for _, key := range []string{"", "folder/", "/abs.txt", "a/../b.txt", ".."} {
			_, err := f.files.Upload(ctx, alice, "docs", key, []byte("x"), "text/plain")
			require.ErrorIs(t, err, service.ErrInvalidInput, "key %q", key)
		}
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := f.files.Upload(ctx, alice, "ghost", "a.txt", []byte("x"), "text/plain")
		require.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("re-upload replaces owner", func(t *testing.T) {
		_, err := f.files.Upload(ctx, alice, "docs", "shared.txt", []byte("v1"), "text/plain")
		require.NoError(t, err)
		_, err = f.files.Upload(ctx, bob, "docs", "shared.txt", []byte("v2"), "text/plain")
		require.NoError(t, err)

		entries, err := f.files.List(ctx, "docs", "shared.txt", true)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, bob.ID, *entries[0].OwnerID)
	})
}

func TestFilesDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	_, err := f.files.Upload(ctx, alice, "docs", "hello.txt", []byte("hello world"), "text/plain")
	require.NoError(t, err)

	obj, err := f.files.Download(ctx, "docs", "hello.txt")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
	require.Equal(t, "text/plain", obj.Info.ContentType)

	_, err = f.files.Download(ctx, "docs", "missing.txt")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestFilesDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	upload := func(id domain.Identity, key string) {
		t.Helper()
		_, err := f.files.Upload(ctx, id, "docs", key, []byte("data"), "text/plain")
		require.NoError(t, err)
	}

	t.Run("owner deletes own", func(t *testing.T) {
		upload(alice, "mine.txt")
		require.NoError(t, f.files.Delete(ctx, alice, "docs", []string{"mine.txt"}))

		entries, err := f.files.List(ctx, "docs", "mine.txt", true)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("stranger blocked", func(t *testing.T) {
		upload(alice, "private.txt")
		err := f.files.Delete(ctx, bob, "docs", []string{"private.txt"})
		require.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("admin overrides", func(t *testing.T) {
		require.NoError(t, f.files.Delete(ctx, admin, "docs", []string{"private.txt"}))
	})

	t.Run("one foreign key fails the whole batch", func(t *testing.T) {
		upload(alice, "batch/a.txt")
		upload(alice, "batch/b.txt")
		upload(bob, "batch/c.txt")

		err := f.files.Delete(ctx, alice, "docs", []string{"batch/a.txt", "batch/b.txt", "batch/c.txt"})
		require.ErrorIs(t, err, service.ErrForbidden)

		// Nothing was touched.
		entries, err := f.files.List(ctx, "docs", "batch/", true)
		require.NoError(t, err)
		require.Len(t, entries, 3)
	})

	t.Run("unowned objects deletable by anyone", func(t *testing.T) {
		upload(domain.Identity{}, "legacy.txt")
		require.NoError(t, f.files.Delete(ctx, bob, "docs", []string{"legacy.txt"}))
	})

	t.Run("deindexes", func(t *testing.T) {
		before := f.index.Len()
		upload(alice, "indexed.txt")
		require.Equal(t, before+1, f.index.Len())

		require.NoError(t, f.files.Delete(ctx, alice, "docs", []string{"indexed.txt"}))
		require.Equal(t, before, f.index.Len())
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		err := f.files.Delete(ctx, alice, "docs", nil)
		require.ErrorIs(t, err, service.ErrInvalidInput)
	})
}

func TestFilesDeletePrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	for _, key := range []string{"reports/q1.pdf", "reports/q2.pdf", "keep.txt"} {
		_, err := f.files.Upload(ctx, alice, "docs", key, []byte("data"), "application/pdf")
		require.NoError(t, err)
	}

	t.Run("prefix must end with slash", func(t *testing.T) {
		err := f.files.DeletePrefix(ctx, alice, "docs", "reports")
		require.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("removes everything under the prefix", func(t *testing.T) {
		require.NoError(t, f.files.DeletePrefix(ctx, alice, "docs", "reports/"))

		entries, err := f.files.List(ctx, "docs", "", true)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "keep.txt", entries[0].Key)
	})

	t.Run("empty prefix is a no-op", func(t *testing.T) {
		require.NoError(t, f.files.DeletePrefix(ctx, alice, "docs", "empty/"))
	})
}

func TestFilesReindex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	_, err := f.files.Upload(ctx, alice, "docs", "doc.txt", []byte("searchable words"), "text/plain")
	require.NoError(t, err)

	// Simulate projection loss and rebuild from the blob.
	require.NoError(t, f.index.DeleteObject(ctx, "docs", "doc.txt"))
	require.Equal(t, 0, f.index.Len())

	require.NoError(t, f.files.Reindex(ctx, "docs", "doc.txt"))
	require.Equal(t, 1, f.index.Len())

	hits, err := f.search.Query(ctx, alice, "searchable", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, alice.ID, hits[0].OwnerID)

	t.Run("missing object", func(t *testing.T) {
		err := f.files.Reindex(ctx, "docs", "ghost.txt")
		require.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestSearchScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.buckets.Create(ctx, "docs"))

	_, err := f.files.Upload(ctx, alice, "docs", "alice-report.txt", []byte("quarterly numbers"), "text/plain")
	require.NoError(t, err)
	_, err = f.files.Upload(ctx, bob, "docs", "bob-report.txt", []byte("quarterly numbers"), "text/plain")
	require.NoError(t, err)

	t.Run("users see only their own", func(t *testing.T) {
		hits, err := f.search.Query(ctx, alice, "quarterly", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, "alice-report.txt", hits[0].Filename)
	})

	t.Run("admins see everything", func(t *testing.T) {
		hits, err := f.search.Query(ctx, admin, "quarterly", 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
	})

	t.Run("empty query matches all in scope", func(t *testing.T) {
		hits, err := f.search.Query(ctx, bob, "", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
	})
}
