package service

import (
	"context"
	"fmt"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/search"
)

// Search runs full-text queries over the file projection, scoped to the
// caller's ownership unless they are an admin.
type Search struct {
	Index search.Index
}

// Query searches filenames and extracted content. Regular users only see
// their own objects; admins see everything. Unlike the write paths, a
// broken backend surfaces here because there is nothing useful to return
// without it.
func (s *Search) Query(ctx context.Context, id domain.Identity, text string, limit int) ([]domain.SearchHit, error) {
	q := search.Query{Text: text, Limit: limit}
	if !id.IsAdmin() {
		q.OwnerID = id.ID
	}

	hits, err := s.Index.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return hits, nil
}
