package usecase

import (
	"context"
	"fmt"

	"github.com/user/forum-crawler/internal/repository"
)

// IDIndex is the set of post ids already in the store. It is loaded once per
// run and only grows as pages are committed.
type IDIndex struct {
	ids map[string]struct{}
}

// NewIDIndex builds an index from ids.
func NewIDIndex(ids []string) *IDIndex {
	x := &IDIndex{ids: make(map[string]struct{}, len(ids))}
	x.AddAll(ids)
	return x
}

// LoadIDIndex reads every stored id.
func LoadIDIndex(ctx context.Context, posts repository.PostRepository) (*IDIndex, error) {
	ids, err := posts.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}
	return NewIDIndex(ids), nil
}

// Contains reports whether id is known.
func (x *IDIndex) Contains(id string) bool {
	_, ok := x.ids[id]
	return ok
}

// Delta returns the ids not yet in the index, in input order.
func (x *IDIndex) Delta(ids []string) []string {
	var out []string
	for _, id := range ids {
		if !x.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// AddAll marks ids as stored.
func (x *IDIndex) AddAll(ids []string) {
	for _, id := range ids {
		x.ids[id] = struct{}{}
	}
}

// Len returns the number of known ids.
func (x *IDIndex) Len() int {
	return len(x.ids)
}
