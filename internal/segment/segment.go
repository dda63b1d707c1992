// Package segment provides batched lookup of document segment metadata and
// the immutable per-run prefetch cache built from it.
package segment

import (
	"context"
	"strings"
)

// Segment is the metadata stored for one document excerpt.
type Segment struct {
	ID          string
	AssetID     string
	PageStart   int
	PageEnd     int
	HeadingPath string
	Content     string
}

// Store resolves segment ids to metadata. Implementations must support a
// single batched call for an arbitrary-size id set; per-item lookups inside a
// run are forbidden.
type Store interface {
	GetBatch(ctx context.Context, ids []string) (map[string]Segment, error)
}

// Cache is the read-only segment map for one review run. It is populated by
// exactly one batched Store call, never mutated afterwards, and discarded at
// run end. Two concurrent runs never share a Cache.
type Cache struct {
	segments map[string]Segment
}

// Prefetch builds a Cache by resolving the union of the given id sets with a
// single batched lookup. Duplicate and empty ids are dropped before the call.
func Prefetch(ctx context.Context, store Store, idSets ...[]string) (*Cache, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, set := range idSets {
		for _, id := range set {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return &Cache{segments: map[string]Segment{}}, nil
	}

	segments, err := store.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	if segments == nil {
		segments = map[string]Segment{}
	}

	return &Cache{segments: segments}, nil
}

// Get returns the cached segment for id, if it resolved.
func (c *Cache) Get(id string) (Segment, bool) {
	if c == nil {
		return Segment{}, false
	}
	seg, ok := c.segments[id]
	return seg, ok
}

// Len returns the number of resolved segments in the cache.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.segments)
}
