// Package snapshot persists the known users and their display names so the
// totals survive restarts.
package snapshot

import (
	"context"
	"errors"
	"sort"
)

// ErrSaveSuspended is returned by Save while the existing snapshot could not
// be read, so a partial view never replaces it.
var ErrSaveSuspended = errors.New("snapshot: save suspended until a load succeeds")

// Data is the durable part of the presence store.
type Data struct {
	Known []int64
	Names map[int64]string
}

// Store loads and saves snapshots. Save replaces the previous snapshot
// entirely or leaves it untouched on failure.
type Store interface {
	Load(ctx context.Context) (Data, error)
	Save(ctx context.Context, data Data) error
}

// FromNames builds a snapshot where every named user is known.
func FromNames(names map[int64]string) Data {
	d := Data{
		Known: make([]int64, 0, len(names)),
		Names: make(map[int64]string, len(names)),
	}
	for id, name := range names {
		d.Known = append(d.Known, id)
		d.Names[id] = name
	}
	sort.Slice(d.Known, func(i, j int) bool { return d.Known[i] < d.Known[j] })
	return d
}

func sortedIDs(names map[int64]string) []int64 {
	ids := make([]int64, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
