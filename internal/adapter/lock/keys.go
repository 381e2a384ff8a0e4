package lock

import (
	"sort"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

// ordered returns keys deduplicated and sorted by their string form. Every locker acquires in
// this order so two reservations over overlapping keys cannot deadlock.
func ordered(keys []domain.StockKey) []domain.StockKey {
	seen := make(map[domain.StockKey]struct{}, len(keys))
	out := make([]domain.StockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
