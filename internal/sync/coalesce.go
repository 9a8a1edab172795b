package sync

import "sort"

// Coalesce reduces a record list to at most one record per entity: the
// one with the largest key wins, regardless of method, so a later
// delete supersedes earlier writes and a later write supersedes an
// earlier delete. The result is ordered by descending key, which keeps
// the reduction deterministic for the same input.
func Coalesce(recs []Record) []Record {
	if len(recs) <= 1 {
		return recs
	}
	sorted := make([]Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key > sorted[j].Key
	})

	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, rec := range sorted {
		if seen[rec.EntityID] {
			continue
		}
		seen[rec.EntityID] = true
		out = append(out, rec)
	}
	return out
}
