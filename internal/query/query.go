// Package query defines the filter/sort/skip/limit descriptor the local
// store and the sync journal evaluate client-side, plus a small
// aggregation reducer. None of the storage backends expose native
// querying, so evaluation always happens over a full table read.
package query

import (
	"reflect"
	"sort"
	"strings"

	"github.com/bradmartin/ksync/internal/entity"
)

// Filter operators. A filter value that is not an operator map is an
// equality match; fields combine with implicit AND.
const (
	OpGT     = "$gt"
	OpGTE    = "$gte"
	OpLT     = "$lt"
	OpLTE    = "$lte"
	OpNE     = "$ne"
	OpIn     = "$in"
	OpExists = "$exists"
)

// SortField orders results by one field.
type SortField struct {
	Field      string
	Descending bool
}

// Query describes a selection over a collection.
// The zero value (and nil) matches every document.
type Query struct {
	Filter map[string]any
	Sort   []SortField
	Skip   int
	Limit  int
}

// New returns a query matching documents where each field equals the
// given value.
func New(filter map[string]any) *Query {
	return &Query{Filter: filter}
}

// Matches reports whether the document satisfies the filter. Sort, skip
// and limit are ignored here; they only apply to result sets.
func (q *Query) Matches(doc entity.Entity) bool {
	if q == nil || len(q.Filter) == 0 {
		return true
	}
	for field, cond := range q.Filter {
		val, present := lookup(doc, field)
		if !matchField(val, present, cond) {
			return false
		}
	}
	return true
}

// Apply evaluates the full query over a document list: filter, stable
// sort, then skip/limit.
func (q *Query) Apply(docs []entity.Entity) []entity.Entity {
	if q == nil {
		return docs
	}
	var out []entity.Entity
	for _, doc := range docs {
		if q.Matches(doc) {
			out = append(out, doc)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range q.Sort {
				a, _ := lookup(out[i], s.Field)
				b, _ := lookup(out[j], s.Field)
				c := compare(a, b)
				if c == 0 {
					continue
				}
				if s.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

// CountMatches counts filter matches, ignoring sort/skip/limit.
func (q *Query) CountMatches(docs []entity.Entity) int {
	n := 0
	for _, doc := range docs {
		if q.Matches(doc) {
			n++
		}
	}
	return n
}

// lookup resolves a possibly dotted field path.
func lookup(doc entity.Entity, field string) (any, bool) {
	if !strings.Contains(field, ".") {
		v, ok := doc[field]
		return v, ok
	}
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchField(val any, present bool, cond any) bool {
	ops, ok := cond.(map[string]any)
	if !ok {
		return present && equal(val, cond)
	}
	// An empty map is an equality match against an empty map, not an
	// operator set.
	if len(ops) == 0 {
		return present && equal(val, cond)
	}
	for op, want := range ops {
		switch op {
		case OpGT:
			if !present || compare(val, want) <= 0 {
				return false
			}
		case OpGTE:
			if !present || compare(val, want) < 0 {
				return false
			}
		case OpLT:
			if !present || compare(val, want) >= 0 {
				return false
			}
		case OpLTE:
			if !present || compare(val, want) > 0 {
				return false
			}
		case OpNE:
			if present && equal(val, want) {
				return false
			}
		case OpIn:
			list, ok := want.([]any)
			if !ok || !present {
				return false
			}
			found := false
			for _, item := range list {
				if equal(val, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpExists:
			wantPresent, _ := want.(bool)
			if present != wantPresent {
				return false
			}
		default:
			// Unknown operator keys fall back to equality on the whole
			// map, mirroring a literal sub-document match.
			return present && equal(val, cond)
		}
	}
	return true
}

// equal compares two JSON-decoded values. Numbers compare by value so
// int-typed test fixtures and float64-decoded documents agree; composite
// values compare structurally.
func equal(a, b any) bool {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}

// compare orders two JSON-decoded scalars: -1, 0, or +1. Mismatched or
// unordered types compare equal, which keeps sorts stable.
func compare(a, b any) int {
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
		return 0
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb)
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
