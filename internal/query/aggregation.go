package query

import (
	"fmt"

	"github.com/bradmartin/ksync/internal/entity"
)

// ReduceKind enumerates the supported aggregation reducers.
type ReduceKind string

const (
	ReduceCount ReduceKind = "count"
	ReduceSum   ReduceKind = "sum"
	ReduceMin   ReduceKind = "min"
	ReduceMax   ReduceKind = "max"
	ReduceAvg   ReduceKind = "avg"
)

// Aggregation groups documents by the given fields and reduces each
// group to a single value stored under Alias ("result" when empty).
type Aggregation struct {
	// Condition pre-filters the documents before grouping.
	Condition *Query

	GroupBy []string
	Reduce  ReduceKind

	// Field is the numeric field reduced by sum/min/max/avg. Count
	// ignores it.
	Field string

	Alias string
}

// Run evaluates the aggregation over a document list. Each output row
// carries the group-by field values plus the reduced result.
func (a Aggregation) Run(docs []entity.Entity) ([]entity.Entity, error) {
	switch a.Reduce {
	case ReduceCount, ReduceSum, ReduceMin, ReduceMax, ReduceAvg:
	default:
		return nil, fmt.Errorf("unknown reduce kind %q", a.Reduce)
	}
	if a.Reduce != ReduceCount && a.Field == "" {
		return nil, fmt.Errorf("reduce %q requires a field", a.Reduce)
	}
	alias := a.Alias
	if alias == "" {
		alias = "result"
	}

	type group struct {
		key   entity.Entity
		count int
		sum   float64
		min   float64
		max   float64
		seen  bool
	}
	groups := make(map[string]*group)
	var order []string

	for _, doc := range docs {
		if a.Condition != nil && !a.Condition.Matches(doc) {
			continue
		}
		key := ""
		keyDoc := entity.Entity{}
		for _, f := range a.GroupBy {
			v, _ := lookup(doc, f)
			keyDoc[f] = v
			key += fmt.Sprintf("%s=%v;", f, v)
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: keyDoc}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		if a.Reduce != ReduceCount {
			v, present := lookup(doc, a.Field)
			n, numeric := toFloat(v)
			if !present || !numeric {
				continue
			}
			g.sum += n
			if !g.seen || n < g.min {
				g.min = n
			}
			if !g.seen || n > g.max {
				g.max = n
			}
			g.seen = true
		}
	}

	out := make([]entity.Entity, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := g.key
		switch a.Reduce {
		case ReduceCount:
			row[alias] = float64(g.count)
		case ReduceSum:
			row[alias] = g.sum
		case ReduceMin:
			row[alias] = g.min
		case ReduceMax:
			row[alias] = g.max
		case ReduceAvg:
			if g.count > 0 {
				row[alias] = g.sum / float64(g.count)
			} else {
				row[alias] = 0.0
			}
		}
		out = append(out, row)
	}
	return out, nil
}
