package query

import (
	"testing"

	"github.com/bradmartin/ksync/internal/entity"
)

func docs() []entity.Entity {
	return []entity.Entity{
		{"_id": "a", "genre": "scifi", "pages": float64(412), "meta": map[string]any{"rating": float64(5)}},
		{"_id": "b", "genre": "scifi", "pages": float64(150)},
		{"_id": "c", "genre": "crime", "pages": float64(320), "meta": map[string]any{"rating": float64(3)}},
		{"_id": "d", "genre": "crime", "pages": float64(290)},
	}
}

func ids(in []entity.Entity) []string {
	out := make([]string, len(in))
	for i, doc := range in {
		out[i] = doc.ID()
	}
	return out
}

func TestNilQueryMatchesEverything(t *testing.T) {
	var q *Query
	out := q.Apply(docs())
	if len(out) != 4 {
		t.Fatalf("apply: got %d, want 4", len(out))
	}
	if !q.Matches(entity.Entity{"x": 1}) {
		t.Fatal("nil query must match any document")
	}
}

func TestEqualityFilter(t *testing.T) {
	q := New(map[string]any{"genre": "scifi"})
	out := q.Apply(docs())
	if len(out) != 2 {
		t.Fatalf("matches: got %v", ids(out))
	}
}

func TestComparisonOperators(t *testing.T) {
	tests := []struct {
		name   string
		filter map[string]any
		want   int
	}{
		{"gt", map[string]any{"pages": map[string]any{OpGT: 300}}, 2},
		{"gte", map[string]any{"pages": map[string]any{OpGTE: 320}}, 2},
		{"lt", map[string]any{"pages": map[string]any{OpLT: 200}}, 1},
		{"lte", map[string]any{"pages": map[string]any{OpLTE: 150}}, 1},
		{"ne", map[string]any{"genre": map[string]any{OpNE: "crime"}}, 2},
		{"in", map[string]any{"_id": map[string]any{OpIn: []any{"a", "d", "zz"}}}, 2},
		{"exists true", map[string]any{"meta": map[string]any{OpExists: true}}, 2},
		{"exists false", map[string]any{"meta": map[string]any{OpExists: false}}, 2},
		{"range", map[string]any{"pages": map[string]any{OpGT: 200, OpLT: 400}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.filter).CountMatches(docs())
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestImplicitAndAcrossFields(t *testing.T) {
	q := New(map[string]any{"genre": "crime", "pages": map[string]any{OpGT: 300}})
	out := q.Apply(docs())
	if len(out) != 1 || out[0].ID() != "c" {
		t.Fatalf("got %v, want [c]", ids(out))
	}
}

func TestDottedFieldPath(t *testing.T) {
	q := New(map[string]any{"meta.rating": map[string]any{OpGTE: 4}})
	out := q.Apply(docs())
	if len(out) != 1 || out[0].ID() != "a" {
		t.Fatalf("got %v, want [a]", ids(out))
	}
}

func TestSortSkipLimit(t *testing.T) {
	q := &Query{
		Sort:  []SortField{{Field: "pages", Descending: true}},
		Skip:  1,
		Limit: 2,
	}
	out := q.Apply(docs())
	got := ids(out)
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Fatalf("got %v, want [c d]", got)
	}
}

func TestSortTieBreaksStable(t *testing.T) {
	q := &Query{Sort: []SortField{{Field: "genre"}}}
	out := q.Apply(docs())
	got := ids(out)
	// crime before scifi; within a genre the input order is preserved.
	want := []string{"c", "d", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSkipPastEnd(t *testing.T) {
	q := &Query{Skip: 10}
	if out := q.Apply(docs()); len(out) != 0 {
		t.Fatalf("got %d, want 0", len(out))
	}
}

func TestCountMatchesIgnoresWindow(t *testing.T) {
	q := &Query{Filter: map[string]any{"genre": "scifi"}, Skip: 1, Limit: 1}
	if n := q.CountMatches(docs()); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
}

func TestGroupCount(t *testing.T) {
	rows, err := Aggregation{GroupBy: []string{"genre"}, Reduce: ReduceCount}.Run(docs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("groups: got %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row["result"] != float64(2) {
			t.Fatalf("group %v: got %v, want 2", row["genre"], row["result"])
		}
	}
}

func TestGroupAvgWithCondition(t *testing.T) {
	rows, err := Aggregation{
		Condition: New(map[string]any{"genre": "crime"}),
		GroupBy:   []string{"genre"},
		Reduce:    ReduceAvg,
		Field:     "pages",
	}.Run(docs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rows) != 1 || rows[0]["result"] != float64(305) {
		t.Fatalf("rows: %v", rows)
	}
}

func TestGroupValidation(t *testing.T) {
	if _, err := (Aggregation{Reduce: "median"}).Run(docs()); err == nil {
		t.Fatal("unknown reduce kind must error")
	}
	if _, err := (Aggregation{Reduce: ReduceSum}).Run(docs()); err == nil {
		t.Fatal("sum without field must error")
	}
}
