package entity

import (
	"strings"
	"testing"
)

func TestIDAccessors(t *testing.T) {
	e := Entity{"_id": "abc", "v": 1}
	if e.ID() != "abc" {
		t.Fatalf("id: got %q, want abc", e.ID())
	}
	e.SetID("xyz")
	if e.ID() != "xyz" {
		t.Fatalf("id after set: got %q", e.ID())
	}
	if (Entity{"v": 1}).ID() != "" {
		t.Fatal("missing id must read as empty")
	}
	if (Entity{"_id": 42}).ID() != "" {
		t.Fatal("non-string id must read as empty")
	}
}

func TestIsLocalTruthiness(t *testing.T) {
	tests := []struct {
		name string
		e    Entity
		want bool
	}{
		{"bool true", Entity{"_kmd": map[string]any{"local": true}}, true},
		{"bool false", Entity{"_kmd": map[string]any{"local": false}}, false},
		{"string true", Entity{"_kmd": map[string]any{"local": "true"}}, true},
		{"number one", Entity{"_kmd": map[string]any{"local": float64(1)}}, true},
		{"number zero", Entity{"_kmd": map[string]any{"local": float64(0)}}, false},
		{"no marker", Entity{"_kmd": map[string]any{"ect": "2020"}}, false},
		{"no kmd", Entity{"_id": "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsLocal(); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripLocal(t *testing.T) {
	e := Entity{"_id": "local_ab", "_kmd": map[string]any{"local": true}, "v": 2}
	stripped := e.StripLocal()

	if _, ok := stripped["_id"]; ok {
		t.Fatal("_id must be stripped")
	}
	if _, ok := stripped["_kmd"]; ok {
		t.Fatal("emptied _kmd must be dropped")
	}
	if stripped["v"] != float64(2) {
		t.Fatalf("payload lost: %v", stripped)
	}

	// The original is untouched.
	if e.ID() != "local_ab" || !e.IsLocal() {
		t.Fatalf("original mutated: %v", e)
	}

	// Other metadata survives when local is removed.
	e2 := Entity{"_id": "a", "_kmd": map[string]any{"local": true, "ect": "2020"}}
	stripped2 := e2.StripLocal()
	kmd, ok := stripped2["_kmd"].(map[string]any)
	if !ok || kmd["ect"] != "2020" {
		t.Fatalf("non-local metadata lost: %v", stripped2)
	}
	if _, ok := kmd["local"]; ok {
		t.Fatal("local marker must be stripped")
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := Entity{"_id": "a", "nested": map[string]any{"k": "v"}}
	c := e.Clone()
	c["nested"].(map[string]any)["k"] = "changed"
	if e["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("clone shares nested state with original")
	}
}

func TestGenerateID(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(id, LocalIDPrefix) {
		t.Fatalf("id %q lacks prefix", id)
	}
	hexPart := strings.TrimPrefix(id, LocalIDPrefix)
	if len(hexPart) != 24 {
		t.Fatalf("hex part %q: got %d chars, want 24", hexPart, len(hexPart))
	}
	if !IsLocalID(id) {
		t.Fatal("generated id must be recognized as local")
	}
	if IsLocalID("srv7") {
		t.Fatal("server id must not be recognized as local")
	}

	other, err := GenerateID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if other == id {
		t.Fatal("ids must not repeat")
	}
}
