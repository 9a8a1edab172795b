package sync

import (
	"errors"
	"testing"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
)

func TestEnqueueRejectsInvalidCollectionName(t *testing.T) {
	mgr, _, _ := setupManager(t, echoHandler)

	bad := []string{"", "has space", "under_score", "way!", string(make([]byte, 129))}
	for _, name := range bad {
		if _, err := mgr.EnqueueCreateOrUpdate(ctx(), name, entity.Entity{"_id": "a"}); !errors.Is(err, config.ErrInvalidName) {
			t.Fatalf("collection %q: got %v, want ErrInvalidName", name, err)
		}
	}
}

func TestEnqueueReturnsInputUnchanged(t *testing.T) {
	mgr, _, _ := setupManager(t, echoHandler)

	in := []entity.Entity{
		{"_id": "a", "v": float64(1)},
		{"_id": "b", "v": float64(2)},
	}
	out, err := mgr.EnqueueCreateOrUpdate(ctx(), "books", in...)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(out) != 2 || out[0].ID() != "a" || out[1].ID() != "b" {
		t.Fatalf("returned entities: %v", out)
	}

	n, _ := mgr.Count(ctx(), nil)
	if n != 2 {
		t.Fatalf("count: got %d, want 2", n)
	}
}

func TestEnqueueDeleteRequiresID(t *testing.T) {
	mgr, _, _ := setupManager(t, echoHandler)

	if _, err := mgr.EnqueueDelete(ctx(), "books", entity.Entity{"v": 1}); !errors.Is(err, ErrMissingEntityID) {
		t.Fatalf("got %v, want ErrMissingEntityID", err)
	}
}

func TestManagerClear(t *testing.T) {
	mgr, _, _ := setupManager(t, echoHandler)

	if _, err := mgr.EnqueueCreateOrUpdate(ctx(), "books", entity.Entity{"_id": "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := mgr.Clear(ctx(), nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ := mgr.Count(ctx(), nil)
	if n != 0 {
		t.Fatalf("count after clear: got %d, want 0", n)
	}
}
