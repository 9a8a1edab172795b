// Package sync implements the offline write-synchronization engine: a
// durable journal of pending mutations, a coalescer that keeps only the
// newest mutation per entity, and a push pipeline that drains the
// journal against the remote backend in bounded concurrent batches.
package sync

import (
	"errors"
	"fmt"

	"github.com/bradmartin/ksync/internal/entity"
)

// Method is the kind of pending mutation a journal record carries.
type Method string

const (
	// MethodCreateOrUpdate is written as POST or PUT at push time,
	// depending on whether the entity is device-local.
	MethodCreateOrUpdate Method = "create-or-update"

	// MethodDelete removes the entity from the remote.
	MethodDelete Method = "delete"
)

// Journal and push errors.
var (
	ErrMissingEntityID   = errors.New("entity missing _id")
	ErrMissingCollection = errors.New("collection name missing")
	ErrUnknownMethod     = errors.New("unrecognized sync method")
	ErrPushInProgress    = errors.New("push already in progress")
)

// Record is one row of the sync journal: a pending mutation against one
// entity, keyed by a monotonic sequence number that is never reused.
type Record struct {
	Key        uint64
	EntityID   string
	Collection string
	Method     Method

	// Entity is a snapshot taken at enqueue time. For deletes it is
	// sufficient to repair local state if the remote refuses the
	// operation.
	Entity entity.Entity
}

// recordID derives the storage id from the key. Zero-padding keeps
// lexicographic and numeric order aligned, and the primary-key
// uniqueness of the adapter enforces key uniqueness.
func recordID(key uint64) string {
	return fmt.Sprintf("%020d", key)
}

// toDoc encodes a record as a storage document.
func (r Record) toDoc() entity.Entity {
	return entity.Entity{
		entity.IDAttribute: recordID(r.Key),
		"key":              float64(r.Key),
		"entityId":         r.EntityID,
		"collection":       r.Collection,
		"method":           string(r.Method),
		"entity":           map[string]any(r.Entity),
	}
}

// recordFromDoc decodes a storage document back into a record. The
// method is carried verbatim; push reports unknown methods per record
// rather than failing the decode.
func recordFromDoc(doc entity.Entity) (Record, error) {
	key, ok := doc["key"].(float64)
	if !ok || key < 0 {
		return Record{}, fmt.Errorf("journal document %q has no valid key", doc.ID())
	}
	entityID, _ := doc["entityId"].(string)
	if entityID == "" {
		return Record{}, fmt.Errorf("journal document %q: %w", doc.ID(), ErrMissingEntityID)
	}
	collection, _ := doc["collection"].(string)
	if collection == "" {
		return Record{}, fmt.Errorf("journal document %q: %w", doc.ID(), ErrMissingCollection)
	}
	method, _ := doc["method"].(string)

	var snapshot entity.Entity
	if m, ok := doc["entity"].(map[string]any); ok {
		snapshot = entity.Entity(m)
	}
	return Record{
		Key:        uint64(key),
		EntityID:   entityID,
		Collection: collection,
		Method:     Method(method),
		Entity:     snapshot,
	}, nil
}
