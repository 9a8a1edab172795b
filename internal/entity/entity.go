// Package entity defines the JSON-shaped document model shared by the
// local store, the sync journal, and the remote client.
package entity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Attribute names for the identifier and metadata envelope. They match
// the backend's wire format and may be overridden at engine construction
// (KINVEY_ID_ATTRIBUTE / KINVEY_KMD_ATTRIBUTE).
var (
	IDAttribute  = "_id"
	KMDAttribute = "_kmd"
)

// LocalIDPrefix marks identifiers generated on the device before the
// remote has acknowledged the entity.
const LocalIDPrefix = "local_"

// Entity is a JSON object with a string identifier and an optional
// metadata envelope.
type Entity map[string]any

// ID returns the entity's identifier, or "" if unset.
func (e Entity) ID() string {
	id, _ := e[IDAttribute].(string)
	return id
}

// SetID sets the entity's identifier.
func (e Entity) SetID(id string) {
	e[IDAttribute] = id
}

// IsLocal reports whether the entity's id was generated on the device
// and never acknowledged by the remote. The marker is truthy-valued in
// stored data (true, "true", or 1), so all three forms are honored.
func (e Entity) IsLocal() bool {
	kmd, ok := e[KMDAttribute].(map[string]any)
	if !ok {
		return false
	}
	switch v := kmd["local"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// StripLocal returns a copy with the id and the local marker removed,
// the shape the remote expects on a create of a device-born entity. An
// emptied metadata envelope is dropped entirely.
func (e Entity) StripLocal() Entity {
	out := e.Clone()
	delete(out, IDAttribute)
	if kmd, ok := out[KMDAttribute].(map[string]any); ok {
		delete(kmd, "local")
		if len(kmd) == 0 {
			delete(out, KMDAttribute)
		}
	}
	return out
}

// Clone returns a deep copy via a JSON round-trip, so nested maps and
// slices are not shared with the original.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		// Entities originate from JSON; a marshal failure means a caller
		// stored a non-JSON value. Fall back to a shallow copy.
		out := make(Entity, len(e))
		for k, v := range e {
			out[k] = v
		}
		return out
	}
	var out Entity
	if err := json.Unmarshal(data, &out); err != nil {
		out = make(Entity, len(e))
		for k, v := range e {
			out[k] = v
		}
	}
	return out
}

// idGenerator is the function used to generate local entity IDs.
// It can be replaced in tests to control ID generation.
var idGenerator = defaultGenerateID

// defaultGenerateID generates a device-local ID: 24 hex characters with
// the local_ prefix.
func defaultGenerateID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return LocalIDPrefix + hex.EncodeToString(b), nil
}

// GenerateID generates a device-local entity ID.
func GenerateID() (string, error) {
	return idGenerator()
}

// IsLocalID reports whether an identifier carries the device-local prefix.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
