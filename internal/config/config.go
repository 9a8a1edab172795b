// Package config holds the engine configuration: backend coordinates,
// attribute names, and sync tuning knobs, with env-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidName is returned when a collection or database name fails
// validation.
var ErrInvalidName = errors.New("invalid name")

// namePattern constrains collection and database names.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

// Backend kinds for the storage adapter preference list.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Defaults for the env-overridable knobs.
const (
	DefaultNamespace     = "appdata"
	DefaultSyncTable     = "kinvey_sync"
	DefaultIDAttribute   = "_id"
	DefaultKMDAttribute  = "_kmd"
	DefaultPushBatchSize = 100
)

// Config is the full engine configuration.
type Config struct {
	// Remote backend coordinates.
	Protocol string // "https" unless overridden
	Host     string
	AppKey   string

	// InstanceID scopes the persisted sync counter to one client
	// instance. Generated when empty.
	InstanceID string

	// Attribute names in the entity wire format.
	IDAttribute  string
	KMDAttribute string

	// Namespace is the REST namespace segment (default "appdata").
	Namespace string

	// SyncTable is the reserved journal table name.
	SyncTable string

	// PushBatchSize bounds the number of concurrent remote operations
	// per push batch.
	PushBatchSize int

	// AdapterPreference is the ordered backend probe list.
	AdapterPreference []string

	// RequestTimeout applies to each remote call; zero means the HTTP
	// client default.
	RequestTimeout time.Duration

	// DataDir is where adapter backends keep their files.
	DataDir string
}

// Load builds a Config from defaults and environment overrides.
func Load() Config {
	cfg := Config{
		Protocol:          "https",
		IDAttribute:       envOr("KINVEY_ID_ATTRIBUTE", DefaultIDAttribute),
		KMDAttribute:      envOr("KINVEY_KMD_ATTRIBUTE", DefaultKMDAttribute),
		Namespace:         envOr("KINVEY_DATASTORE_NAMESPACE", DefaultNamespace),
		SyncTable:         envOr("KINVEY_SYNC_COLLECTION_NAME", DefaultSyncTable),
		PushBatchSize:     DefaultPushBatchSize,
		AdapterPreference: []string{BackendBadger, BackendSQLite, BackendBolt},
	}
	if v := os.Getenv("KINVEY_PUSH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PushBatchSize = n
		}
	}
	return cfg
}

// Normalize fills derived and generated fields. It is idempotent.
func (c *Config) Normalize() {
	if c.Protocol == "" {
		c.Protocol = "https"
	}
	if c.IDAttribute == "" {
		c.IDAttribute = DefaultIDAttribute
	}
	if c.KMDAttribute == "" {
		c.KMDAttribute = DefaultKMDAttribute
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.SyncTable == "" {
		c.SyncTable = DefaultSyncTable
	}
	if c.PushBatchSize <= 0 {
		c.PushBatchSize = DefaultPushBatchSize
	}
	if len(c.AdapterPreference) == 0 {
		c.AdapterPreference = []string{BackendBadger, BackendSQLite, BackendBolt}
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()
	}
}

// BaseURL returns the remote origin, e.g. "https://baas.example.com".
func (c Config) BaseURL() string {
	return c.Protocol + "://" + c.Host
}

// ValidateName checks a collection or database name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, namePattern.String())
	}
	return nil
}

// InstanceIDFor returns the client instance id persisted under dataDir,
// generating and saving one on first use. The id scopes the sync
// counter namespace, so it must survive process restarts.
func InstanceIDFor(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "instance-id")
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read instance id: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist instance id: %w", err)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
