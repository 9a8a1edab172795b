// Package cmd implements the ksync CLI commands using cobra.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/remote"
	"github.com/bradmartin/ksync/internal/storage"
	"github.com/bradmartin/ksync/internal/sync"
	"github.com/bradmartin/ksync/pkg/log"
)

var (
	flagHost     string
	flagAppKey   string
	flagProtocol string
	flagDataDir  string
	flagDatabase string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "ksync",
	Short: "Offline-first write-synchronization engine",
	Long: `ksync journals local entity mutations in a durable sync table and
pushes them to a remote backend in bounded concurrent batches.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		if flagVerbose {
			level = log.DebugLevel
		}
		log.Init(log.Config{Level: level})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagHost, "host", os.Getenv("KINVEY_HOST"), "remote backend host")
	pf.StringVar(&flagAppKey, "app-key", os.Getenv("KINVEY_APP_KEY"), "application key")
	pf.StringVar(&flagProtocol, "protocol", "https", "remote protocol")
	pf.StringVar(&flagDataDir, "data-dir", defaultDataDir(), "local storage directory")
	pf.StringVar(&flagDatabase, "db", "ksync", "local database name")
	pf.BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ksync"
	}
	return home + "/.ksync"
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openManager builds the engine from flags and env. The caller closes
// the returned adapter.
func openManager() (*sync.Manager, storage.Adapter, error) {
	cfg := config.Load()
	cfg.Host = flagHost
	cfg.AppKey = flagAppKey
	cfg.Protocol = flagProtocol
	cfg.DataDir = flagDataDir

	// The instance id scopes the persisted sync counter; it must be
	// stable across invocations.
	instanceID, err := config.InstanceIDFor(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	cfg.InstanceID = instanceID
	cfg.Normalize()

	adapter, err := storage.Open(flagDatabase, storage.Options{
		DataDir:    cfg.DataDir,
		Preference: cfg.AdapterPreference,
	})
	if err != nil {
		return nil, nil, err
	}

	client := remote.New(cfg)
	if token := os.Getenv("KINVEY_AUTH_TOKEN"); token != "" {
		client.Authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}
	return sync.NewManager(adapter, client, cfg), adapter, nil
}
