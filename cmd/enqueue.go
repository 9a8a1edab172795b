package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bradmartin/ksync/internal/entity"
)

var enqueueDelete bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <collection> [file]",
	Short: "Journal a mutation from a JSON entity (file or stdin)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection := args[0]

		var data []byte
		var err error
		if len(args) == 2 {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read entity: %w", err)
		}

		var ent entity.Entity
		if err := json.Unmarshal(data, &ent); err != nil {
			return fmt.Errorf("parse entity: %w", err)
		}

		mgr, adapter, err := openManager()
		if err != nil {
			return err
		}
		defer adapter.Close()

		ctx := context.Background()
		if enqueueDelete {
			_, err = mgr.EnqueueDelete(ctx, collection, ent)
		} else {
			_, err = mgr.EnqueueCreateOrUpdate(ctx, collection, ent)
		}
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s on %s\n", ent.ID(), collection)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().BoolVar(&enqueueDelete, "delete", false, "journal a delete instead of a write")
	rootCmd.AddCommand(enqueueCmd)
}
