package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bradmartin/ksync/internal/query"
)

var statusCollection string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the number of pending mutations",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, adapter, err := openManager()
		if err != nil {
			return err
		}
		defer adapter.Close()

		var q *query.Query
		if statusCollection != "" {
			q = query.New(map[string]any{"collection": statusCollection})
		}
		n, err := mgr.Count(context.Background(), q)
		if err != nil {
			return err
		}
		if statusCollection != "" {
			fmt.Printf("%d pending mutation(s) for %s\n", n, statusCollection)
		} else {
			fmt.Printf("%d pending mutation(s)\n", n)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusCollection, "collection", "c", "", "limit to one collection")
	rootCmd.AddCommand(statusCmd)
}
