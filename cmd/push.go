package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bradmartin/ksync/internal/query"
)

var pushCollection string

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push pending mutations to the remote backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, adapter, err := openManager()
		if err != nil {
			return err
		}
		defer adapter.Close()

		var q *query.Query
		if pushCollection != "" {
			q = query.New(map[string]any{"collection": pushCollection})
		}
		results, err := mgr.Push(context.Background(), q)
		if err != nil {
			return err
		}

		pushed, failed := 0, 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Printf("  %s: %v\n", res.EntityID, res.Err)
				continue
			}
			pushed++
		}
		fmt.Printf("pushed %d, failed %d\n", pushed, failed)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVarP(&pushCollection, "collection", "c", "", "limit to one collection")
	rootCmd.AddCommand(pushCmd)
}
