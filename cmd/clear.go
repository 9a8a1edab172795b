package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bradmartin/ksync/internal/query"
)

var clearCollection string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop pending mutations without pushing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, adapter, err := openManager()
		if err != nil {
			return err
		}
		defer adapter.Close()

		var q *query.Query
		if clearCollection != "" {
			q = query.New(map[string]any{"collection": clearCollection})
		}
		if err := mgr.Clear(context.Background(), q); err != nil {
			return err
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().StringVarP(&clearCollection, "collection", "c", "", "limit to one collection")
	rootCmd.AddCommand(clearCmd)
}
