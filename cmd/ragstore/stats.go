package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		stats, err := engine.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Documents:  %d\n", stats.Documents)
		fmt.Printf("Chunks:     %d\n", stats.Chunks)
		fmt.Printf("Embeddings: %d\n", stats.Embeddings)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
