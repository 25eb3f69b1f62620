package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listAsJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAsJSON, "json", false, "output raw JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := engine.ListDocuments(cmd.Context())
	if err != nil {
		return err
	}

	if listAsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents ingested yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSOURCE\tCREATED")
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, title, d.Source, d.CreatedAt)
	}
	return w.Flush()
}
