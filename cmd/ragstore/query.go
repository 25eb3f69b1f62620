package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/junhanzh/ragstore"
)

var (
	queryTopK    int
	queryMinSim  float64
	queryAsJSON  bool
	queryContext bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Search the index for similar chunks",
	Long: `Query embeds the question and returns the stored chunks most
similar to it, ranked by cosine similarity.

Examples:
  ragstore query "how does leader election work"
  ragstore query --top-k 10 --min-similarity 0.5 "failover"
  ragstore query --context "failover"   # print an LLM-ready context block`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of results (default 5)")
	queryCmd.Flags().Float64Var(&queryMinSim, "min-similarity", 0, "similarity threshold (default 0.3)")
	queryCmd.Flags().BoolVar(&queryAsJSON, "json", false, "output raw JSON")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "output a formatted context block")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []ragstore.QueryOption
	if queryTopK > 0 {
		opts = append(opts, ragstore.WithTopK(queryTopK))
	}
	if queryMinSim > 0 {
		opts = append(opts, ragstore.WithMinSimilarity(queryMinSim))
	}

	res, err := engine.Retrieve(cmd.Context(), strings.Join(args, " "), opts...)
	if err != nil {
		return err
	}

	if queryAsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if queryContext {
		fmt.Println(res.Context())
		return nil
	}

	if !res.Indexed {
		fmt.Println("No documents have been indexed yet.")
		return nil
	}
	if len(res.Chunks) == 0 {
		fmt.Println("No relevant documents found.")
		return nil
	}

	for i, c := range res.Chunks {
		if i > 0 {
			fmt.Println()
		}
		title := c.Title
		if title == "" {
			title = c.Source
		}
		fmt.Printf("%d. %s (%.4f)\n", i+1, title, c.Similarity)
		fmt.Printf("   %s\n", strings.ReplaceAll(c.Content, "\n", "\n   "))
		fmt.Printf("   -- %s\n", c.Source)
	}
	return nil
}
