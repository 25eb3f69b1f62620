package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/junhanzh/ragstore"
	"github.com/junhanzh/ragstore/fetch"
	"github.com/junhanzh/ragstore/ingest"
)

var (
	ingestIncludes []string
	ingestExcludes []string
	ingestFresh    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url|file|directory> [more...]",
	Short: "Ingest documents into the index",
	Long: `Ingest fetches each argument, splits it into chunks, embeds them,
and stores the result. Arguments may be URLs, files (txt, md, pdf,
xlsx), or directories, which are walked recursively.

Examples:
  ragstore ingest https://example.com/article
  ragstore ingest report.pdf notes.md
  ragstore ingest ./docs --include "**/*.md" --exclude "drafts/**"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestIncludes, "include", nil, "glob patterns for files to include (directories only)")
	ingestCmd.Flags().StringSliceVar(&ingestExcludes, "exclude", nil, "glob patterns for files to exclude (directories only)")
	ingestCmd.Flags().BoolVar(&ingestFresh, "fresh", false, "bypass the page cache for URLs")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	targets, err := expandTargets(args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to ingest")
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	bar := progressbar.NewOptions(len(targets),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	counts := map[ingest.Status]int{}
	var failures int

	for _, target := range targets {
		var res *ingest.Result
		var err error

		if isURL(target) {
			var opts []ragstore.IngestOption
			if ingestFresh {
				opts = append(opts, ragstore.WithoutCache())
			}
			res, err = engine.IngestURL(cmd.Context(), target, opts...)
		} else {
			res, err = engine.IngestFile(cmd.Context(), target)
		}

		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", target, err)
		} else {
			counts[res.Status]++
		}
		bar.Add(1)
	}

	fmt.Printf("Ingested %d, skipped %d duplicates, resumed %d, empty %d",
		counts[ingest.StatusIngested], counts[ingest.StatusSkipped],
		counts[ingest.StatusResumed], counts[ingest.StatusEmpty])
	if failures > 0 {
		fmt.Printf(", %d failed", failures)
	}
	fmt.Println()

	if failures > 0 {
		return fmt.Errorf("%d of %d targets failed", failures, len(targets))
	}
	return nil
}

// expandTargets resolves directory arguments into their contained
// files; URLs and plain files pass through unchanged.
func expandTargets(args []string) ([]string, error) {
	var targets []string
	walker := fetch.NewWalker(ingestIncludes, ingestExcludes)

	for _, arg := range args {
		if isURL(arg) {
			targets = append(targets, arg)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			targets = append(targets, arg)
			continue
		}

		files, err := walker.Walk(arg)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
		targets = append(targets, files...)
	}
	return targets, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
