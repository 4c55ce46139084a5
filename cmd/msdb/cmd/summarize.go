package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/msdb/pkg/store/sqlite"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize reference database contents",
	Long: `Print summary statistics about a reference database including entry count,
neutral mass range, retention time coverage and attribution labels. Without an
argument the configured database is summarized.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	path := cfg.Database.Path
	if len(args) == 1 {
		path = args[0]
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summary(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s\n", path)
	if sum.Description != "" {
		fmt.Printf("Description: %s\n", sum.Description)
	}
	if sum.CreationDate != "" {
		fmt.Printf("Created: %s\n", sum.CreationDate)
	}
	fmt.Printf("Entries: %d\n", sum.Entries)
	if sum.Entries == 0 {
		return nil
	}
	fmt.Printf("Neutral mass: %.4f - %.4f\n", sum.MinMass, sum.MaxMass)
	fmt.Printf("With retention time: %d (%.1f%%)\n", sum.WithRT, 100*float64(sum.WithRT)/float64(sum.Entries))

	labels := make([]string, 0, len(sum.Attributions))
	for label := range sum.Attributions {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Printf("Attributions:\n")
	for _, label := range labels {
		name := label
		if name == "" {
			name = "(none)"
		}
		fmt.Printf("  %-16s %d\n", name, sum.Attributions[label])
	}
	return nil
}
