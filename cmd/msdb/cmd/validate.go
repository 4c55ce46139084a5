package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a compound library without importing it",
	Long: `Validate that an MSP library is well formed and that every record carries an
identifier and a positive neutral mass (given or computed from its formula).`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := detectFormat(path, ""); err != nil {
		return err
	}

	entries, err := readLibrary(path)
	if err != nil {
		return err
	}

	invalid := 0
	seen := make(map[string]int, len(entries))
	duplicates := 0
	for i := range entries {
		entry := &entries[i]
		if err := entry.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid entry %d: %v\n", i+1, err)
			invalid++
			continue
		}
		if first, ok := seen[entry.ID]; ok {
			fmt.Fprintf(os.Stderr, "Duplicate identifier %s (entries %d and %d)\n", entry.ID, first, i+1)
			duplicates++
			continue
		}
		seen[entry.ID] = i + 1
	}

	fmt.Printf("Entries: %d\n", len(entries))
	fmt.Printf("Valid: %d\n", len(entries)-invalid-duplicates)
	if invalid > 0 || duplicates > 0 {
		return fmt.Errorf("%d invalid and %d duplicate entries in %s", invalid, duplicates, path)
	}
	return nil
}
