package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/filter"
	"github.com/ChrisMcGann/msdb/pkg/reader/msp"
	"github.com/ChrisMcGann/msdb/pkg/store/sqlite"
)

var (
	// Flags for import command
	inputFile    string
	inputFormat  string
	outputFile   string
	description  string
	minMass      float64
	maxMass      float64
	attributions string
	requireRT    bool
	rtOffset     float64
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a compound library into a SQLite database",
	Long: `Import a compound library in MSP format into a SQLite reference database
that the search and serve commands can load.

Examples:
  # Import an MSP file with default settings
  msdb import --in library.msp --out library.db

  # Keep only protonated entries between 50 and 1200 Da that carry a retention time
  msdb import --in library.msp --out library.db --min-mass 50 --max-mass 1200 \
    --attributions "[M+H]+" --require-rt`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Input file path (required)")
	importCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Input format: msp (auto-detect if not specified)")
	importCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (required)")
	importCmd.Flags().StringVar(&description, "description", "", "Library description stored in the database header")
	importCmd.Flags().Float64Var(&minMass, "min-mass", 0, "Keep only entries with neutral mass >= min-mass (0 = no bound)")
	importCmd.Flags().Float64Var(&maxMass, "max-mass", 0, "Keep only entries with neutral mass <= max-mass (0 = no bound)")
	importCmd.Flags().StringVar(&attributions, "attributions", "", "Comma-separated attribution labels to keep (e.g., '[M+H]+,[M+Na]+')")
	importCmd.Flags().BoolVar(&requireRT, "require-rt", false, "Keep only entries with a retention time")
	importCmd.Flags().Float64Var(&rtOffset, "rt-offset", 0, "Offset added to every retention time")

	importCmd.MarkFlagRequired("in")
	importCmd.MarkFlagRequired("out")
}

func runImport(cmd *cobra.Command, args []string) error {
	_, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Validate input file exists
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	format, err := detectFormat(inputFile, inputFormat)
	if err != nil {
		return err
	}

	fmt.Printf("Importing %s to %s...\n", inputFile, outputFile)
	fmt.Printf("Format: %s\n", format)

	filterConfig := &filter.Config{
		MinMass:   minMass,
		MaxMass:   maxMass,
		RequireRT: requireRT,
		RTOffset:  rtOffset,
	}
	if attributions != "" {
		for _, a := range strings.Split(attributions, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filterConfig.Attributions = append(filterConfig.Attributions, a)
			}
		}
		fmt.Printf("Attributions: %s\n", strings.Join(filterConfig.Attributions, ", "))
	}

	entries, err := readLibrary(inputFile)
	if err != nil {
		return err
	}
	read := len(entries)

	entries, invalid := filter.RemoveInvalidEntries(entries)
	beforeFilter := len(entries)
	entries = filterConfig.Apply(entries)
	filtered := beforeFilter - len(entries)
	entries, duplicates := filter.DeduplicateByID(entries)

	writer, err := sqlite.NewWriter(outputFile, description)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	for i := range entries {
		if err := writer.WriteEntry(&entries[i]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", entries[i].Label(), err)
		}
		if n := writer.Count(); n%1000 == 0 {
			fmt.Printf("Imported %d entries...\n", n)
		}
	}

	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}

	log.Info("library imported",
		zap.String("input", inputFile),
		zap.String("output", outputFile),
		zap.Int("read", read),
		zap.Int("written", writer.Count()),
		zap.Int("invalid", invalid),
		zap.Int("filtered", filtered),
		zap.Int("duplicates", duplicates),
	)

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Imported: %d entries\n", writer.Count())
	if invalid > 0 {
		fmt.Printf("Skipped: %d entries (validation errors)\n", invalid)
	}
	if filtered > 0 {
		fmt.Printf("Filtered: %d entries\n", filtered)
	}
	if duplicates > 0 {
		fmt.Printf("Duplicates: %d entries (identifier already imported)\n", duplicates)
	}
	fmt.Printf("Output: %s\n", outputFile)

	return nil
}

// detectFormat resolves the library format from the flag or the file extension.
func detectFormat(path, format string) (string, error) {
	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".msp":
			format = "msp"
		default:
			return "", fmt.Errorf("cannot auto-detect format from extension '%s', please specify --from", ext)
		}
	}

	format = strings.ToLower(format)
	if format != "msp" {
		return "", fmt.Errorf("invalid input format '%s', must be msp", format)
	}
	return format, nil
}

// readLibrary reads every record of an MSP library.
func readLibrary(path string) ([]core.ReferenceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	source := filepath.Base(path)
	reader := msp.NewReader(f)

	var entries []core.ReferenceEntry
	for reader.Next() {
		entry := reader.Entry()
		entry.SourceFile = source
		entries = append(entries, *entry)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("error reading input file: %w", err)
	}

	return entries, nil
}
