package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/internal/usecase/search"
	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/index"
	"github.com/ChrisMcGann/msdb/pkg/match"
	"github.com/ChrisMcGann/msdb/pkg/reader/peaklist"
	"github.com/ChrisMcGann/msdb/pkg/store/sqlite"
	"github.com/ChrisMcGann/msdb/pkg/writer/table"
)

var (
	// Flags for search command
	peaksFile    string
	resultFile   string
	searchMode   string
	outputFormat string
	digits       int
	rtTolerance  float64
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Match a peak list against a reference database",
	Long: `Match every peak of a peak list (CSV or TSV with an mz column and an optional
rt column) against a reference database. Each reference mass is adjusted with
the adduct of the chosen mode and compared to the peak m/z within the
tolerance window. With --rt-tol, peaks and entries that both carry a retention
time must also agree within that tolerance.

Examples:
  # Positive mode, 5 ppm window (the default tolerance)
  msdb search --db library.db --peaks peaks.tsv --mode pos

  # Absolute window of 0.01 shifted by 0.002, with RT filtering, as JSON
  msdb search --db library.db --peaks peaks.csv --mode neg --unit absolute \
    --shift 0.002 --precision 0.01 --rt-tol 10 --format json`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"db":        "database.path",
			"unit":      "tolerance.unit",
			"shift":     "tolerance.shift",
			"precision": "tolerance.precision",
			"adducts":   "adducts.file",
			"workers":   "search.workers",
		})
	},
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("db", "msdb.db", "Reference database file")
	searchCmd.Flags().StringVarP(&peaksFile, "peaks", "i", "", "Peak list file, CSV or TSV (required)")
	searchCmd.Flags().StringVarP(&resultFile, "out", "o", "", "Output file (default: stdout)")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "Ionization mode: pos or neg (required)")
	searchCmd.Flags().String("unit", "ppm", "Tolerance unit: ppm or absolute")
	searchCmd.Flags().Float64("shift", 0, "Systematic m/z shift of the instrument")
	searchCmd.Flags().Float64("precision", 5, "Half-width of the tolerance window")
	searchCmd.Flags().Float64Var(&rtTolerance, "rt-tol", 0, "Retention time tolerance (unset = no RT filtering)")
	searchCmd.Flags().String("adducts", "", "CSV file with extra adduct definitions (name,mass,charge[,multiplier])")
	searchCmd.Flags().Int("workers", 4, "Concurrent query chunks per search")
	searchCmd.Flags().StringVar(&outputFormat, "format", "tsv", "Output format: tsv, json, or yaml")
	searchCmd.Flags().IntVar(&digits, "digits", 0, "Decimal places for m/z columns in TSV output (0 = full precision)")

	searchCmd.MarkFlagRequired("peaks")
	searchCmd.MarkFlagRequired("mode")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cmd.Flags().Changed("rt-tol") {
		cfg.Tolerance.RTTolerance = &rtTolerance
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	mode, err := core.ParseMode(searchMode)
	if err != nil {
		return err
	}
	format, err := table.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	queries, err := readPeaks(peaksFile)
	if err != nil {
		return err
	}

	start := time.Now()
	entries, err := sqlite.LoadEntries(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to load reference database: %w", err)
	}
	snapshot := index.NewSnapshot()
	ix, err := snapshot.Rebuild(entries)
	if err != nil {
		return fmt.Errorf("failed to index reference database: %w", err)
	}
	log.Debug("reference index built",
		zap.String("database", cfg.Database.Path),
		zap.Int("entries", ix.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)

	engineConfig, err := cfg.EngineConfig(log)
	if err != nil {
		return err
	}
	engine, err := match.NewEngine(snapshot, engineConfig)
	if err != nil {
		return err
	}
	searcher := search.NewInstrumentedSearcher(engine, log)

	result, err := searcher.Search(match.Request{
		Queries:     queries,
		Mode:        mode,
		Shift:       cfg.Tolerance.Shift,
		Precision:   cfg.Tolerance.Precision,
		RTTolerance: cfg.Tolerance.RTTolerance,
	})
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if resultFile != "" {
		f, err := os.Create(resultFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := table.Write(out, result, format, digits); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Matched %d of %d peaks (%d matches against %d entries)\n",
		result.MatchedQueries(), len(queries), result.Len(), ix.Len())
	return nil
}

func readPeaks(path string) ([]core.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open peak list: %w", err)
	}
	defer f.Close()

	queries, err := peaklist.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read peak list %s: %w", path, err)
	}
	return queries, nil
}
