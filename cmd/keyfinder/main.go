package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-key/algorithms/tonal"
	"github.com/RyanBlaney/sonido-key/keyfinder"
	"github.com/RyanBlaney/sonido-key/keyfinder/config"
	"github.com/RyanBlaney/sonido-key/logging"
	"github.com/RyanBlaney/sonido-key/transcode"
)

var version = "0.1.0"

var (
	envFiles   []string
	logLevel   string
	startTime  time.Duration
	endTime    time.Duration
	margin     float64
	noContext  bool
	showChroma bool
	showTable  bool
	canonical  bool
	jsonOutput bool
	workers    int
	noProgress bool

	cfg *config.AnalysisConfig
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "keyfinder",
	Short: "Estimate the musical key of audio files",
	Long: `keyfinder estimates the key of an audio excerpt with the
Krumhansl-Schmuckler algorithm: the excerpt's pitch class distribution
is correlated against the 24 major and minor key profiles.

Settings are read from KEYFINDER_* environment variables and .env files.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Detect the key of an audio file",
	Long: `Detect the key of an audio file or an excerpt of it.

Examples:
  keyfinder detect song.mp3
  keyfinder detect song.wav --start 30s --end 45s --chroma
  keyfinder detect song.flac --table --no-context`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

var tableCmd = &cobra.Command{
	Use:   "table <file>",
	Short: "Print the correlation of every key",
	Long: `Print the correlation coefficient of all 24 keys, ranked by
correlation or in canonical order (C major ... B minor) with --canonical.`,
	Args: cobra.ExactArgs(1),
	RunE: runTable,
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Detect the key of many files concurrently",
	Long: `Detect the key of many files concurrently. A file that cannot be
analyzed is reported without stopping the batch.

Example:
  keyfinder batch --workers 4 *.mp3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var relationsCmd = &cobra.Command{
	Use:   "relations <key>",
	Short: "List the keys closely related to a key",
	Long: `List the relative, parallel, dominant and subdominant keys.

Examples:
  keyfinder relations "G major"
  keyfinder relations F#m`,
	Args: cobra.ExactArgs(1),
	RunE: runRelations,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(relationsCmd)

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env file(s) with KEYFINDER_* settings (default: ./.env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Float64Var(&margin, "margin", -1, "Near-tie margin for the alternative key (default from config)")
	rootCmd.PersistentFlags().BoolVar(&noContext, "no-context", false, "Report the top ranked key without relative minor preference")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	for _, cmd := range []*cobra.Command{detectCmd, tableCmd, batchCmd} {
		cmd.Flags().DurationVar(&startTime, "start", 0, "Start of the excerpt (e.g. 30s)")
		cmd.Flags().DurationVar(&endTime, "end", 0, "End of the excerpt (default: end of file)")
	}

	detectCmd.Flags().BoolVarP(&showChroma, "chroma", "c", false, "Print the relative prominence of each pitch class")
	detectCmd.Flags().BoolVarP(&showTable, "table", "t", false, "Print the ranked correlation table")

	tableCmd.Flags().BoolVar(&canonical, "canonical", false, "Print keys in canonical order instead of ranked")

	batchCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent files (default: one per CPU)")
	batchCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

// loadConfig builds the analysis config from env files, environment and flags
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadFromEnv(envFiles...)
	if err != nil {
		return err
	}

	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if margin >= 0 {
		loaded.NearTieMargin = margin
	}
	if noContext {
		loaded.PreferRelativeMinor = false
	}
	if cmd.Flags().Changed("workers") {
		loaded.Workers = workers
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(loaded.LogLevel)
	if err != nil {
		return err
	}

	// Results go to stdout, so logs stay on stderr
	logger := logging.NewDefaultLoggerWithWriters(cmd.ErrOrStderr(), cmd.ErrOrStderr(), false)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	cfg = loaded
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func segment() transcode.Segment {
	return transcode.Segment{Start: startTime, End: endTime}
}

func runDetect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := signalContext()
	defer cancel()

	analyzer, err := keyfinder.NewAnalyzer(cfg)
	if err != nil {
		return err
	}

	result, err := analyzer.AnalyzeFile(ctx, args[0], segment())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, result)
	}

	if showChroma {
		fmt.Fprintln(out, keyfinder.FormatChroma(result.Chroma))
		fmt.Fprintln(out)
	}
	if showTable {
		fmt.Fprintln(out, keyfinder.FormatTable(result.Table))
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, keyfinder.FormatKeyLine(result.Key, result.Alternative))

	return nil
}

func runTable(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := signalContext()
	defer cancel()

	analyzer, err := keyfinder.NewAnalyzer(cfg)
	if err != nil {
		return err
	}

	result, err := analyzer.AnalyzeFile(ctx, args[0], segment())
	if err != nil {
		return err
	}

	table, err := analyzer.Estimator().CorrelationTable(result.Chroma, !canonical)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, table)
	}

	fmt.Fprintln(out, keyfinder.FormatTable(table))
	return nil
}

func runRelations(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	tonic, mode, err := tonal.ParseKey(args[0])
	if err != nil {
		return err
	}

	related := tonal.RelatedKeys(tonic, mode)
	if jsonOutput {
		return printJSON(out, related)
	}

	fmt.Fprintln(out, tonal.KeyName(tonic, mode))
	for _, r := range related {
		fmt.Fprintf(out, "  %-12s %s\n", r.Relation, r.Key.Name())
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
