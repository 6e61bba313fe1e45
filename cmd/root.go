package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/hyperredact/internal/config"
	"github.com/andresmejia3/hyperredact/internal/logging"
	"github.com/andresmejia3/hyperredact/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrInvalidUsage marks bad arguments; usage is printed and nothing is written.
var ErrInvalidUsage = errors.New("invalid usage")

// Blur types accepted as the second positional argument.
const (
	BlurMotion = "motion"
	BlurBoxes  = "boxes"
)

// RenderAdjusted is the only auxiliary --rendertype.
const RenderAdjusted = "adjusted"

// Options holds shared configuration for the redaction commands
type Options struct {
	InputPath  string
	BlurType   string
	ImportPath string
	RenderType string
	OutputPath string
	ConfigPath string
	FromDB     bool
	NumEngines int
}

var (
	// dbURL is the connection string; empty means "from the environment"
	dbURL      string
	configPath string
	debug      bool

	log *zap.SugaredLogger = logging.Nop()
)

// Version is the application version.
const Version = "0.1.0"

var rootOpts Options

var rootCmd = &cobra.Command{
	Use:   "hyperredact <videoPath> <blurType>",
	Short: "Face redaction for video: detect, track and blur or box every face",
	Long: `hyperredact scans every frame of a video with region-constrained cascade detectors,
merges overlapping detections into one box per face and renders a redacted copy.

Blur types:
  motion   blur every detected face
  boxes    outline faces whose pixels look like skin`,
	Version: Version, // This enables the --version flag
	Args:    positionalArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(); err != nil {
			return err
		}
		var err error
		log, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		rootOpts.InputPath, rootOpts.BlurType = args[0], args[1]
		rootOpts.ConfigPath = configPath
		if err := validateOptions(&rootOpts); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runRedact(cmd.Context(), rootOpts)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for hyperframe checkpoints (default: POSTGRES_* environment)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Detector/render YAML config (default: built-in)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose structured logging")

	addRedactFlags(rootCmd, &rootOpts)
	rootCmd.Flags().IntVarP(&rootOpts.NumEngines, "engines", "e", 1, "Number of parallel detection engines")
	rootCmd.Flags().BoolVar(&rootOpts.FromDB, "from-db", false, "Load hyperframes from the database instead of detecting")
}

// addRedactFlags registers the render-side flags shared by the root and render commands.
func addRedactFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.ImportPath, "import", "", "Hyperframe JSON to render from instead of detecting")
	cmd.Flags().StringVar(&opts.RenderType, "rendertype", "", "Auxiliary render mode: adjusted (contrast-corrected copy, no redaction)")
	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Output video path (default derived from the input)")
}

// positionalArgs wraps cobra's arity errors so they match ErrInvalidUsage.
func positionalArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUsage, err)
	}
	return nil
}

// openStore connects to the checkpoint database named by --db or the environment.
func openStore(ctx context.Context) (*store.Store, error) {
	url := config.DatabaseURL(dbURL)
	db, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// databaseRequested reports whether checkpoints should also go to Postgres.
func databaseRequested() bool {
	return dbURL != "" || os.Getenv("POSTGRES_HOST") != ""
}
