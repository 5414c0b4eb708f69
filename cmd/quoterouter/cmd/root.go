// Package cmd provides the CLI commands for quoterouter.
package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ineyio/quoterouter/internal/app"
	"github.com/ineyio/quoterouter/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "quoterouter",
	Short: "Resolve freight quotes from cache, live carriers or estimates",
	Long: `quoterouter answers freight quote requests from a shared cache, a
metered live carrier API or an estimator, and always returns one result.

Settings are read from QUOTEROUTER_* environment variables; tier limits and
placeholder rates come from an optional YAML file.

Examples:
  quoterouter serve
  quoterouter resolve --service fcl --origin Shanghai --destination Rotterdam
  quoterouter usage`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides QUOTEROUTER_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup parses the environment, applies flags and builds the application.
func setup(ctx context.Context) (*app.App, error) {
	e, err := app.ParseEnv()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		e.ConfigFile = cfgFile
	}
	if verbose {
		e.Log.Level = "debug"
	}

	logger, err := logging.New(e.Log)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	a, err := app.Build(ctx, e, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("quoterouter version %s\n", Version)
	},
}
