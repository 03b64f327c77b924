// HexProbe: repository probing that learns from its findings.
//
// Usage:
//
//	hexprobe serve                    # Start MCP server (stdio transport)
//	hexprobe run <probe> [repo]       # Run one probe through the full cycle
//	hexprobe patterns                 # List recurrent patterns
//	hexprobe prune                    # Run the aging cycle
//	hexprobe lineage <probe-id>       # Show where a generated probe came from
//	hexprobe generate <pattern-id>    # Generate a regression probe
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/config"
	"github.com/HendryAvila/hexprobe/internal/logging"
	"github.com/HendryAvila/hexprobe/internal/server"
)

var (
	// Global flags
	cfgFile string
	output  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hexprobe",
	Short: "Repository probing that learns from its findings",
	Long: `hexprobe runs probes against a repository, has six review agents
evaluate the results, proposes patches and learns every finding as a
pattern in a local store, promoting it to a shared global store.

Commands:
  serve      Start the MCP server (stdio transport)
  run        Run one probe through the full cycle
  patterns   List recurrent patterns
  prune      Delete patterns and lineage past the configured age
  lineage    Show the lineage of a generated probe
  generate   Generate a regression probe from a pattern

Configuration is read from ~/.hexprobe/config.yaml (or --config) and
HEXPROBE_* environment variables, e.g. HEXPROBE_DATA_DIR.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.hexprobe/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hexprobe v%s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDeps loads configuration and builds every component. Logs go to
// stderr so stdout stays free for results and the MCP transport.
func openDeps(ctx context.Context) (*server.Deps, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, func() {}, err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return server.Open(ctx, cfg, log)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput() bool {
	return output == "json"
}
