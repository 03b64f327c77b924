package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/server"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio transport)",
	Long: `Start the HexProbe MCP server on stdin/stdout.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "hexprobe": {
        "command": "hexprobe",
        "args": ["serve"]
      }
    }
  }

With --metrics-addr (or metrics.addr in the config file) Prometheus
metrics are served over HTTP at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics (e.g. :9464)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := metricsAddr
	if addr == "" {
		addr = d.Config.Metrics.Addr
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.Metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.Log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		d.Log.Info().Str("addr", addr).Msg("serving metrics")
	}

	s := server.New(d)
	d.Log.Info().Str("version", server.Version).Msg("hexprobe MCP server starting")
	err = mcpserver.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
