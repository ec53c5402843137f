package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/mabelstudio/internal/logging"
)

// configFlag is the --config path shared by every command.
var configFlag string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errLintFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mabel",
		Short: "MABEL Studio, a visual editor backend for MABEL workflows",
		Long: `MABEL Studio infers the data-flow graph of a MABEL workflow from the
{placeholders} its blocks reference, assigns execution levels, lays blocks out
in columns and round-trips the document through YAML.

Run "mabel serve" for the HTTP backend, "mabel mcp" for the MCP stdio server,
or use the file commands (inspect, export, lint, diagram, query) directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "settings file (default ~/.mabel/settings.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(installCmd())
	root.AddCommand(inspectCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(diagramCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(versionCmd())
	return root
}

// addServeFlags registers the flags shared by serve, mcp and install.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen-addr", "", "TCP listen address")
	cmd.Flags().String("db-path", "", "database path (default: ~/.mabel/mabel.db)")
}

// bindServeFlags lets explicitly set flags override every other layer.
func bindServeFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		"listen_addr": "listen-addr",
		"db_path":     "db-path",
		"log_level":   "log-level",
		"log_format":  "log-format",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.InheritedFlags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// newLogger builds the process logger. level stays adjustable for hot reload.
func newLogger(w io.Writer, level *slog.LevelVar, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}
