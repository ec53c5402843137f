package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/streaming"
	mabelmcp "github.com/rendis/mabelstudio/pkg/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tool server on stdio",
		Long: `MCP exposes inspection, import/export, diagrams, queries and project
editing as Model Context Protocol tools over stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := newViper(configFlag)
			if err := bindServeFlags(v, cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			level := new(slog.LevelVar)
			level.Set(logging.ParseLevel(cfg.LogLevel))
			logger := newLogger(os.Stderr, level, cfg.LogFormat)

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			hub := streaming.NewMemoryHub()
			svc, err := buildService(cfg, st, hub, logger)
			if err != nil {
				return err
			}
			go func() {
				if err := svc.RecordEvents(ctx); err != nil && ctx.Err() == nil {
					logger.Error("event recorder stopped", "error", err)
				}
			}()

			srv := mabelmcp.NewStudioServer(mabelmcp.StudioServerDeps{Service: svc, Hub: hub, Logger: logger})
			logger.Info("mcp server ready", "db", cfg.DBPath, "version", version)
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().String("db-path", "", "database path (default: ~/.mabel/mabel.db)")
	return cmd
}
