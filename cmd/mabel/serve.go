package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/mabelstudio/internal/api"
	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/scheduler"
	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/internal/studio"
	"github.com/rendis/mabelstudio/internal/validation"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend for the canvas",
		Long: `Serve starts the HTTP API (import/export, graph inspection, projects,
block editing, diagrams and the SSE event stream) backed by a local libSQL
database. Send SIGHUP to reload ~/.mabel/settings.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := newViper(configFlag)
			if err := bindServeFlags(v, cmd); err != nil {
				return err
			}
			return runServe(cmd.Context(), v)
		},
	}
	addServeFlags(cmd)
	return cmd
}

// daemon holds the long-lived pieces of a running server.
type daemon struct {
	v      *viper.Viper
	cfg    Config
	level  *slog.LevelVar
	logger *slog.Logger
	store  *store.LibSQLStore
	hub    *streaming.MemoryHub
	api    *liveAPI
	sched  *scheduler.Scheduler
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := newLogger(os.Stderr, level, cfg.LogFormat)

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	d := &daemon{v: v, cfg: cfg, level: level, logger: logger, store: st, hub: streaming.NewMemoryHub()}
	h, svc, err := d.handler()
	if err != nil {
		return err
	}
	d.api = newLiveAPI(h, apiSettingsOf(cfg))

	go func() {
		if err := svc.RecordEvents(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event recorder stopped", "error", err)
		}
	}()

	if err := d.startScheduler(ctx); err != nil {
		return err
	}
	defer func() { _ = d.sched.Stop() }()

	if err := writePIDFile(); err != nil {
		logger.Warn("cannot write pid file, SIGHUP from install will not reach this server", "error", err)
	} else {
		defer os.Remove(pidPath())
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           d.api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("mabel studio listening", "addr", cfg.ListenAddr, "db", cfg.DBPath, "version", version)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			d.reload(ctx)
		}
	}
}

func openStore(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	st, err := store.NewLibSQLStore("file:" + path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return st, nil
}

// buildService wires a studio service for cfg. st and hub may be nil.
func buildService(cfg Config, st store.Store, hub streaming.Hub, logger *slog.Logger) (*studio.Service, error) {
	validator, err := validation.NewDocumentValidator(cfg.LintRules)
	if err != nil {
		return nil, fmt.Errorf("lint_rules: %w", err)
	}
	return studio.New(studio.Deps{
		Store:         st,
		Hub:           hub,
		Validator:     validator,
		Logger:        logger,
		WorldHeight:   cfg.CanvasHeight,
		MermaidBinDir: binDir(),
	})
}

// handler builds the API handler for the current config.
func (d *daemon) handler() (http.Handler, *studio.Service, error) {
	svc, err := buildService(d.cfg, d.store, d.hub, d.logger)
	if err != nil {
		return nil, nil, err
	}
	srv := api.NewServer(api.Deps{
		Service:        svc,
		Hub:            d.hub,
		Logger:         d.logger,
		MaxUploadBytes: d.cfg.MaxUploadBytes,
	})
	return srv.Handler(), svc, nil
}

func (d *daemon) startScheduler(ctx context.Context) error {
	sched, err := scheduler.NewScheduler(d.store, scheduler.Config{
		Cron:      d.cfg.MaintenanceCron,
		Retention: d.cfg.RevisionRetention,
	}, d.hub, d.logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	d.sched = sched
	return nil
}

// reload re-reads the settings and applies what can change live. Fields
// that need a restart keep their running values.
func (d *daemon) reload(ctx context.Context) {
	next, err := loadConfig(d.v)
	if err != nil {
		d.logger.Error("config reload failed, keeping current settings", "error", err)
		return
	}
	diff := diffConfigs(d.cfg, next)
	if diff.empty() {
		d.logger.Info("config reloaded, nothing changed")
		return
	}
	prev := d.cfg
	next.ListenAddr, next.DBPath, next.LogFormat = prev.ListenAddr, prev.DBPath, prev.LogFormat
	d.cfg = next

	if diff.LogLevelChanged {
		d.level.Set(logging.ParseLevel(next.LogLevel))
		d.logger.Info("log level changed", "from", prev.LogLevel, "to", next.LogLevel)
	}
	if diff.HandlerChanged {
		h, _, err := d.handler()
		if err != nil {
			d.logger.Error("handler rebuild failed, keeping current handler", "error", err)
			d.cfg.MaxUploadBytes, d.cfg.CanvasHeight, d.cfg.LintRules = prev.MaxUploadBytes, prev.CanvasHeight, prev.LintRules
		} else {
			gen := d.api.Replace(h, apiSettingsOf(next))
			d.logger.Info("api handler reloaded", "generation", gen, "max_upload_bytes", next.MaxUploadBytes, "lint_rules", len(next.LintRules))
		}
	}
	if diff.MaintenanceChanged {
		_ = d.sched.Stop()
		if err := d.startScheduler(ctx); err != nil {
			d.logger.Error("maintenance restart failed", "error", err)
		}
	}
	if len(diff.RestartNeeded) > 0 {
		d.logger.Warn("settings need a restart to take effect", "fields", diff.RestartNeeded)
	}
}

func writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(pidPath()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
