// Package main is the entry point for the droidbug debug adapter.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/droidbug/internal/adapter"
	"github.com/dshills/droidbug/internal/config"
	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger/sim"
	"github.com/dshills/droidbug/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// endGrace is how long a connection stays open after its session ends, so
// the client can read the final events and close it first.
const endGrace = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// A .env file is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// settingFlag binds a command line flag to a configuration setting.
type settingFlag struct {
	name, setting, usage string
}

var settingFlags = []settingFlag{
	{"log-level", "log.level", "Log level (debug, info, warn, error)"},
	{"log-format", "log.format", "Log format (json, console)"},
	{"log-file", "log.file", "Write the log to this file instead of stderr"},
	{"transport", "server.transport", "Client transport (stdio, tcp, websocket)"},
	{"listen", "server.listen", "Listen address for the tcp and websocket transports"},
	{"scenario", "backend.scenario", "Scenario file for the sim backend"},
	{"locals-timeout", "evaluation.localsTimeout", "How long evaluations wait for frame locals (0 waits indefinitely)"},
}

func newRootCmd() *cobra.Command {
	var configPath string
	var expandable bool

	cmd := &cobra.Command{
		Use:   "droidbug",
		Short: "Debug adapter for Android applications",
		Long: `droidbug speaks the Debug Adapter Protocol to an editor and drives a
Java debug agent on the device.

Examples:
  # Serve one session over stdin/stdout
  droidbug --scenario app.yaml

  # Accept editor connections on a TCP port
  droidbug --transport tcp --listen 127.0.0.1:4711 --scenario app.yaml`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overlay := func(cfg *config.Config) error {
				if err := applyFlags(cmd, cfg); err != nil {
					return err
				}
				if cmd.Flags().Changed("expandable-primitives") {
					cfg.Display.ExpandablePrimitives = expandable
				}
				return cfg.Validate()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := overlay(cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), configPath, cfg, overlay)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML or YAML configuration file")
	cmd.Flags().BoolVar(&expandable, "expandable-primitives", false, "Let numbers, chars and strings expand to other bases or their length")
	for _, f := range settingFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	return cmd
}

// applyFlags overlays the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	for _, f := range settingFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		value, err := cmd.Flags().GetString(f.name)
		if err != nil {
			return err
		}
		if err := cfg.Set(f.setting, value); err != nil {
			return fmt.Errorf("--%s: %w", f.name, err)
		}
	}
	return nil
}

// serve runs the configured transport. overlay is reapplied to every
// reloaded configuration so command line flags keep precedence.
func serve(ctx context.Context, configPath string, cfg *config.Config, overlay func(*config.Config) error) error {
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Backend.Scenario == "" {
		return fmt.Errorf("%w: backend.scenario is required for the sim backend", config.ErrInvalidValue)
	}
	scenario, err := os.ReadFile(cfg.Backend.Scenario)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	if _, err := sim.ParseScenario(scenario); err != nil {
		return err
	}

	current := func() *config.Config { return cfg }
	if configPath != "" {
		w, err := config.NewWatcher(configPath, cfg,
			config.WithOverlay(overlay),
			config.OnReload(func(c *config.Config) {
				logger.Info("configuration reloaded", zap.Bool("expandablePrimitives", c.Display.ExpandablePrimitives))
			}),
			config.OnError(func(err error) {
				logger.Warn("configuration reload failed", zap.Error(err))
			}),
		)
		if err != nil {
			return err
		}
		defer w.Close()
		current = w.Current
	}

	c := &connector{
		logger:   logger,
		scenario: scenario,
		display: func() adapter.DisplayOptions {
			return adapter.DisplayOptions{ExpandablePrimitives: current().Display.ExpandablePrimitives}
		},
		localsTimeout: cfg.Evaluation.LocalsTimeout.Duration,
	}

	logger.Info("droidbug starting",
		zap.String("version", version),
		zap.String("transport", cfg.Server.Transport),
		zap.String("scenario", cfg.Backend.Scenario))

	switch cfg.Server.Transport {
	case config.TransportStdio:
		c.serveConn(ctx, dap.NewStdioTransport(os.Stdin, os.Stdout))
		return nil
	case config.TransportTCP:
		ln, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			return err
		}
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		return dap.ServeListener(ctx, ln, func(t dap.Transport) { c.serveConn(ctx, t) })
	case config.TransportWebSocket:
		return serveWebSocket(ctx, cfg.Server.Listen, c, logger)
	default:
		return fmt.Errorf("%w: server.transport %q", config.ErrInvalidValue, cfg.Server.Transport)
	}
}

func serveWebSocket(ctx context.Context, addr string, c *connector, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           dap.WebSocketHandler(func(t dap.Transport) { c.serveConn(ctx, t) }),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// connector runs one session per client connection, each against a fresh
// simulated target.
type connector struct {
	logger        *zap.Logger
	scenario      []byte
	display       func() adapter.DisplayOptions
	localsTimeout time.Duration
}

func (c *connector) serveConn(ctx context.Context, t dap.Transport) {
	sc, err := sim.ParseScenario(c.scenario)
	if err != nil {
		c.logger.Error("scenario", zap.Error(err))
		t.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := dap.NewServer(t, dap.WithLogger(c.logger))
	sess := adapter.NewSession(sim.New(sc), sim.NewLauncher(sc), srv, adapter.Options{
		Logger:        c.logger,
		Display:       c.display,
		LocalsTimeout: c.localsTimeout,
	})
	log := c.logger.With(zap.String("session", sess.ID()))
	log.Info("client connected")

	go func() {
		select {
		case <-sess.Done():
			time.AfterFunc(endGrace, cancel)
		case <-ctx.Done():
		}
	}()

	if err := srv.Serve(ctx, sess); err != nil {
		log.Warn("connection closed", zap.Error(err))
		return
	}
	log.Info("client disconnected", zap.Stringer("state", sess.State()))
}
