package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/config"
	"github.com/me/gokern/internal/cpu"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/internal/scenario"
	"github.com/me/gokern/internal/sched"
	"github.com/me/gokern/internal/server"
	"github.com/me/gokern/internal/trace"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		quantum    int
		tick       time.Duration
		wall       bool
		traceDB    string
		serveAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.js>",
		Short: "Run a scenario through the scheduler",
		Long: `Runs the processes described by a JavaScript scenario file until they
have all exited, then prints a run summary. With --trace-db the
scheduling decisions are recorded to SQLite for later inspection with
"gokern trace".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("quantum") {
				cfg.Quantum = quantum
			}
			if cmd.Flags().Changed("tick") {
				cfg.Tick = config.Duration(tick)
			}
			if cmd.Flags().Changed("wall") {
				cfg.Wall = wall
			}
			if cmd.Flags().Changed("trace-db") {
				cfg.TraceDB = traceDB
			}
			if cmd.Flags().Changed("serve") {
				cfg.InspectorAddr = serveAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runScenario(cmd.Context(), cfg, args[0])
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().IntVar(&quantum, "quantum", 8, "Timer ticks per time slice")
	cmd.Flags().DurationVar(&tick, "tick", time.Millisecond, "Timer tick period")
	cmd.Flags().BoolVar(&wall, "wall", false, "Use the wall clock instead of the simulated one")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "SQLite path for the scheduling trace")
	cmd.Flags().StringVar(&serveAddr, "serve", "", "Run the HTTP inspector on this address while the scenario runs")

	return cmd
}

func runScenario(parent context.Context, cfg config.Config, scenarioPath string) error {
	var clk clock.Clock
	if cfg.Wall {
		clk = clock.NewWall()
	} else {
		clk = clock.NewManual()
	}

	var rec trace.Recorder = trace.Nop{}
	if cfg.TraceDB != "" {
		sr, err := trace.NewSQLiteRecorder(cfg.TraceDB, logger)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer sr.Close()
		rec = sr
		logger.Info("tracing enabled", "path", cfg.TraceDB, "run_id", sr.RunID())
	}

	m := mem.NewMapper()
	c := cpu.New(cpu.Config{Quantum: cfg.Quantum, Tick: cfg.Tick.Std()}, clk, m)
	s := sched.New(c, clk, m, rec, logger)

	loader := scenario.New(s, logger)
	if err := loader.LoadFile(scenarioPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpServer *http.Server
	if cfg.InspectorAddr != "" {
		srv := server.New(s, logger)
		httpServer = &http.Server{Addr: cfg.InspectorAddr, Handler: srv.Handler()}
		go func() {
			logger.Info("inspector listening", "addr", cfg.InspectorAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("inspector failed", "error", err)
			}
		}()
	}

	start := time.Now()
	err := s.Run(ctx)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			logger.Error("inspector shutdown", "error", serr)
		}
	}

	if err != nil && err != context.Canceled {
		return err
	}

	snap := s.Snapshot()
	fmt.Printf("scenario finished: passes=%d dispatches=%d simulated=%s elapsed=%s\n",
		snap.Passes, snap.Dispatches, snap.Now, time.Since(start).Round(time.Millisecond))
	return nil
}
