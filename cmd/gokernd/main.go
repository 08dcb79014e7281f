// gokernd runs a scenario on the wall clock with the HTTP inspector
// attached, so the scheduler can be watched live while it works.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/config"
	"github.com/me/gokern/internal/cpu"
	"github.com/me/gokern/internal/logging"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/internal/scenario"
	"github.com/me/gokern/internal/sched"
	"github.com/me/gokern/internal/server"
	"github.com/me/gokern/internal/trace"
)

func main() {
	cfg := config.Default()
	cfg.Wall = true
	cfg.InspectorAddr = ":8080"
	cfg.TraceDB = "gokern.db"

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	addr := flag.String("addr", cfg.InspectorAddr, "Inspector listen address")
	dbPath := flag.String("db", cfg.TraceDB, "Trace database path")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cfg.LogFormat, "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
		cfg.Wall = true
	}
	cfg.InspectorAddr = *addr
	cfg.TraceDB = *dbPath
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	if *debug {
		cfg.LogLevel = "debug"
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gokernd [flags] <scenario.js>")
		os.Exit(2)
	}
	scenarioPath := flag.Arg(0)

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	rec, err := trace.NewSQLiteRecorder(cfg.TraceDB, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open trace: %v\n", err)
		os.Exit(1)
	}
	defer rec.Close()
	logger.Info("trace ready", "path", cfg.TraceDB, "run_id", rec.RunID())

	reader, err := trace.NewReader(cfg.TraceDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open trace reader: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	clk := clock.NewWall()
	m := mem.NewMapper()
	c := cpu.New(cpu.Config{Quantum: cfg.Quantum, Tick: cfg.Tick.Std()}, clk, m)
	s := sched.New(c, clk, m, rec, logger)

	loader := scenario.New(s, logger)
	if err := loader.LoadFile(scenarioPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv := server.New(s, logger, server.WithTraceReader(reader))
	httpServer := &http.Server{
		Addr:    cfg.InspectorAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("inspector starting", "addr", cfg.InspectorAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("inspector failed", "error", err)
			os.Exit(1)
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		<-done
	case err := <-done:
		if err != nil && err != context.Canceled {
			logger.Error("scheduler failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
