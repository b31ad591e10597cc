package main

import (
	"context"
	"dashplayer/internal/api"
	"dashplayer/internal/config"
	"dashplayer/internal/dash"
	"dashplayer/internal/dump"
	"dashplayer/internal/logger"
	"dashplayer/internal/metrics"
	"dashplayer/internal/session"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 1. Parse command-line arguments
	configFile := flag.String("c", "", "Path to the player config file (JSON or YAML)")
	logLevel := flag.String("L", "", "Log level (error, warn, info, debug)")
	listenAddr := flag.String("l", "", "HTTP listen address")
	manifestURL := flag.String("m", "", "Manifest URL, overrides the config file")
	flag.Parse()

	// 2. Load configuration; flags win over file and environment
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *manifestURL != "" {
		cfg.ManifestURL = *manifestURL
	}

	// 3. Initialize logger
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	log.Infof("Starting DASH player...")
	log.Infof("Log level set to: %s", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Errorf("Player failed: %v", err)
		os.Exit(1)
	}
	log.Infof("Player exited gracefully")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Initialize services
	var sink dump.Sink
	if cfg.DumpTarget != "" {
		s, err := dump.Open(ctx, cfg.DumpTarget)
		if err != nil {
			return fmt.Errorf("failed to open dump target: %w", err)
		}
		defer s.Close()
		sink = s
		log.Infof("Dumping segments to %s", cfg.DumpTarget)
	}

	met := metrics.New()
	client := dash.NewClient(log, cfg.UserAgent)
	sess := session.New(cfg.SessionOptions(), client, log, met, sink)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	// 5. Set up the HTTP surface
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(sess, met, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", cfg.ListenAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		return sess.Wait()
	})
	g.Go(func() error {
		// the server outlives a finished session until a signal arrives
		<-gctx.Done()
		log.Infof("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sess.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
