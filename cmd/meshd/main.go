// Command meshd runs one overlay mesh node: it loads its configuration,
// starts the public and private HTTP endpoints, and drives the
// periodic route/backlog/broadcast maintenance loops until signaled to
// stop.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/route-beacon/meshd/internal/backlog"
	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/control"
	"github.com/route-beacon/meshd/internal/metrics"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/processor"
	"github.com/route-beacon/meshd/internal/scheduler"
	"github.com/route-beacon/meshd/internal/state"
	"github.com/route-beacon/meshd/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: meshd <serve> [flags]")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "meshd:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "meshd: unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to the node's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting meshd", zap.String("id", cfg.ID))

	st := state.New(cfg)
	peer.Initialize(st, cfg)
	metrics.Register()

	client, err := transport.NewClient(cfg.PublicHTTP.Secret, cfg.PublicHTTP.Endpoint, cfg.CompressionThresholdBytes, cfg.PublicHTTP.LegacyDigestMode)
	if err != nil {
		return fmt.Errorf("building transport client: %w", err)
	}

	proc := &processor.Processor{State: st, LocalID: cfg.ID, Sender: client, Now: nowMillis}
	publicServer := transport.NewServer(client, proc)

	backlogEngine := &backlog.Engine{Sender: client, Inbound: proc, Workers: 4}

	sched := &scheduler.Scheduler{
		State: st, Config: cfg, LocalID: cfg.ID,
		Sender: client, Processor: proc, Backlog: backlogEngine,
		Log: logger, Now: nowMillis,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	publicMux := http.NewServeMux()
	publicMux.Handle(cfg.PublicHTTP.Endpoint, publicServer)
	publicMux.Handle("/metrics", promhttp.Handler())
	publicMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	controlServer := &control.Server{State: st, Config: cfg, LocalID: cfg.ID, Now: nowMillis}
	privateMux := control.NewMux(controlServer)

	publicAddr := fmt.Sprintf("%s:%d", cfg.PublicHTTP.Host, cfg.PublicHTTP.Port)
	privateAddr := fmt.Sprintf("%s:%d", cfg.PrivateHTTP.Host, cfg.PrivateHTTP.Port)

	publicHTTPServer := &http.Server{Addr: publicAddr, Handler: publicMux}
	privateHTTPServer := &http.Server{Addr: privateAddr, Handler: privateMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("public endpoint listening", zap.String("addr", publicAddr))
		if err := publicHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("public http server: %w", err)
		}
	}()
	go func() {
		logger.Info("private endpoint listening", zap.String("addr", privateAddr))
		if err := privateHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("private http server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error, shutting down", zap.Error(err))
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = publicHTTPServer.Shutdown(shutdownCtx)
	_ = privateHTTPServer.Shutdown(shutdownCtx)
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
