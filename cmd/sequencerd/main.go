// Sequencer Daemon - Main entry point for the zelana sequencer node
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zelana-labs/sequencer/internal/api"
	"github.com/zelana-labs/sequencer/internal/l1"
	"github.com/zelana-labs/sequencer/internal/pipeline"
	"github.com/zelana-labs/sequencer/internal/prover"
	"github.com/zelana-labs/sequencer/internal/readindex"
	"github.com/zelana-labs/sequencer/internal/session"
	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/pkg/config"
)

const (
	version = "0.1.0"
	banner  = `
 ________ _______ _       ___   ___   _______
|___  ___| ____| | |     / _ \ |  _ \|  ___  |
   | |  | |__   | |    / /_\ \ | |_) | |___| |
   | |  |  __|  | |    |  _  | |  _ <|  ___| |
   | |  | |___  | |___ | | | | | | \ \ |   | |
   |_|  |_____| |_____||_| |_| |_|  \_\_|   |_|

  Zelana Sequencer v%s
  L2 rollup batch sequencer
`
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(banner, version)

	log := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("fatal error")
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logrus.NewEntry(logger)
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	log.WithField("db_path", cfg.DBPath).Info("opening store")
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pr, err := buildProver(cfg)
	if err != nil {
		return fmt.Errorf("build prover: %w", err)
	}

	l1Client := l1.NewMockL1Client()
	if cfg.L1WSUrl == "" {
		log.Warn("no l1_ws_url configured: batches will settle against an in-memory mock L1 client")
	}

	var readIndex *readindex.Index
	if cfg.ReadIndex.Enabled {
		ridxCfg := readindex.Config{
			Host: cfg.ReadIndex.Host, Port: cfg.ReadIndex.Port,
			User: cfg.ReadIndex.User, Password: cfg.ReadIndex.Password,
			Database: cfg.ReadIndex.Database, SSLMode: "disable", MaxConns: 10,
		}
		readIndex, err = readindex.Open(ctx, ridxCfg)
		if err != nil {
			return fmt.Errorf("open read index: %w", err)
		}
		defer readIndex.Close()
		log.WithField("host", cfg.ReadIndex.Host).Info("read index mirror enabled")
	}

	pcfg := pipeline.Config{
		MaxTransactions: cfg.Batch.MaxTransactions,
		MaxBatchAge:     cfg.MaxBatchAge(),
		MaxShielded:     cfg.Batch.MaxShielded,
		MinTransactions: cfg.Batch.MinTransactions,
		InboxSize:       4096,
		ChainId:         cfg.ChainId,
	}
	var pl *pipeline.Pipeline
	if readIndex != nil {
		pl, err = pipeline.Open(pcfg, st, pr, l1Client, readIndex, log)
	} else {
		pl, err = pipeline.Open(pcfg, st, pr, l1Client, nil, log)
	}
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}

	// internal/deposit's L1 log subscription has no concrete LogSource
	// in this tree (the bridge program is out of scope). Deposits only
	// reach the pipeline via the API's manual replay endpoint until a
	// LogSource implementation is wired here.
	log.Warn("L1 deposit indexing disabled: no LogSource configured, use /deposit/replay")

	datagramAddr := net.JoinHostPort("0.0.0.0", fmt.Sprintf("%d", cfg.DatagramPort))
	manager := session.NewManager()
	listener, err := session.NewListener(datagramAddr, manager, pl, log)
	if err != nil {
		return fmt.Errorf("open session listener: %w", err)
	}
	defer listener.Close()

	apiServer := api.New(st, pl, pl, log)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ApiPort),
		Handler: apiServer.Handler(),
	}

	errCh := make(chan error, 3)
	go func() {
		log.WithField("batch_max_age", cfg.MaxBatchAge()).Info("pipeline running")
		if err := pl.Run(ctx); err != nil {
			errCh <- fmt.Errorf("pipeline: %w", err)
		}
	}()
	go pl.RunProverEvents(ctx)
	go func() {
		log.WithField("addr", datagramAddr).Info("session listener running")
		if err := listener.Run(); err != nil {
			select {
			case <-ctx.Done():
			default:
				errCh <- fmt.Errorf("session listener: %w", err)
			}
		}
	}()
	go func() {
		log.WithField("addr", httpSrv.Addr).Info("read API running")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("read API: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case runErr := <-errCh:
		log.WithError(runErr).Error("component failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during API shutdown")
	}
	listener.Close()

	log.Info("sequencer stopped")
	return nil
}

func buildProver(cfg config.Config) (prover.Prover, error) {
	if !cfg.Prover.Mock {
		return nil, fmt.Errorf("remote prover transport is not configured; run with -prover-mock")
	}
	return prover.NewMockProver()
}
