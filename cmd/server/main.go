package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certproof/internal/docstore"
	"certproof/internal/ingest"
	ingestmetrics "certproof/internal/ingest/metrics"
	"certproof/internal/platform/config"
	"certproof/internal/platform/httpserver"
	"certproof/internal/platform/logger"
	"certproof/internal/proof"
	"certproof/internal/records"
	"certproof/internal/render"
	"certproof/internal/token"
	httptransport "certproof/internal/transport/http"
	"certproof/internal/verify"
	verifymetrics "certproof/internal/verify/metrics"
	"certproof/pkg/platform/audit"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := logger.New()

	secret, err := config.EnsureSecret(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve signing secret: %w", err)
	}
	cfg.SigningSecret = secret

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer closeStore()

	students := records.NewStudents(store)
	proofs := records.NewProofs(store)
	certs := records.NewCertificates(store)
	templates := records.NewTemplates(store)

	tokens := token.NewService(cfg.SigningSecret, cfg.TokenTTL)
	renderer := render.New(cfg.DataDir, cfg.FontPath, tokens, log)

	sinks := []audit.Sink{audit.NewInMemorySink()}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(context.Background(), cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("connect kafka audit sink: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	auditor := audit.NewPublisher(sinks...)

	proofSvc := proof.NewService(students, proofs, proof.WithAudit(auditor))
	ingestSvc := ingest.NewService(students, proofSvc, certs, templates, renderer,
		cfg.DataDir, auditor, log,
		ingest.WithMetrics(ingestmetrics.New()))
	verifySvc := verify.NewService(students, certs, proofSvc, tokens, auditor, log,
		verify.WithMetrics(verifymetrics.New()))

	router := httptransport.NewRouter(httptransport.Deps{
		Ingest:      ingestSvc,
		Verify:      verifySvc,
		Proofs:      proofSvc,
		Students:    students,
		Certs:       certs,
		Templates:   templates,
		Tokens:      tokens,
		Audit:       auditor,
		StorageRoot: cfg.DataDir,
		Logger:      log,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting certproof server",
		slog.String("addr", cfg.Addr),
		slog.String("store", string(cfg.Store)),
		slog.String("data_dir", cfg.DataDir))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.Config) (docstore.Store, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.BackendMemory:
		return docstore.NewMemory(), noop, nil
	case config.BackendFile:
		store, err := docstore.NewFile(cfg.DataDir)
		return store, noop, err
	case config.BackendPostgres:
		store, err := docstore.NewPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendRedis:
		store, err := docstore.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
