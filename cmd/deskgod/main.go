package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskgo-io/deskgo/internal/classify"
	"github.com/deskgo-io/deskgo/internal/config"
	"github.com/deskgo-io/deskgo/internal/database"
	"github.com/deskgo-io/deskgo/internal/ingest"
	"github.com/deskgo-io/deskgo/internal/ingest/connector"
	"github.com/deskgo-io/deskgo/internal/metrics"
	"github.com/deskgo-io/deskgo/internal/repository"
	"github.com/deskgo-io/deskgo/internal/runner"
	"github.com/deskgo-io/deskgo/internal/runner/tasks"
	"github.com/deskgo-io/deskgo/internal/storage"
)

func main() {
	logger := log.New(os.Stdout, "[DESKGO] ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	if err := config.Load(configPath); err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	cfg := config.Get()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	store, err := storage.NewFilesystemStore(cfg.Storage.AttachmentPath)
	if err != nil {
		logger.Fatalf("failed to initialize attachment storage: %v", err)
	}

	mailboxes := repository.NewSQLMailboxRepository(db)
	tickets := repository.NewSQLTicketRepository(db)
	clients := repository.NewSQLClientRepository(db)
	ingestLog := repository.NewSQLIngestLogRepository(db)
	attachments := repository.NewSQLAttachmentRepository(db)
	catalog := repository.NewSQLCatalogRepository(database.Wrap(db, &cfg.Database))

	classifier := classify.New(classify.Config{
		APIURL:      cfg.Classifier.APIURL,
		APIKey:      cfg.Classifier.APIKey,
		Model:       cfg.Classifier.Model,
		Temperature: float32(cfg.Classifier.Temperature),
		Timeout:     cfg.Classifier.Timeout,
	}, classify.WithLogger(log.New(os.Stdout, "[CLASSIFY] ", log.LstdFlags)))

	registry := prometheus.NewRegistry()
	ingestMetrics := metrics.NewIngest(registry)

	pollerLogger := log.New(os.Stdout, "[POLLER] ", log.LstdFlags)
	poller := ingest.NewPoller(ingest.PollerDeps{
		Mailboxes:   mailboxes,
		IngestLog:   ingestLog,
		Catalog:     catalog,
		Attachments: attachments,
		Store:       store,
		Dialer: connector.NewIMAPDialer(
			connector.WithIMAPLogger(pollerLogger),
			connector.WithIMAPDialTimeout(cfg.Poller.DialTimeout),
		),
		Classifier: classifier,
		Synthesizer: ingest.NewSynthesizer(tickets, clients,
			ingest.WithSynthesizerLogger(pollerLogger)),
		Parser: ingest.NewMessageParser(
			ingest.WithParserLogger(pollerLogger),
			ingest.WithParserBodyLimit(cfg.Poller.BodyLimit),
			ingest.WithParserAttachmentLimit(cfg.Poller.AttachmentLimit),
		),
	},
		ingest.WithPollerLogger(pollerLogger),
		ingest.WithPollerMetrics(ingestMetrics),
	)

	taskRegistry := runner.NewTaskRegistry()
	taskRegistry.Register(tasks.NewMailboxPollTask(poller, cfg.Poller.Interval, cfg.Poller.Timeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	taskRunner := runner.NewRunner(taskRegistry)
	if err := taskRunner.Start(ctx); err != nil {
		logger.Fatalf("failed to start task runner: %v", err)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(logger, cfg.Metrics.Addr, registry)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Printf("received signal %v, shutting down", sig)

	cancel()
	taskRunner.Stop()
}

func serveMetrics(logger *log.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}
