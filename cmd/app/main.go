package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/concordia-save/concordia/pkg/access"
	"github.com/concordia-save/concordia/pkg/config"
	"github.com/concordia-save/concordia/pkg/handlers/groups"
	"github.com/concordia-save/concordia/pkg/index"
	"github.com/concordia-save/concordia/pkg/logging"
	appmiddleware "github.com/concordia-save/concordia/pkg/middleware"
	"github.com/concordia-save/concordia/pkg/replica"
	"github.com/concordia-save/concordia/pkg/resolver"
	"github.com/concordia-save/concordia/pkg/scheduler"
	"github.com/concordia-save/concordia/pkg/storage"
	dynamostore "github.com/concordia-save/concordia/pkg/storage/dynamodb"
	"github.com/concordia-save/concordia/pkg/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.Logging)

	// Group record store: DynamoDB in deployments, in-process for local
	// development.
	var record storage.Storage
	var sched scheduler.Scheduler
	switch cfg.Storage.Mode {
	case "memory":
		record = memory.New()
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
		if err != nil {
			log.Fatalf("unable to load SDK config, %v", err)
		}
		record = dynamostore.New(dynamodb.NewFromConfig(awsCfg), cfg.Storage.GroupsTable)

		if cfg.Storage.QueueURL != "" {
			sched = scheduler.NewSQSScheduler(sqs.NewFromConfig(awsCfg), cfg.Storage.QueueURL)
		} else {
			logger.Warn("CONFIRMATIONS_QUEUE_URL not set, contributions will stay pending")
		}
	}

	// Content-addressed replica backends, tried in configuration order.
	var replicas []replica.Store
	if len(cfg.Replicas.IPFSUploadEndpoints) > 0 {
		replicas = append(replicas, replica.NewIPFS(cfg.Replicas.IPFSUploadEndpoints, cfg.Replicas.IPFSGateways, logger))
	}
	if len(cfg.Replicas.ArweaveUploadEndpoints) > 0 {
		replicas = append(replicas, replica.NewArweave(cfg.Replicas.ArweaveUploadEndpoints, cfg.Replicas.ArweaveGateways, logger))
	}
	// The index lives on one of the replica backends and bootstraps from
	// its last persisted address. With no replicas configured there is
	// nothing durable to host it, so the process runs record-only.
	var ix *index.Index
	if len(replicas) == 0 {
		logger.Warn("no replica backends configured, running on the record store alone")
	} else {
		ixStore := replicas[0]
		for _, store := range replicas {
			if store.Name() == cfg.Replicas.IndexBackend {
				ixStore = store
			}
		}
		ix = index.Load(context.Background(), ixStore, cfg.Replicas.IndexBootstrapAddress, logger)
	}

	res := resolver.New(resolver.Config{
		Record:    record,
		Replicas:  replicas,
		Index:     ix,
		Access:    access.NewEvaluator(cfg.AdminAddress),
		Scheduler: sched,
		Timeout:   cfg.Storage.CallTimeout,
		Logger:    logger,
	})

	// Create a new Chi router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(appmiddleware.NewStructuredLogger(logger))
	router.Use(middleware.Recoverer)

	router.Mount("/api/groups", groups.NewGroupsHandler(res).Routes())
	router.Get("/healthz", healthz(record))

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", addr, "storage_mode", cfg.Storage.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
	}
}

// healthz reports whether the record store answers a probe read. Replica
// gateways are excluded on purpose: their outages degrade to fallback
// reads, not to an unhealthy process.
func healthz(record storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if record != nil {
			if _, err := record.GetGroup(r.Context(), "healthz-probe"); err != nil && !errors.Is(err, storage.ErrNotFound) {
				status = "record store unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprintf(w, "{\"status\":%q}\n", status)
	}
}
