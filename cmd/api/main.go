// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/agent"
	"github.com/capitalize-ai/task-agent/internal/config"
	"github.com/capitalize-ai/task-agent/internal/handler"
	"github.com/capitalize-ai/task-agent/internal/llm"
	"github.com/capitalize-ai/task-agent/internal/middleware"
	natsclient "github.com/capitalize-ai/task-agent/internal/nats"
	"github.com/capitalize-ai/task-agent/internal/service"
	"github.com/capitalize-ai/task-agent/internal/store"
	"github.com/capitalize-ai/task-agent/internal/tools"
	"github.com/capitalize-ai/task-agent/pkg/logger"
	"github.com/capitalize-ai/task-agent/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	defer logger.Install(log)()

	log.Info("starting API server", zap.String("task_store", cfg.TaskStore))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "task-agent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage
	var (
		taskStore  tools.TaskStore
		messageLog service.MessageLog
		pingers    = map[string]handler.Pinger{}
	)
	if cfg.TaskStore == config.TaskStoreMemory {
		taskStore = store.NewTaskStore()
		messageLog = store.NewMessageLog()
	} else {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "task-agent",
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()
		pingers["nats"] = natsClient

		streamManager := natsclient.NewStreamManager(natsClient, natsclient.DefaultStreamSettings())
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		messageLog = streamManager

		kvStore, err := natsclient.NewTaskStore(ctx, natsClient, cfg.TaskBucket, jetstream.FileStorage)
		if err != nil {
			log.Error("failed to open task bucket", zap.String("bucket", cfg.TaskBucket), zap.Error(err))
			os.Exit(1)
		}
		taskStore = kvStore
	}

	registry := tools.NewRegistry(taskStore)

	// Intent classifier is optional; rule-based extraction runs without it.
	var classifier agent.Classifier
	if cfg.ClassifierEnabled {
		llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), cfg.LLMKey())
		if err != nil {
			log.Warn("failed to create LLM client, classifier disabled", zap.Error(err))
		} else {
			classifier = llm.NewIntentClassifier(llmClient, cfg.ClassifierModel, registry.Definitions(), log)
		}
	}

	dispatcher := agent.NewDispatcher(registry, classifier, agent.Config{
		HistoryWindow:     cfg.HistoryWindow,
		ToolTimeout:       cfg.ToolTimeout,
		ClassifierTimeout: cfg.ClassifierTimeout,
		ConfirmUpdates:    cfg.ConfirmUpdates,
	}, log)

	// Initialize services
	conversationSvc := service.NewConversationService(log)
	chatSvc := service.NewChatService(messageLog, conversationSvc, dispatcher, cfg.HistoryWindow, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pingers)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(chatSvc, log)
	toolHandler := handler.NewToolHandler(registry)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(chimiddleware.SetHeader("X-Frame-Options", "DENY"))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(nil))
	r.Use(middleware.RateLimit(cfg.RateLimitRequests*2, cfg.RateLimitWindow))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/tools", toolHandler.List)

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
