package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/mstgnz/cloverbridge/handler"
	"github.com/mstgnz/cloverbridge/infra/config"
	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/infra/middle"
	"github.com/mstgnz/cloverbridge/infra/opensearch"
	"github.com/mstgnz/cloverbridge/infra/response"
	"github.com/mstgnz/cloverbridge/provider/clover"
	"github.com/mstgnz/cloverbridge/provider/ghl"
	"github.com/mstgnz/cloverbridge/reconcile"
)

var (
	openSearchLogger *opensearch.Logger
	openSearchClient *opensearch.Client
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchClient = osClient
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	cfg := config.GetAppConfig()

	store, err := kv.New(cfg.KVDriver, cfg.KVPath)
	if err != nil {
		logger.Fatal("failed to open key-value store", err)
	}
	defer store.Close()

	cloverClient, err := clover.New(cfg.CloverAPIToken, cfg.CloverProduction)
	if err != nil {
		logger.Fatal("failed to configure processor client", err)
	}

	tokenStore := ghl.NewTokenStore(store, cfg.GHLClientID, cfg.GHLClientSecret)
	crmClient := ghl.NewClient(tokenStore)

	tracker := reconcile.NewTracker(store)
	matcher := reconcile.NewMatcher(tracker, store)
	txns := reconcile.NewTransactions(store)
	keys := reconcile.NewKeys(store)
	failed := reconcile.NewFailedUpdates(store, config.GetEnv("NOTIFICATION_WEBHOOK_URL", ""))

	validate := validator.New()

	webhookHandler := handler.NewWebhookHandler(cloverClient, keys, matcher, crmClient, failed, openSearchLogger)
	queryHandler := handler.NewQueryHandler(keys, txns, cloverClient)
	invoiceHandler := handler.NewInvoiceHandler(tracker, validate)
	setupHandler := handler.NewSetupHandler(keys, validate)
	paymentHandler := handler.NewPaymentHandler(keys, cloverClient, txns, validate)
	healthHandler := handler.NewHealthHandler(store, openSearchClient)

	var eventSearcher handler.EventSearcher
	if openSearchLogger != nil {
		eventSearcher = openSearchLogger
	}
	eventsHandler := handler.NewEventsHandler(eventSearcher, matcher)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Webhook route for processor notifications (no auth, processor-facing)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/clover", webhookHandler.HandleWebhook)
	})

	// CRM-facing gateway; authenticates via body-level apiKey
	r.Post("/query", queryHandler.HandleQuery)

	// Collaborator-facing operations
	r.Post("/invoices/track", invoiceHandler.TrackInvoice)
	r.Post("/payments/process", paymentHandler.ProcessPayment)
	r.Post("/setup", setupHandler.Setup)

	// Ops surface for manual reconciliation (operator-facing)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", eventsHandler.ListEvents)
		r.Get("/charges/{chargeID}", eventsHandler.GetChargeEvents)
	})
	r.Get("/payments/unmatched/{chargeID}", eventsHandler.GetUnmatched)

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{Code: http.StatusNotFound, Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Lazily-expiring backends need a periodic sweep of expired rows.
	if cleaner, ok := store.(kv.Cleaner); ok {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := cleaner.Cleanup(ctx); err != nil {
						logger.Error("expired entry cleanup failed", err)
					}
				}
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{"port": cfg.Port, "kv_driver": cfg.KVDriver}})

	// Block until a signal is received
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", err)
	}
}
