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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/handler"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/internal/inventory/service"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/config"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/httputil"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	msgPub, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	publisher := events.NewPublisher(msgPub, log)

	clk := clock.System{}

	// Repositories
	itemRepo := repository.NewItemRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	derivedRepo := repository.NewDerivedBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	recipeRepo := repository.NewRecipeRepository(db)

	// Services
	allocator := service.NewAllocator(itemRepo, batchRepo, derivedRepo, recipeRepo, clk, log)
	executor := service.NewExecutor(db, itemRepo, batchRepo, derivedRepo, recipeRepo, ledgerRepo, publisher, clk, log)
	inventoryService := service.NewInventoryService(db, itemRepo, batchRepo, ledgerRepo, executor, publisher, clk, log)
	productionService := service.NewProductionService(db, recipeRepo, derivedRepo, executor, publisher, clk, log)
	alertService := service.NewAlertService(alertRepo, publisher, clk, log)
	sweeper := service.NewLifecycleSweeper(itemRepo, batchRepo, publisher, clk, log)
	scanner := service.NewAlertScanner(itemRepo, batchRepo, alertRepo, recipeRepo, publisher, clk, cfg.Alerts.DefaultExpiryThresholdDays, log)
	scheduler := service.NewScheduler(itemRepo, sweeper, scanner, cfg.Scheduler.SweepInterval, log)

	// Handlers
	itemHandler := handler.NewItemHandler(inventoryService, log)
	batchHandler := handler.NewBatchHandler(inventoryService, executor, log)
	allocationHandler := handler.NewAllocationHandler(allocator, executor, log)
	productionHandler := handler.NewProductionHandler(productionService, log)
	alertHandler := handler.NewAlertHandler(alertService, scheduler, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Tenant-ID", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Use(httputil.TenantID)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.Post("/", itemHandler.Create)
			r.Get("/{id}", itemHandler.Get)
			r.Put("/{id}", itemHandler.Update)
			r.Delete("/{id}", itemHandler.Delete)
			r.Get("/{id}/history", itemHandler.History)
			r.Get("/{id}/batches", batchHandler.ListByItem)
			r.Post("/{id}/batches", batchHandler.Intake)
			r.Post("/{id}/wastage", batchHandler.Wastage)
			r.Post("/{id}/allocation", allocationHandler.Suggest)
			r.Post("/{id}/consume", allocationHandler.Consume)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Post("/{id}/correct", batchHandler.Correct)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", productionHandler.CreateProduct)
			r.Get("/{id}", productionHandler.GetProduct)
			r.Post("/{id}/recipe", productionHandler.AddRecipeLine)
			r.Post("/{id}/produce", productionHandler.Produce)
			r.Post("/{id}/allocation", allocationHandler.SuggestProduct)
			r.Post("/{id}/consume", allocationHandler.ConsumeProduct)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/active", alertHandler.ListActive)
			r.Post("/sweep", alertHandler.Sweep)
			r.Put("/{id}/acknowledge", alertHandler.Acknowledge)
			r.Put("/{id}/snooze", alertHandler.Snooze)
			r.Put("/{id}/resolve", alertHandler.Resolve)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
