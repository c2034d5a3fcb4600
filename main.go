package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"map-manager/internal/assettypes"
	"map-manager/internal/billing"
	"map-manager/internal/database"
	"map-manager/internal/filesystem"
	"map-manager/internal/handlers"
	"map-manager/internal/localindex"
	"map-manager/internal/logging"
	"map-manager/internal/memory"
	"map-manager/internal/metrics"
	"map-manager/internal/middleware"
	"map-manager/internal/startup"

	"github.com/gorilla/mux"
)

const (
	metricsInterval        = time.Minute
	sessionCleanupInterval = time.Hour
	shutdownTimeout        = 30 * time.Second
)

type services struct {
	db        *database.Database
	indexer   *localindex.Indexer
	helper    *billing.Helper
	hub       *handlers.EventHub
	collector *metrics.Collector
	guard     *memory.Guard
	metrics   *http.Server
	stopClean chan struct{}
}

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything allocates much
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"storage":  config.DataDir,
		"tiles":    filepath.Join(config.DataDir, assettypes.TilesDir),
		"database": config.DatabaseDir,
	}))
	metrics.InitializeMetrics(taskNames(), categoryNames())

	ctx := context.Background()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	svc := &services{db: db, stopClean: make(chan struct{})}
	go svc.cleanSessions()

	info, err := billing.RecordStart(ctx, db, time.Now())
	if err != nil {
		logging.Warn("Failed to record application start: %v", err)
	}
	startup.LogBillingInit(config, info)

	catalog := billing.NewCatalog()
	helper, err := billing.NewHelper(ctx, config.BillingConfig(),
		billing.NewClient(config.BillingURL, config.BillingHTTPTimeout),
		billing.NewSandboxPlatform(db, catalog), db, catalog)
	if err != nil {
		startup.LogFatal("Failed to initialize billing: %v", err)
	}
	svc.helper = helper

	svc.hub = handlers.NewEventHub()
	helper.SetListener(svc.hub)

	if helper.Available() && helper.NeedRequestInventory(ctx) {
		if err := helper.RequestInventory(); err != nil {
			logging.Warn("Initial inventory request not started: %v", err)
		}
	}

	startup.LogScannerInit(config)
	scanner := localindex.NewScanner(config.DataDir, db)
	scanner.SetWorkers(config.ScanWorkers)
	svc.indexer = localindex.NewIndexer(scanner, config.ScanInterval)
	svc.indexer.SetWatch(config.ScanWatch)
	svc.indexer.Start()
	startup.LogScannerStarted()

	svc.collector = metrics.NewCollector(metricsInterval, metrics.UpdaterFunc(db.UpdateDBMetrics))
	svc.collector.Start()

	svc.guard = memory.NewGuard(memory.DefaultGuardConfig())
	svc.guard.Start()

	h := handlers.New(db, svc.indexer, scanner, helper, svc.hub)
	h.SetMemoryGuard(svc.guard)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	authed := middleware.RequireAuth(db)(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(authed)

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(logged)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // websocket event streams stay open
		IdleTimeout:       60 * time.Second,
	}

	if config.MetricsEnabled {
		svc.metrics = startMetricsServer(config.MetricsPort, h)
	}

	go svc.handleShutdown(srv)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for the rest.
	<-shutdownDone
}

var shutdownDone = make(chan struct{})

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	// Routes live on the top-level router so a method mismatch answers 405;
	// subrouters sharing the /api prefix turn it into 404.
	r.HandleFunc("/api/auth/setup-required", h.CheckSetupRequired).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/setup", h.Setup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/check", h.CheckAuth).Methods(http.MethodGet)

	r.HandleFunc("/api/local-indexes", h.ListLocalIndexes).Methods(http.MethodGet)
	r.HandleFunc("/api/local-indexes/full-maps", h.ListFullMaps).Methods(http.MethodGet)
	r.HandleFunc("/api/local-indexes/reindex", h.TriggerReindex).Methods(http.MethodPost)
	r.HandleFunc("/api/local-indexes/installed", h.SetInstalled).Methods(http.MethodPost)
	r.HandleFunc("/api/tiles/{name}/preview", h.TilePreview).Methods(http.MethodGet)

	r.HandleFunc("/api/purchases", h.GetPurchases).Methods(http.MethodGet)
	r.HandleFunc("/api/purchases/inventory", h.RequestInventory).Methods(http.MethodPost)
	r.HandleFunc("/api/purchases/full-version", h.PurchaseFullVersion).Methods(http.MethodPost)
	r.HandleFunc("/api/purchases/depth-contours", h.PurchaseDepthContours).Methods(http.MethodPost)
	r.HandleFunc("/api/purchases/contour-lines", h.PurchaseContourLines).Methods(http.MethodPost)
	r.HandleFunc("/api/purchases/live-updates", h.PurchaseLiveUpdates).Methods(http.MethodPost)
	r.HandleFunc("/api/purchases/events", h.ServeEvents).Methods(http.MethodGet)

	return r
}

func startMetricsServer(port string, h *handlers.Handlers) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", h.MetricsHandler())
	m.HandleFunc("/health", h.LivenessCheck)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           m,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func (s *services) cleanSessions() {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.db.CleanExpiredSessions(context.Background()); err != nil {
				logging.Warn("Failed to clean expired sessions: %v", err)
			} else if n > 0 {
				logging.Debug("Removed %d expired sessions", n)
			}
		case <-s.stopClean:
			return
		}
	}
}

func (s *services) handleShutdown(srv *http.Server) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Stopping scanner")
	s.indexer.Stop()
	startup.LogShutdownStepComplete("Scanner stopped")

	// Hijacked websocket connections are not closed by Shutdown.
	startup.LogShutdownStep("Closing event streams")
	s.hub.Close()
	startup.LogShutdownStepComplete("Event streams closed")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Waiting for billing tasks")
	if err := s.helper.Close(); err != nil {
		logging.Warn("Billing shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Billing stopped")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	s.collector.Stop()
	s.guard.Stop()
	close(s.stopClean)
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("Metrics stopped")

	startup.LogShutdownStep("Closing database")
	if err := s.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}

func taskNames() []string {
	names := make([]string, 0, len(billing.TaskTypes))
	for _, t := range billing.TaskTypes {
		names = append(names, t.String())
	}
	return names
}

func categoryNames() []string {
	names := make([]string, 0, len(assettypes.Categories))
	for _, c := range assettypes.Categories {
		names = append(names, string(c))
	}
	return names
}
