package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sessionpulse/telemetry-service/internal/config"
	"sessionpulse/telemetry-service/internal/handler"
	"sessionpulse/telemetry-service/internal/middleware"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/db"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
	"sessionpulse/telemetry-service/pkg/metrics"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize logger
	log := logger.NewLogger("telemetry-service")
	log.Info("Starting Telemetry Service...")

	// Load .env if present (local development)
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env file")
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}

	// Initialize database connection with retry
	conn, err := db.NewConnection(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBDatabase,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer conn.Close()
	database := conn.DB

	// Validate schema. At-most-once ingestion depends on the unique index
	// on sessions.session_id, so a bad schema refuses to start.
	schemaGuard := db.NewSchemaGuard(database)
	if err := schemaGuard.ValidateTables([]db.TableSchema{
		{
			Name: "users",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "external_id", DataType: "varchar"},
				{Name: "created_at", DataType: "datetime"},
			},
			UniqueIndexes: []string{"uq_users_external_id"},
		},
		{
			Name: "sessions",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "user_id", DataType: "bigint"},
				{Name: "device_id", DataType: "varchar", Nullable: true},
				{Name: "session_id", DataType: "varchar"},
				{Name: "started_at", DataType: "datetime"},
				{Name: "duration_seconds", DataType: "int"},
				{Name: "sentiment_score", DataType: "decimal", Nullable: true},
				{Name: "created_at", DataType: "datetime"},
			},
			UniqueIndexes: []string{"uq_sessions_session_id"},
		},
		{
			Name: "dashboard_rollups",
			Columns: []db.ColumnType{
				{Name: "user_id", DataType: "bigint"},
				{Name: "last_session_at", DataType: "datetime", Nullable: true},
				{Name: "daily_activity", DataType: "json"},
				{Name: "daily_durations", DataType: "json"},
				{Name: "daily_sentiment", DataType: "json"},
				{Name: "avg_duration_minutes", DataType: "int"},
				{Name: "current_tone", DataType: "varchar"},
				{Name: "updated_at", DataType: "datetime"},
			},
		},
		{
			Name: "device_latest_heartbeat",
			Columns: []db.ColumnType{
				{Name: "device_id", DataType: "varchar"},
				{Name: "agent_version", DataType: "varchar"},
				{Name: "connectivity", DataType: "varchar"},
				{Name: "signal_rssi", DataType: "int"},
				{Name: "latency_ms", DataType: "int"},
				{Name: "agent_status", DataType: "varchar"},
				{Name: "last_session_at", DataType: "datetime", Nullable: true},
				{Name: "boot_time", DataType: "datetime", Nullable: true},
				{Name: "server_received_at", DataType: "datetime"},
			},
		},
		{
			Name: "device_heartbeat_events",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "device_id", DataType: "varchar"},
				{Name: "raw_payload", DataType: "json"},
				{Name: "server_received_at", DataType: "datetime"},
			},
		},
		{
			Name: "device_commands",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "char"},
				{Name: "device_id", DataType: "varchar"},
				{Name: "command_type", DataType: "varchar"},
				{Name: "status", DataType: "varchar"},
				{Name: "error_message", DataType: "text", Nullable: true},
				{Name: "created_at", DataType: "datetime"},
				{Name: "updated_at", DataType: "datetime"},
			},
		},
		{
			Name: "device_log_snapshots",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "device_id", DataType: "varchar"},
				{Name: "log_content", DataType: "mediumtext"},
				{Name: "created_at", DataType: "datetime"},
			},
		},
	}); err != nil {
		log.Fatal("Schema validation failed", "error", err)
	}

	log.Info("Database connected and schema validated")

	// Initialize repositories
	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	rollupRepo := repository.NewRollupRepository(database)
	heartbeatRepo := repository.NewHeartbeatRepository(database)
	commandRepo := repository.NewCommandRepository(database)

	// Initialize services
	clock := service.UTCClock{}
	rollupService := service.NewRollupService(sessionRepo, rollupRepo, cfg.RollupWindowDays, log)
	ingestService := service.NewIngestService(userRepo, sessionRepo, rollupService, clock, log)
	dashboardService := service.NewDashboardService(userRepo, rollupRepo)
	heartbeatService := service.NewHeartbeatService(heartbeatRepo, log)
	commandService := service.NewCommandService(commandRepo, log)

	// Initialize handlers
	validator := helpers.NewCustomValidator()
	ingestHandler := handler.NewIngestHandler(ingestService, validator, log)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, clock, log)
	heartbeatHandler := handler.NewHeartbeatHandler(heartbeatService, validator, clock, log)
	commandHandler := handler.NewCommandHandler(commandService, validator, log)
	healthHandler := handler.NewHealthHandler(database, sessionRepo)

	serviceMetrics := metrics.NewMetrics("telemetry")

	serviceAuth := middleware.ServiceTokenMiddleware(cfg)
	adminAuth := middleware.AdminTokenMiddleware(cfg)
	dashboardAuth := middleware.DashboardAuthMiddleware(cfg, dashboardUserFromPath)
	fleetAuth := middleware.DashboardAuthMiddleware(cfg, func(*http.Request) string { return "*" })
	ingestThrottle := middleware.ThrottleMiddleware(120, time.Minute, middleware.DeviceKey)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		mux.Handle(pattern, chain(h, append(mws, metrics.HTTPMiddleware(serviceMetrics, pattern))...))
	}

	// Device agent routes
	route("/internal/ingest/session_summary", ingestHandler.IngestSessionSummary, serviceAuth, ingestThrottle)
	route("/internal/ingest/logs", commandHandler.UploadLogs, serviceAuth)
	route("/internal/heartbeat", heartbeatHandler.RecordHeartbeat, serviceAuth, ingestThrottle)
	route("/internal/commands/pending", commandHandler.PollPending, serviceAuth)
	route("/internal/commands/", commandHandler.ReportStatus, serviceAuth)

	// Dashboard routes
	route("/api/dashboard/", dashboardHandler.GetDashboard, dashboardAuth)
	route("/api/heartbeats", heartbeatHandler.ListHeartbeats, fleetAuth)

	// Admin routes
	route("/admin/commands", commandHandler.CreateCommand, adminAuth)
	route("/admin/logs/", commandHandler.GetDeviceLogs, adminAuth)

	// Probes stay unauthenticated for the orchestrator
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.HandleFunc("/readyz", healthHandler.Readyz)

	root := middleware.LoggingMiddleware(log)(middleware.CORSMiddleware(cfg.AllowedOrigins)(mux))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics endpoint on its own port
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server stopped", "error", err)
		}
	}()

	// Report DB pool stats periodically
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := conn.Stats()
			serviceMetrics.RecordDBPoolStats(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount, stats.WaitDuration)
		}
	}()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Server shutdown failed", "error", err)
		}
		metricsServer.Shutdown(ctx)
		conn.Close()
		log.Info("Shutdown complete")
	}()

	log.Info("Telemetry Service started", "port", cfg.HTTPPort, "metrics_port", cfg.MetricsPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Failed to serve", "error", err)
	}
}

// chain applies middleware left to right, so the first listed runs first
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// dashboardUserFromPath extracts the user external id from /api/dashboard/{id}
func dashboardUserFromPath(r *http.Request) string {
	rest := strings.TrimPrefix(r.URL.Path, "/api/dashboard/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
