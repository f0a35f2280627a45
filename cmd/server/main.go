package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cellclash/insight/internal/api/handlers"
	"github.com/cellclash/insight/internal/session"
	"github.com/cellclash/insight/internal/storage"
	"github.com/cellclash/insight/internal/websocket"
	"github.com/cellclash/insight/pkg/config"
	"github.com/cellclash/insight/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize logger
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.WithFields(logrus.Fields{
		"service": "insight-service",
		"port":    cfg.Port,
		"env":     cfg.Env,
	}).Info("Starting insight service")

	// Initialize session archive (optional)
	var archiveStore *storage.Archive
	if cfg.EnableArchive && cfg.DatabaseURL != "" {
		db, err := initDatabase(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize database")
		}
		archiveStore = storage.NewArchive(db, log)
	} else {
		log.Warn("Session archive disabled; closed sessions will not be stored durably")
	}

	// Initialize snapshot store (optional)
	var snapshots *storage.SnapshotStore
	if cfg.RedisURL != "" {
		snapshots, err = storage.NewSnapshotStore(cfg.RedisURL, cfg.SnapshotTTL, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Redis")
		}
		defer snapshots.Close()
	} else {
		log.Warn("Snapshot store disabled; idle sessions cannot be restored")
	}

	// Initialize session manager
	manager := session.NewManager(cfg, snapshots, archiveStore, log)

	// Initialize WebSocket hub for live pattern overlays
	wsHub := websocket.NewOverlayHub(log)
	go wsHub.Run()

	// Initialize API handlers
	sessionHandler := handlers.NewSessionHandler(
		manager,
		wsHub,
		snapshots,
		archiveStore,
		cfg,
		log,
	)

	// Set up router
	router := setupRouter(sessionHandler, wsHub, cfg, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start idle-session reaper
	go func() {
		if err := manager.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("Session reaper failed")
		}
	}()

	// Start server
	go func() {
		log.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Cancel background services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Persist live sessions before the process exits
	manager.CloseAll(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func initDatabase(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	log.Info("Connecting to database...")

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := storage.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database connection established")
	return db, nil
}

func setupRouter(sessionHandler *handlers.SessionHandler, wsHub *websocket.OverlayHub, cfg *config.Config, log *logrus.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg))
	router.Use(loggingMiddleware(log))

	// Health check
	router.GET("/health", sessionHandler.HealthCheck)
	router.GET("/ready", sessionHandler.ReadinessCheck)

	// API routes
	api := router.Group("/api/v1")
	{
		// Session lifecycle
		api.POST("/sessions", sessionHandler.CreateSession)
		api.GET("/sessions/:session_id", sessionHandler.GetSessionSummary)
		api.GET("/sessions/:session_id/summary", sessionHandler.GetSessionSummary)
		api.DELETE("/sessions/:session_id", sessionHandler.CloseSession)

		// Move recording and analysis
		api.POST("/sessions/:session_id/moves", sessionHandler.RecordMove)
		api.GET("/sessions/:session_id/heatmap", sessionHandler.GetHeatmap)
		api.GET("/sessions/:session_id/patterns", sessionHandler.GetPatterns)
		api.GET("/sessions/:session_id/metrics", sessionHandler.GetMetrics)
		api.POST("/sessions/:session_id/predictions", sessionHandler.PredictMoves)

		// State management
		api.POST("/sessions/:session_id/reset", sessionHandler.ResetSession)
		api.GET("/sessions/:session_id/export", sessionHandler.ExportSession)
		api.POST("/sessions/:session_id/import", sessionHandler.ImportSession)

		// Archived sessions
		api.GET("/archives", sessionHandler.ListArchivedSessions)

		// WebSocket endpoint for live pattern overlays
		api.GET("/ws/:session_id", wsHub.HandleWebSocket)
	}

	// Admin routes
	admin := router.Group("/admin")
	{
		admin.GET("/status", sessionHandler.GetServiceStatus)
	}

	return router
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.CorsOrigins))
	allowAll := false
	for _, origin := range cfg.CorsOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func loggingMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return gin.LoggerWithWriter(log.Writer())
}

// NewGormLogger creates a GORM logger that integrates with logrus
func NewGormLogger(log *logrus.Logger) *GormLogger {
	return &GormLogger{logger: log}
}

type GormLogger struct {
	logger *logrus.Logger
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Infof(msg, data...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Warnf(msg, data...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Errorf(msg, data...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil {
		l.logger.WithContext(ctx).WithFields(logrus.Fields{
			"elapsed": elapsed,
			"rows":    rows,
			"sql":     sql,
		}).WithError(err).Error("Database query failed")
	} else {
		l.logger.WithContext(ctx).WithFields(logrus.Fields{
			"elapsed": elapsed,
			"rows":    rows,
			"sql":     sql,
		}).Debug("Database query executed")
	}
}
