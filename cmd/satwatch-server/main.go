package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"satwatch/internal/config"
	"satwatch/internal/logging"
	"satwatch/internal/registry"
	"satwatch/internal/render"
	"satwatch/internal/report"
	"satwatch/internal/server"
	"satwatch/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	logging.Setup(os.Getenv("SATWATCH_LOG_LEVEL"))

	settings, err := config.LoadSettings(config.SettingsPath())
	if err != nil {
		logging.Fatalf("Failed to load settings: %v", err)
	}

	reg, err := registry.Load(settings.RegistryPath)
	if err != nil {
		logging.Fatalf("Failed to load project registry: %v", err)
	}

	renderer, err := render.New(settings.RenderCacheSize)
	if err != nil {
		logging.Fatalf("Failed to initialize renderer: %v", err)
	}

	reports, err := report.Open(settings.ReportDBPath)
	if err != nil {
		logging.Fatalf("Failed to open report database: %v", err)
	}
	defer reports.Close()

	tracker := telemetry.New(slog.Default())
	defer tracker.Close()
	tracker.Track("server_started", map[string]interface{}{
		"projects": len(reg.Codes()),
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
	}))
	router.Use(server.RateLimitMiddleware(20))

	handler := server.NewHandler(settings, reg, renderer, reports, logging.Component("server"))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr, "data_dir", settings.DataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
