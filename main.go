package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seocheck/config"
	"github.com/seo-optimizer/seocheck/logging"
	"github.com/seo-optimizer/seocheck/middleware"
	"github.com/seo-optimizer/seocheck/stats"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	storage, err := stats.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize stats storage:", err)
	}

	requestStats := logging.New(filepath.Join(cfg.DataDir, "statistics.json"), cfg.DevMode)

	srv := newServer(cfg, storage, requestStats)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.router(rateLimiter),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	srv.close()

	if err := requestStats.Save(); err != nil {
		log.Printf("Failed to save statistics: %v", err)
	}
	if err := storage.Shutdown(); err != nil {
		log.Printf("Failed to shutdown stats storage: %v", err)
	}
}
