package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/app"
	"facekiosk/internal/config"
	"facekiosk/internal/notify"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r, sessions, err := a.Server(ctx)
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	// The in-memory queue only lives in this process, so drain it here.
	if cfg.QueueBackend == "memory" {
		var alerts notify.AlertSender
		if cfg.Report.MailEnabled() {
			alerts = notify.NewMailer(cfg.Report)
		}
		go func() {
			if err := notify.Consume(ctx, a.Queue, alerts); err != nil {
				log.Printf("warning: event consumer stopped: %v", err)
			}
		}()
	}

	// Captures wait on the reference fetch and the comparison, so writes get more room
	// than reads.
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Verify.FetchTimeout + cfg.Verify.CompareTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}
