package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"facekiosk/internal/app"
	"facekiosk/internal/config"
	"facekiosk/internal/notify"
)

// Worker consumes attendance events, mails override alerts and sends the daily report.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue, QUEUE_BACKEND=memory is only consumed inside the api")
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	var alerts notify.AlertSender
	if cfg.Report.MailEnabled() {
		mailer := notify.NewMailer(cfg.Report)
		alerts = mailer

		scheduler, err := notify.ScheduleDailyReport(cfg.Report.Cron, cfg.Report.Location(), a.Ledger, mailer)
		if err != nil {
			log.Fatalf("report schedule failed: %v", err)
		}
		scheduler.StartAsync()
		defer scheduler.Stop()
		log.Printf("daily report scheduled (%s %s)", cfg.Report.Cron, cfg.Report.Location())
	} else {
		log.Println("warning: SMTP not configured, alerts and reports are disabled")
	}

	log.Println("worker started, waiting for messages...")
	if err := notify.Consume(ctx, a.Queue, alerts); err != nil {
		log.Fatalf("consume failed: %v", err)
	}
	log.Println("worker stopped")
}
