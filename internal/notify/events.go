package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"facekiosk/internal/attendance"
	"facekiosk/internal/queue"
)

// AlertSender mails override alerts.
type AlertSender interface {
	OverrideAlert(rec attendance.Record) error
}

// ReportSender mails the daily report.
type ReportSender interface {
	DailyReport(day time.Time, records []attendance.Record) error
}

// RecordLister reads the ledger.
type RecordLister interface {
	List(ctx context.Context) ([]attendance.Record, error)
}

// Consume drains attendance events until ctx is done and alerts on manual overrides.
// alerts may be nil, in which case events are only logged.
func Consume(ctx context.Context, q queue.Queue, alerts AlertSender) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		handleEvent(msg, alerts)
	}
	return nil
}

func handleEvent(msg queue.Message, alerts AlertSender) {
	if msg.Type != queue.TypeAttendanceRecorded {
		log.Printf("warning: ignoring message of type %q", msg.Type)
		return
	}
	var rec attendance.Record
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		log.Printf("warning: malformed attendance event: %v", err)
		return
	}
	log.Printf("event: attendance %s for %s via %s", rec.ID, rec.WorkerID, rec.Method)

	if rec.Method != attendance.MethodManualOverride || alerts == nil {
		return
	}
	if err := alerts.OverrideAlert(rec); err != nil {
		log.Printf("warning: override alert for %s not sent: %v", rec.ID, err)
	}
}

// SendDailyReport mails the records that fall on day in loc.
func SendDailyReport(ctx context.Context, lister RecordLister, sender ReportSender, day time.Time, loc *time.Location) error {
	records, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list attendance: %w", err)
	}
	return sender.DailyReport(day, attendance.FilterDay(records, day, loc))
}

// ScheduleDailyReport registers a job that reports the previous day on cronExpr.
// The caller starts and stops the returned scheduler.
func ScheduleDailyReport(cronExpr string, loc *time.Location, lister RecordLister, sender ReportSender) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(loc)
	_, err := s.Cron(cronExpr).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		yesterday := time.Now().In(loc).AddDate(0, 0, -1)
		if err := SendDailyReport(ctx, lister, sender, yesterday, loc); err != nil {
			log.Printf("warning: daily report failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule daily report %q: %w", cronExpr, err)
	}
	return s, nil
}
