package attendance

import (
	"context"
	"log"
	"strings"
	"time"

	"facekiosk/internal/errs"
	"facekiosk/internal/metrics"
	"facekiosk/internal/queue"
)

// publishTimeout bounds the event publish so a full queue never stalls a kiosk.
const publishTimeout = 2 * time.Second

// Service is the append-only attendance ledger.
type Service struct {
	repo   Repository
	events queue.Publisher
}

// NewService creates a ledger backed by repo. events may be nil.
func NewService(repo Repository, events queue.Publisher) *Service {
	return &Service{repo: repo, events: events}
}

// Append writes a verified record. Publishing the follow-up event is best effort.
func (s *Service) Append(ctx context.Context, e Entry) (Record, error) {
	if strings.TrimSpace(e.WorkerID) == "" {
		return Record{}, errs.Required("worker_id")
	}
	if e.Method != MethodFaceScan && e.Method != MethodManualOverride {
		return Record{}, &errs.ValidationError{Field: "method", Message: "unknown method " + string(e.Method)}
	}

	rec, err := s.repo.InsertRecord(ctx, Record{
		WorkerID:   e.WorkerID,
		WorkerName: e.WorkerName,
		Location:   e.Location,
		Method:     e.Method,
		Verified:   true,
		UserAgent:  e.UserAgent,
	})
	if err != nil {
		return Record{}, errs.Persistence("record attendance", err)
	}
	log.Printf("attendance recorded for %s via %s", rec.WorkerID, rec.Method)
	metrics.AttendanceRecorded(string(rec.Method))

	if s.events != nil {
		msg, err := queue.NewMessage(queue.TypeAttendanceRecorded, rec)
		if err == nil {
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = s.events.Publish(pubCtx, msg)
			cancel()
		}
		if err != nil {
			log.Printf("warning: publish attendance event %s: %v", rec.ID, err)
		}
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.repo.ListRecords(ctx)
}

// Remove deletes a record by id.
func (s *Service) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.Required("id")
	}
	return errs.Persistence("delete attendance record", s.repo.DeleteRecord(ctx, id))
}
