// Package memory is a process-local store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"facekiosk/internal/attendance"
	"facekiosk/internal/errs"
	"facekiosk/internal/worker"
)

type refreshToken struct {
	deviceID  string
	expiresAt time.Time
	revoked   bool
}

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	workers []worker.Profile
	records []attendance.Record
	devices map[string]time.Time
	tokens  map[string]*refreshToken
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		devices: make(map[string]time.Time),
		tokens:  make(map[string]*refreshToken),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Healthy always reports true.
func (s *Store) Healthy(context.Context) bool { return true }

// -------- Workers --------

func (s *Store) InsertWorker(ctx context.Context, p worker.Profile) (worker.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	s.workers = append(s.workers, p)
	return p, nil
}

// ListWorkers returns profiles in insertion order.
func (s *Store) ListWorkers(ctx context.Context) ([]worker.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]worker.Profile(nil), s.workers...), nil
}

func (s *Store) GetWorker(ctx context.Context, id string) (worker.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.workers {
		if p.ID == id {
			return p, nil
		}
	}
	return worker.Profile{}, errs.ErrNotFound
}

func (s *Store) DeleteWorker(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.workers {
		if p.ID == id {
			s.workers = append(s.workers[:i], s.workers[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

// -------- Attendance --------

func (s *Store) InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.NewString()
	rec.Timestamp = s.now()
	s.records = append(s.records, rec)
	return rec, nil
}

// ListRecords returns records newest first; ties keep insertion order reversed.
func (s *Store) ListRecords(ctx context.Context) ([]attendance.Record, error) {
	s.mu.RLock()
	out := make([]attendance.Record, len(s.records))
	for i, rec := range s.records {
		out[len(out)-1-i] = rec
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

// -------- Devices --------

func (s *Store) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errs.Required("device_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		s.devices[deviceID] = s.now()
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = &refreshToken{deviceID: deviceID, expiresAt: expiresAt}
	return nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.revoked || !t.expiresAt.After(s.now()) {
		return "", errs.ErrNotFound
	}
	t.revoked = true
	return t.deviceID, nil
}
