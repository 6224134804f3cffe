// Package kiosk keeps one verification session per kiosk device.
package kiosk

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"facekiosk/internal/errs"
	"facekiosk/internal/metrics"
	"facekiosk/internal/worker"
	"facekiosk/internal/workflow"
)

// ErrSessionNotFound is returned for unknown, dismissed or foreign sessions.
var ErrSessionNotFound = errors.New("session not found")

// Directory looks up worker profiles.
type Directory interface {
	Get(ctx context.Context, id string) (worker.Profile, error)
}

type entry struct {
	id       string
	deviceID string
	session  *workflow.Session
}

// Manager owns the open sessions. Starting a session on a device abandons the previous
// one, and a session that reaches Success is dropped once its auto-dismiss fires.
type Manager struct {
	directory Directory
	verifier  workflow.Verifier
	ledger    workflow.Ledger
	policy    workflow.Policy

	mu       sync.Mutex
	sessions map[string]*entry
	byDevice map[string]string
}

// NewManager creates a manager.
func NewManager(directory Directory, verifier workflow.Verifier, ledger workflow.Ledger, policy workflow.Policy) *Manager {
	return &Manager{
		directory: directory,
		verifier:  verifier,
		ledger:    ledger,
		policy:    policy,
		sessions:  make(map[string]*entry),
		byDevice:  make(map[string]string),
	}
}

// Open starts a fresh session for workerID on deviceID.
func (m *Manager) Open(ctx context.Context, deviceID, workerID, userAgent string) (string, *workflow.Session, error) {
	if deviceID == "" {
		return "", nil, errs.Required("device_id")
	}
	p, err := m.directory.Get(ctx, workerID)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	subject := workflow.Subject{
		WorkerID:          p.ID,
		WorkerName:        p.Name,
		ReferencePhotoURL: p.ReferencePhotoURL,
		UserAgent:         userAgent,
	}
	s := workflow.New(subject, m.verifier, m.ledger, m.policy, func(*workflow.Session) {
		m.drop(id)
	})

	m.mu.Lock()
	if prev, ok := m.byDevice[deviceID]; ok {
		m.closeLocked(prev)
	}
	m.sessions[id] = &entry{id: id, deviceID: deviceID, session: s}
	m.byDevice[deviceID] = id
	m.mu.Unlock()

	metrics.SessionOpened()
	log.Printf("kiosk: session %s opened on %s for worker %s", id, deviceID, p.ID)
	return id, s, nil
}

// Get returns the session id if it belongs to deviceID.
func (m *Manager) Get(deviceID, id string) (*workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.deviceID != deviceID {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// Current returns the active session of deviceID, if any.
func (m *Manager) Current(deviceID string) (string, *workflow.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDevice[deviceID]
	if !ok {
		return "", nil, false
	}
	return id, m.sessions[id].session, true
}

// Abandon closes a session without recording anything.
func (m *Manager) Abandon(deviceID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.deviceID != deviceID {
		return ErrSessionNotFound
	}
	m.closeLocked(id)
	log.Printf("kiosk: session %s abandoned", id)
	return nil
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll abandons every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.closeLocked(id)
	}
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		m.removeLocked(e)
		log.Printf("kiosk: session %s dismissed", id)
	}
}

func (m *Manager) closeLocked(id string) {
	e, ok := m.sessions[id]
	if !ok {
		return
	}
	e.session.Close()
	m.removeLocked(e)
}

func (m *Manager) removeLocked(e *entry) {
	delete(m.sessions, e.id)
	if m.byDevice[e.deviceID] == e.id {
		delete(m.byDevice, e.deviceID)
	}
	metrics.SessionClosed()
}
