// Package workflow implements the per-session verification state machine that runs on a
// kiosk: capture, compare, record, and the supervisor override branch.
package workflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"facekiosk/internal/attendance"
	"facekiosk/internal/errs"
	"facekiosk/internal/metrics"
	"facekiosk/internal/verify"
)

// State is a workflow state.
type State string

const (
	Idle            State = "idle"
	Processing      State = "processing"
	Success         State = "success"
	Error           State = "error"
	ConfirmOverride State = "confirm_override"
)

var (
	// ErrMismatch is the outcome of a comparison that succeeded but did not match.
	ErrMismatch = errors.New("identity mismatch: biometric verification failed")
	// ErrInvalidTransition is returned for an operation not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrLockedOut is returned by Capture once the failure policy limit is reached.
	ErrLockedOut = errors.New("too many failed attempts, ask a supervisor for a manual override")
	// ErrClosed is returned once the session has been dismissed or abandoned.
	ErrClosed = errors.New("session closed")
)

// Verifier is the identity verification gateway.
type Verifier interface {
	Verify(ctx context.Context, referenceURL string, captured []byte) (verify.Result, error)
}

// Ledger appends attendance records.
type Ledger interface {
	Append(ctx context.Context, e attendance.Entry) (attendance.Record, error)
}

// Subject is the worker the session verifies.
type Subject struct {
	WorkerID          string
	WorkerName        string
	ReferencePhotoURL string
	UserAgent         string
}

// Policy holds the session timings and the optional lockout limit.
type Policy struct {
	// MaxFailures locks face capture after that many mismatches; 0 disables the lockout.
	MaxFailures  int
	GeoTimeout   time.Duration
	DismissDelay time.Duration
}

// DefaultPolicy mirrors the kiosk defaults.
func DefaultPolicy() Policy {
	return Policy{GeoTimeout: 5 * time.Second, DismissDelay: 2 * time.Second}
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	State      State              `json:"state"`
	WorkerID   string             `json:"worker_id"`
	WorkerName string             `json:"worker_name"`
	Failures   int                `json:"failures"`
	LockedOut  bool               `json:"locked_out"`
	Message    string             `json:"message,omitempty"`
	Record     *attendance.Record `json:"record,omitempty"`
	Dismissed  bool               `json:"dismissed"`
	Err        error              `json:"-"`
}

// Session is one worker's attempt, from profile selection to Success or abandonment.
// Methods are safe for concurrent use; operations not allowed in the current state fail
// with ErrInvalidTransition and leave the session untouched.
type Session struct {
	subject  Subject
	verifier Verifier
	ledger   Ledger
	policy   Policy
	onDone   func(*Session)

	mu        sync.Mutex
	state     State
	failures  int
	frame     []byte
	err       error
	record    *attendance.Record
	dismiss   *time.Timer
	dismissed bool
	closed    bool
}

// New starts a session at Idle. onDone, if set, is called once after the auto-dismiss
// delay that follows Success.
func New(subject Subject, verifier Verifier, ledger Ledger, policy Policy, onDone func(*Session)) *Session {
	if policy.GeoTimeout <= 0 {
		policy.GeoTimeout = 5 * time.Second
	}
	if policy.DismissDelay <= 0 {
		policy.DismissDelay = 2 * time.Second
	}
	return &Session{
		subject:  subject,
		verifier: verifier,
		ledger:   ledger,
		policy:   policy,
		onDone:   onDone,
		state:    Idle,
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      s.state,
		WorkerID:   s.subject.WorkerID,
		WorkerName: s.subject.WorkerName,
		Failures:   s.failures,
		LockedOut:  s.lockedLocked(),
		Dismissed:  s.dismissed,
		Err:        s.err,
	}
	if s.err != nil {
		snap.Message = s.err.Error()
	}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	return snap
}

func (s *Session) lockedLocked() bool {
	return s.policy.MaxFailures > 0 && s.failures >= s.policy.MaxFailures
}

// transition moves from one of the allowed states to next.
func (s *Session) transition(next State, from ...State) error {
	if s.closed {
		return ErrClosed
	}
	for _, st := range from {
		if s.state == st {
			s.state = next
			return nil
		}
	}
	return ErrInvalidTransition
}

// Capture verifies frame against the worker's reference photo. The returned error is
// non-nil only when the capture was rejected; verification outcomes, including
// mismatches, are reported in the snapshot. locator may be nil.
func (s *Session) Capture(ctx context.Context, frame []byte, locator Locator) (Snapshot, error) {
	if len(frame) == 0 {
		return s.Snapshot(), errs.Required("frame")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Snapshot(), ErrClosed
	}
	if s.state == Idle && s.lockedLocked() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrLockedOut
	}
	if err := s.transition(Processing, Idle); err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	s.frame = frame
	s.mu.Unlock()

	if s.subject.ReferencePhotoURL == "" {
		metrics.ObserveVerification(metrics.OutcomeNoReference, 0)
		return s.fail(verify.ErrReferenceUnavailable, false), nil
	}

	// The comparison is not cancelled when the caller goes away; the gateway bounds it.
	detached := context.WithoutCancel(ctx)
	loc := locate(detached, locator, s.policy.GeoTimeout)

	start := time.Now()
	res, err := s.verifier.Verify(detached, s.subject.ReferencePhotoURL, frame)
	if err != nil {
		metrics.ObserveVerification(outcomeOf(err), time.Since(start))
		log.Printf("workflow: verification for %s failed: %v", s.subject.WorkerID, err)
		return s.fail(err, false), nil
	}
	if !res.Match {
		metrics.ObserveVerification(metrics.OutcomeMismatch, time.Since(start))
		log.Printf("workflow: identity mismatch for %s", s.subject.WorkerID)
		return s.fail(ErrMismatch, true), nil
	}
	metrics.ObserveVerification(metrics.OutcomeMatch, time.Since(start))

	return s.commit(detached, attendance.Entry{
		WorkerID:   s.subject.WorkerID,
		WorkerName: s.subject.WorkerName,
		Location:   loc,
		Method:     attendance.MethodFaceScan,
		UserAgent:  s.subject.UserAgent,
	}, "")
}

// Retry discards the captured frame and the error and returns to Idle.
func (s *Session) Retry() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(Idle, Error); err != nil {
		return s.snapshotLocked(), err
	}
	s.frame = nil
	s.err = nil
	return s.snapshotLocked(), nil
}

// InitiateOverride asks for supervisor confirmation. It is allowed whatever the failure
// count is.
func (s *Session) InitiateOverride() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.transition(ConfirmOverride, Idle)
	return s.snapshotLocked(), err
}

// CancelOverride returns to Idle without recording anything.
func (s *Session) CancelOverride() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.transition(Idle, ConfirmOverride)
	return s.snapshotLocked(), err
}

// ConfirmOverride records a manual override without a face comparison or location.
func (s *Session) ConfirmOverride(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if err := s.transition(Processing, ConfirmOverride); err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	s.mu.Unlock()

	log.Printf("workflow: manual override confirmed for %s", s.subject.WorkerID)
	return s.commit(context.WithoutCancel(ctx), attendance.Entry{
		WorkerID:   s.subject.WorkerID,
		WorkerName: s.subject.WorkerName,
		Method:     attendance.MethodManualOverride,
		UserAgent:  s.subject.UserAgent,
	}, "override failed: ")
}

// Close abandons the session. A pending auto-dismiss is stopped and an in-flight
// verification finishes without recording anything. An append already sent to the
// ledger may still land, but the session never reaches Success.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.dismiss != nil {
		s.dismiss.Stop()
	}
}

// commit appends e while the session is Processing and moves to Success or Error.
func (s *Session) commit(ctx context.Context, e attendance.Entry, errPrefix string) (Snapshot, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return s.Snapshot(), ErrClosed
	}

	rec, err := s.ledger.Append(ctx, e)
	if err != nil {
		if errPrefix != "" {
			err = &prefixedError{prefix: errPrefix, err: err}
		}
		return s.fail(err, false), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// An append already under way cannot be withdrawn, but an abandoned session never
	// reaches Success.
	if s.closed {
		log.Printf("warning: session for %s closed while record %s was being written", s.subject.WorkerID, rec.ID)
		return s.snapshotLocked(), ErrClosed
	}
	s.state = Success
	s.frame = nil
	s.record = &rec
	s.dismiss = time.AfterFunc(s.policy.DismissDelay, s.autoDismiss)
	return s.snapshotLocked(), nil
}

func (s *Session) fail(err error, mismatch bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mismatch {
		s.failures++
	}
	s.state = Error
	s.err = err
	return s.snapshotLocked()
}

func (s *Session) autoDismiss() {
	s.mu.Lock()
	if s.closed || s.state != Success {
		s.mu.Unlock()
		return
	}
	s.dismissed = true
	s.closed = true
	s.mu.Unlock()

	if s.onDone != nil {
		s.onDone(s)
	}
}

func outcomeOf(err error) string {
	var (
		fe *verify.FetchError
		ve *errs.ValidationError
	)
	switch {
	case errors.Is(err, verify.ErrReferenceUnavailable):
		return metrics.OutcomeNoReference
	case errors.As(err, &fe):
		return metrics.OutcomeFetchError
	case errors.As(err, &ve):
		return metrics.OutcomeBadFrame
	default:
		return metrics.OutcomeServiceErr
	}
}

type prefixedError struct {
	prefix string
	err    error
}

func (e *prefixedError) Error() string { return e.prefix + e.err.Error() }

func (e *prefixedError) Unwrap() error { return e.err }
