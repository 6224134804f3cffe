package attendance

import (
	"context"
	"time"
)

// Method records how an attendance entry was authorized.
type Method string

const (
	MethodFaceScan       Method = "Face Scan"
	MethodManualOverride Method = "MANUAL_OVERRIDE"
)

// Location is a best-effort device position.
type Location struct {
	Latitude  float64 `json:"lat" bson:"lat"`
	Longitude float64 `json:"lng" bson:"lng"`
}

// Record is an immutable ledger entry. Failed attempts are never stored, so Verified is
// always true for records that exist.
type Record struct {
	ID         string    `json:"id"`
	WorkerID   string    `json:"worker_id"`
	WorkerName string    `json:"worker_name"`
	Timestamp  time.Time `json:"timestamp"`
	Location   *Location `json:"location,omitempty"`
	Method     Method    `json:"method"`
	Verified   bool      `json:"verified"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Entry is the input for a ledger append.
type Entry struct {
	WorkerID   string
	WorkerName string
	Location   *Location
	Method     Method
	UserAgent  string
}

// Repository is the document-store contract the ledger needs.
type Repository interface {
	// InsertRecord stores rec and returns it with ID and Timestamp assigned.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	// ListRecords returns every record ordered by timestamp descending.
	ListRecords(ctx context.Context) ([]Record, error)
	// DeleteRecord removes a record; errs.ErrNotFound if it does not exist.
	DeleteRecord(ctx context.Context, id string) error
}
