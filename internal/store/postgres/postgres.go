// Package postgres implements the directory, ledger and device repositories on Postgres
// through database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"facekiosk/internal/attendance"
	"facekiosk/internal/errs"
	"facekiosk/internal/worker"
)

const schema = `
CREATE TABLE IF NOT EXISTS workers (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	role                TEXT NOT NULL,
	reference_photo_url TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	worker_id   TEXT NOT NULL,
	worker_name TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	method      TEXT NOT NULL,
	verified    BOOLEAN NOT NULL DEFAULT TRUE,
	user_agent  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_attendance_recorded_at ON attendance_records (recorded_at DESC);

CREATE TABLE IF NOT EXISTS devices (
	device_id     TEXT PRIMARY KEY,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token      TEXT PRIMARY KEY,
	device_id  TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Repository persists workers, attendance records and devices.
type Repository struct {
	db *sql.DB
}

// New creates a repository on db.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// -------- Workers --------

// InsertWorker writes a new profile; the database assigns created_at.
func (r *Repository) InsertWorker(ctx context.Context, p worker.Profile) (worker.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO workers (id, name, role, reference_photo_url)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, p.ID, p.Name, p.Role, p.ReferencePhotoURL)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return worker.Profile{}, err
	}
	return p, nil
}

// ListWorkers returns profiles oldest first.
func (r *Repository) ListWorkers(ctx context.Context) ([]worker.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, role, reference_photo_url, created_at
		FROM workers
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []worker.Profile
	for rows.Next() {
		var p worker.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.ReferencePhotoURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// GetWorker returns a single profile by id.
func (r *Repository) GetWorker(ctx context.Context, id string) (worker.Profile, error) {
	var p worker.Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, role, reference_photo_url, created_at
		FROM workers WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Role, &p.ReferencePhotoURL, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return worker.Profile{}, errs.ErrNotFound
	}
	return p, err
}

// DeleteWorker removes the profile row.
func (r *Repository) DeleteWorker(ctx context.Context, id string) error {
	return deleteOne(ctx, r.db, `DELETE FROM workers WHERE id = $1`, id)
}

// -------- Attendance --------

// InsertRecord appends a record; the database assigns recorded_at.
func (r *Repository) InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var lat, lng sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, worker_id, worker_name, latitude, longitude, method, verified, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING recorded_at
	`, rec.ID, rec.WorkerID, rec.WorkerName, lat, lng, string(rec.Method), rec.Verified, rec.UserAgent)
	if err := row.Scan(&rec.Timestamp); err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// ListRecords returns every record, newest first.
func (r *Repository) ListRecords(ctx context.Context) ([]attendance.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, worker_id, worker_name, recorded_at, latitude, longitude, method, verified, user_agent
		FROM attendance_records
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.Record
	for rows.Next() {
		var (
			rec      attendance.Record
			lat, lng sql.NullFloat64
			method   string
		)
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &rec.WorkerName, &rec.Timestamp, &lat, &lng, &method, &rec.Verified, &rec.UserAgent); err != nil {
			return nil, err
		}
		rec.Method = attendance.Method(method)
		if lat.Valid && lng.Valid {
			rec.Location = &attendance.Location{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// DeleteRecord removes a record by id.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	return deleteOne(ctx, r.db, `DELETE FROM attendance_records WHERE id = $1`, id)
}

// -------- Devices --------

// UpsertDevice ensures a device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errs.Required("device_id")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}

// ConsumeRefreshToken revokes a live token and returns its device.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var deviceID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
		RETURNING device_id
	`, token).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.ErrNotFound
	}
	return deviceID, err
}

// Healthy pings the database.
func (r *Repository) Healthy(ctx context.Context) bool {
	return r.db.PingContext(ctx) == nil
}

func deleteOne(ctx context.Context, db *sql.DB, query, id string) error {
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
