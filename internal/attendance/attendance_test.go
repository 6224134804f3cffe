package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"facekiosk/internal/errs"
	"facekiosk/internal/queue"
)

type fakeRepo struct {
	records   []Record
	insertErr error
	deleteErr error
	now       time.Time
}

func (f *fakeRepo) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if f.insertErr != nil {
		return Record{}, f.insertErr
	}
	rec.ID = "rec-" + string(rune('a'+len(f.records)))
	rec.Timestamp = f.now
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeRepo) ListRecords(ctx context.Context) ([]Record, error) {
	return f.records, nil
}

func (f *fakeRepo) DeleteRecord(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

type recordingPublisher struct {
	msgs []queue.Message
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg queue.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestAppend_AlwaysVerified(t *testing.T) {
	repo := &fakeRepo{now: time.Now()}
	svc := NewService(repo, nil)

	rec, err := svc.Append(context.Background(), Entry{WorkerID: "W1", WorkerName: "Juan Cruz", Method: MethodManualOverride})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !rec.Verified {
		t.Error("expected appended record to be verified")
	}
	if rec.Location != nil {
		t.Errorf("expected nil location, got %+v", rec.Location)
	}
	if len(repo.records) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(repo.records))
	}
}

func TestAppend_Validation(t *testing.T) {
	svc := NewService(&fakeRepo{}, nil)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing worker", Entry{Method: MethodFaceScan}},
		{"unknown method", Entry{WorkerID: "W1", Method: "Fingerprint"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), tc.entry)
			var verr *errs.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAppend_PersistenceError(t *testing.T) {
	svc := NewService(&fakeRepo{insertErr: errors.New("connection reset")}, nil)

	_, err := svc.Append(context.Background(), Entry{WorkerID: "W1", Method: MethodFaceScan})
	var perr *errs.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestAppend_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(&fakeRepo{now: time.Now()}, pub)

	if _, err := svc.Append(context.Background(), Entry{WorkerID: "W1", WorkerName: "Juan", Method: MethodFaceScan}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.msgs))
	}
	var rec Record
	if err := json.Unmarshal(pub.msgs[0].Body, &rec); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if rec.WorkerID != "W1" || rec.Method != MethodFaceScan {
		t.Errorf("unexpected event body: %+v", rec)
	}
}

func TestAppend_PublishFailureDoesNotFail(t *testing.T) {
	svc := NewService(&fakeRepo{now: time.Now()}, &recordingPublisher{err: errors.New("redis down")})

	if _, err := svc.Append(context.Background(), Entry{WorkerID: "W1", Method: MethodFaceScan}); err != nil {
		t.Errorf("expected append to succeed despite publish failure, got %v", err)
	}
}

func TestRemove_NotFound(t *testing.T) {
	svc := NewService(&fakeRepo{}, nil)

	err := svc.Remove(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove_DeletesRecord(t *testing.T) {
	repo := &fakeRepo{now: time.Now()}
	svc := NewService(repo, nil)
	rec, _ := svc.Append(context.Background(), Entry{WorkerID: "W1", Method: MethodFaceScan})

	if err := svc.Remove(context.Background(), rec.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	list, _ := svc.List(context.Background())
	if len(list) != 0 {
		t.Errorf("expected empty ledger, got %d records", len(list))
	}
}

func TestFilterHistory_DateRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "inside", WorkerID: "W1", Timestamp: now.Add(-7*24*time.Hour + time.Second)},
		{ID: "outside", WorkerID: "W1", Timestamp: now.Add(-7*24*time.Hour - time.Second)},
		{ID: "recent", WorkerID: "W2", Timestamp: now.Add(-time.Hour)},
	}

	got := FilterHistory(records, HistoryFilter{DateRange: "7"}, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, r := range got {
		if r.ID == "outside" {
			t.Error("record older than 7 days should be excluded")
		}
	}
}

func TestFilterHistory_WorkerAndAll(t *testing.T) {
	now := time.Now()
	records := []Record{
		{ID: "a", WorkerID: "W1", Timestamp: now.Add(-100 * 24 * time.Hour)},
		{ID: "b", WorkerID: "W2", Timestamp: now},
	}

	tests := []struct {
		name   string
		filter HistoryFilter
		want   int
	}{
		{"all", HistoryFilter{DateRange: RangeAll}, 2},
		{"empty", HistoryFilter{}, 2},
		{"worker", HistoryFilter{WorkerID: "W1", DateRange: RangeAll}, 1},
		{"worker in 30 days", HistoryFilter{WorkerID: "W1", DateRange: "30"}, 0},
		{"all workers keyword", HistoryFilter{WorkerID: "ALL", DateRange: "30"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FilterHistory(records, tc.filter, now); len(got) != tc.want {
				t.Errorf("expected %d records, got %d", tc.want, len(got))
			}
		})
	}
}

func TestHistoryFilter_Validate(t *testing.T) {
	for _, ok := range []string{"", "ALL", "7", "30"} {
		if err := (HistoryFilter{DateRange: ok}).Validate(); err != nil {
			t.Errorf("expected %q to be valid, got %v", ok, err)
		}
	}
	for _, bad := range []string{"0", "-1", "week"} {
		if err := (HistoryFilter{DateRange: bad}).Validate(); err == nil {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestFilterDay(t *testing.T) {
	loc := time.FixedZone("PHT", 8*3600)
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	records := []Record{
		{ID: "same", WorkerID: "W1", Timestamp: time.Date(2026, 3, 10, 0, 30, 0, 0, loc)},
		// 2026-03-09 17:00 UTC is 2026-03-10 01:00 in PHT.
		{ID: "utc-previous-day", WorkerID: "W2", Timestamp: time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)},
		{ID: "next", WorkerID: "W1", Timestamp: time.Date(2026, 3, 11, 0, 0, 0, 0, loc)},
	}

	got := FilterDay(records, day, loc)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if PresentCount(got) != 2 {
		t.Errorf("expected 2 workers present, got %d", PresentCount(got))
	}
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)
	records := []Record{
		{WorkerName: "Juan Cruz", WorkerID: "W1", Method: MethodFaceScan, Verified: true, Timestamp: ts},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records, time.UTC); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "Date,Time,Worker Name,Worker ID,Method,Verified" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2026-03-10,08:15:00,Juan Cruz,W1,Face Scan,Yes" {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestWriteCSV_QuotesAndUnknownMethod(t *testing.T) {
	records := []Record{{WorkerName: "Cruz, Juan", WorkerID: "W1", Timestamp: time.Unix(0, 0)}}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records, nil); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"Cruz, Juan",W1,Unknown,No`) {
		t.Errorf("expected quoted name and Unknown method, got %q", buf.String())
	}
}
