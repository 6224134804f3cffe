package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"facekiosk/internal/attendance"
	"facekiosk/internal/worker"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testRecords() []attendance.Record {
	return []attendance.Record{
		{ID: "r3", WorkerID: "W1", WorkerName: "Juan Cruz", Method: attendance.MethodFaceScan, Timestamp: now.Add(-time.Hour),
			Location: &attendance.Location{Latitude: 14.5, Longitude: 121}},
		{ID: "r2", WorkerID: "W2", WorkerName: "Ana Reyes", Method: attendance.MethodManualOverride, Timestamp: now.Add(-26 * time.Hour)},
		{ID: "r1", WorkerID: "W1", WorkerName: "Juan Cruz", Method: attendance.MethodFaceScan, Timestamp: now.Add(-10 * 24 * time.Hour)},
	}
}

func ids(records []attendance.Record) string {
	var out []string
	for _, r := range records {
		out = append(out, r.ID)
	}
	return strings.Join(out, ",")
}

func TestSelectionApply(t *testing.T) {
	tests := []struct {
		name    string
		sel     selection
		want    string
		wantErr bool
	}{
		{"all", selection{dateRange: attendance.RangeAll}, "r3,r2,r1", false},
		{"last 7 days", selection{dateRange: "7"}, "r3,r2", false},
		{"worker", selection{workerID: "W1", dateRange: attendance.RangeAll}, "r3,r1", false},
		{"daily", selection{date: "2026-03-09"}, "r2", false},
		{"daily for worker", selection{date: "2026-03-10", workerID: "W2"}, "", false},
		{"bad range", selection{dateRange: "week"}, "", true},
		{"bad date", selection{date: "10/03/2026"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.apply(testRecords(), now, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err == nil && ids(got) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, ids(got))
			}
		})
	}
}

func TestRenderRecords_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRecords(&buf, "table", testRecords(), time.UTC); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"DATE", "Juan Cruz", "MANUAL_OVERRIDE", "3 record(s), 2 worker(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRenderRecords_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRecords(&buf, "yaml", testRecords()[:1], time.UTC); err != nil {
		t.Fatal(err)
	}
	var rows []recordRow
	if err := yaml.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("invalid yaml: %v\n%s", err, buf.String())
	}
	if len(rows) != 1 || rows[0].Time != "11:00:00" || rows[0].Latitude != 14.5 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestRenderWorkers(t *testing.T) {
	profiles := []worker.Profile{{ID: "W1", Name: "Juan Cruz", Role: "Mason", CreatedAt: now}}

	var buf bytes.Buffer
	if err := renderWorkers(&buf, "json", profiles); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"role": "Mason"`) {
		t.Errorf("unexpected json:\n%s", buf.String())
	}

	if err := renderWorkers(&buf, "xml", profiles); err == nil {
		t.Error("expected error for unknown format")
	}
}
