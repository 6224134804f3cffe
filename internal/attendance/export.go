package attendance

import (
	"encoding/csv"
	"io"
	"time"
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{"Date", "Time", "Worker Name", "Worker ID", "Method", "Verified"}

// WriteCSV writes records as a report, rendering timestamps in loc.
func WriteCSV(w io.Writer, records []Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range records {
		ts := r.Timestamp.In(loc)
		method := string(r.Method)
		if method == "" {
			method = "Unknown"
		}
		verified := "No"
		if r.Verified {
			verified = "Yes"
		}
		row := []string{
			ts.Format("2006-01-02"),
			ts.Format("15:04:05"),
			r.WorkerName,
			r.WorkerID,
			method,
			verified,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
