package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"facekiosk/internal/attendance"
	"facekiosk/internal/worker"
)

type workerRow struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	Role              string    `json:"role" yaml:"role"`
	ReferencePhotoURL string    `json:"reference_photo_url" yaml:"reference_photo_url"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
}

type recordRow struct {
	ID         string  `json:"id" yaml:"id"`
	Date       string  `json:"date" yaml:"date"`
	Time       string  `json:"time" yaml:"time"`
	WorkerID   string  `json:"worker_id" yaml:"worker_id"`
	WorkerName string  `json:"worker_name" yaml:"worker_name"`
	Method     string  `json:"method" yaml:"method"`
	Latitude   float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
}

func workerRows(profiles []worker.Profile) []workerRow {
	rows := make([]workerRow, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, workerRow{
			ID:                p.ID,
			Name:              p.Name,
			Role:              p.Role,
			ReferencePhotoURL: p.ReferencePhotoURL,
			CreatedAt:         p.CreatedAt,
		})
	}
	return rows
}

func recordRows(records []attendance.Record, loc *time.Location) []recordRow {
	rows := make([]recordRow, 0, len(records))
	for _, r := range records {
		ts := r.Timestamp.In(loc)
		row := recordRow{
			ID:         r.ID,
			Date:       ts.Format("2006-01-02"),
			Time:       ts.Format("15:04:05"),
			WorkerID:   r.WorkerID,
			WorkerName: r.WorkerName,
			Method:     string(r.Method),
		}
		if r.Location != nil {
			row.Latitude, row.Longitude = r.Location.Latitude, r.Location.Longitude
		}
		rows = append(rows, row)
	}
	return rows
}

// render writes v as yaml or json, or calls table for the default format.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderWorkers(w io.Writer, format string, profiles []worker.Profile) error {
	rows := workerRows(profiles)
	return render(w, format, rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tROLE\tCREATED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Role, r.CreatedAt.Format(time.DateOnly))
		}
	})
}

func renderRecords(w io.Writer, format string, records []attendance.Record, loc *time.Location) error {
	rows := recordRows(records, loc)
	return render(w, format, rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "DATE\tTIME\tWORKER\tNAME\tMETHOD\tID")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Date, r.Time, r.WorkerID, r.WorkerName, r.Method, r.ID)
		}
		fmt.Fprintf(tw, "\n%d record(s), %d worker(s)\n", len(records), attendance.PresentCount(records))
	})
}
