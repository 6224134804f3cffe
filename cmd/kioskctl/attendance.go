package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"facekiosk/internal/attendance"
	"facekiosk/internal/auth"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect, export and correct attendance records",
	Long: `List attendance records, newest first. With --date the daily view for that
calendar day is shown, otherwise the history filtered by --worker and --range.

Example:
  kioskctl attendance --range 7
  kioskctl attendance --date 2026-03-10 -o yaml`,
	RunE: runAttendanceList,
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the selected records as CSV",
	Long: `Write the same selection as "attendance" in the admin CSV layout.

Example:
  kioskctl attendance export --date 2026-03-10 --out attendance_report_daily.csv`,
	RunE: runAttendanceExport,
}

var attendanceRemoveCmd = &cobra.Command{
	Use:   "remove [id...]",
	Short: "Delete attendance records by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAttendanceRemove,
}

var hashPINCmd = &cobra.Command{
	Use:   "hash-pin [pin]",
	Short: "Print a bcrypt hash for ADMIN_PIN_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPIN(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attendanceCmd, hashPINCmd)
	attendanceCmd.AddCommand(attendanceExportCmd, attendanceRemoveCmd)

	for _, c := range []*cobra.Command{attendanceCmd, attendanceExportCmd} {
		c.Flags().String("worker", "", "Only records of this worker id")
		c.Flags().String("range", attendance.RangeAll, "Days to look back, or ALL")
		c.Flags().String("date", "", "Daily view for YYYY-MM-DD in the report timezone")
	}
	attendanceExportCmd.Flags().String("out", "", "Output file (default stdout)")
}

// selection is the filter shared by list and export.
type selection struct {
	workerID  string
	dateRange string
	date      string
}

func selectionFrom(cmd *cobra.Command) selection {
	return selection{
		workerID:  mustGetString(cmd, "worker"),
		dateRange: mustGetString(cmd, "range"),
		date:      mustGetString(cmd, "date"),
	}
}

// apply narrows records (newest first) to the daily view or the history view.
func (s selection) apply(records []attendance.Record, now time.Time, loc *time.Location) ([]attendance.Record, error) {
	if s.date != "" {
		day, err := time.ParseInLocation(time.DateOnly, s.date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", s.date)
		}
		records = attendance.FilterDay(records, day, loc)
		if s.workerID != "" {
			records = attendance.FilterHistory(records, attendance.HistoryFilter{WorkerID: s.workerID}, now)
		}
		return records, nil
	}
	f := attendance.HistoryFilter{WorkerID: s.workerID, DateRange: s.dateRange}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return attendance.FilterHistory(records, f, now), nil
}

func loadSelection(cmd *cobra.Command) ([]attendance.Record, *time.Location, error) {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer a.Close()

	records, err := a.Ledger.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	loc := a.Config.Report.Location()
	selected, err := selectionFrom(cmd).apply(records, time.Now(), loc)
	return selected, loc, err
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	records, loc, err := loadSelection(cmd)
	if err != nil {
		return err
	}
	return renderRecords(cmd.OutOrStdout(), outputFormat, records, loc)
}

func runAttendanceExport(cmd *cobra.Command, args []string) error {
	records, loc, err := loadSelection(cmd)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if out := mustGetString(cmd, "out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	if err := attendance.WriteCSV(w, records, loc); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func runAttendanceRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		if err := a.Ledger.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed record %s\n", id)
	}
	return nil
}
