package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/attendance"
	"facekiosk/internal/errs"
	"facekiosk/internal/worker"
)

const maxPhotoBytes = 10 << 20

// ListWorkers returns every enrolled profile.
func (h *Handler) ListWorkers(c *gin.Context) {
	profiles, err := h.workers.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

// AddWorker enrolls a worker. Expects multipart form with fields: name, role, photo (file).
func (h *Handler) AddWorker(c *gin.Context) {
	var photo *worker.Photo
	if file, header, err := c.Request.FormFile("photo"); err == nil {
		defer file.Close()
		data, err := readUpload(file, maxPhotoBytes, "photo")
		if err != nil {
			writeError(c, err)
			return
		}
		photo = &worker.Photo{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	}

	p, err := h.workers.Add(c.Request.Context(), c.PostForm("name"), c.PostForm("role"), photo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// RemoveWorker deletes a profile; past attendance records are kept.
func (h *Handler) RemoveWorker(c *gin.Context) {
	if err := h.workers.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History returns records newest first, filtered by worker_id and range (days or ALL).
func (h *Handler) History(c *gin.Context) {
	records, err := h.history(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// Daily returns the records of one calendar day (date=YYYY-MM-DD, default today).
func (h *Handler) Daily(c *gin.Context) {
	day, records, err := h.daily(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":    day.Format(time.DateOnly),
		"present": attendance.PresentCount(records),
		"records": records,
	})
}

// Export streams the daily or history view as CSV.
func (h *Handler) Export(c *gin.Context) {
	view := c.DefaultQuery("view", "daily")
	var (
		records []attendance.Record
		err     error
	)
	switch view {
	case "daily":
		_, records, err = h.daily(c)
	case "history":
		records, err = h.history(c)
	default:
		err = &errs.ValidationError{Field: "view", Message: "must be daily or history"}
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_report_%s.csv"`, view))
	c.Status(http.StatusOK)
	if err := attendance.WriteCSV(c.Writer, records, h.loc); err != nil {
		c.Error(err)
	}
}

// RemoveRecord deletes one attendance record.
func (h *Handler) RemoveRecord(c *gin.Context) {
	if err := h.ledger.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) history(c *gin.Context) ([]attendance.Record, error) {
	f := attendance.HistoryFilter{
		WorkerID:  c.Query("worker_id"),
		DateRange: c.Query("range"),
	}
	if err := f.Validate(); err != nil {
		return nil, &errs.ValidationError{Field: "range", Message: err.Error()}
	}
	records, err := h.ledger.List(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return attendance.FilterHistory(records, f, h.now()), nil
}

func (h *Handler) daily(c *gin.Context) (time.Time, []attendance.Record, error) {
	day := h.now().In(h.loc)
	if v := c.Query("date"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, h.loc)
		if err != nil {
			return time.Time{}, nil, &errs.ValidationError{Field: "date", Message: "expected YYYY-MM-DD"}
		}
		day = parsed
	}
	records, err := h.ledger.List(c.Request.Context())
	if err != nil {
		return time.Time{}, nil, err
	}
	return day, attendance.FilterDay(records, day, h.loc), nil
}
