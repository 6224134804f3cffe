package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/attendance"
	"facekiosk/internal/auth"
	"facekiosk/internal/errs"
	"facekiosk/internal/kiosk"
	"facekiosk/internal/verify"
	"facekiosk/internal/workflow"
)

const maxFrameBytes = 10 << 20

type sessionView struct {
	SessionID string `json:"session_id"`
	workflow.Snapshot
}

type kioskWorker struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Role              string `json:"role"`
	ReferencePhotoURL string `json:"reference_photo_url,omitempty"`
}

func deviceID(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return claims.Subject
	}
	return ""
}

// KioskWorkers lists the profiles a kiosk can select from.
func (h *Handler) KioskWorkers(c *gin.Context) {
	profiles, err := h.workers.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]kioskWorker, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, kioskWorker{ID: p.ID, Name: p.Name, Role: p.Role, ReferencePhotoURL: p.ReferencePhotoURL})
	}
	c.JSON(http.StatusOK, out)
}

// OpenSession starts a verification session for the selected worker.
func (h *Handler) OpenSession(c *gin.Context) {
	var req struct {
		WorkerID string `json:"worker_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, sess, err := h.kiosk.Open(c.Request.Context(), deviceID(c), req.WorkerID, c.Request.UserAgent())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionView{SessionID: id, Snapshot: sess.Snapshot()})
}

// GetSession returns the session state; kiosks poll it after Success.
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionView{SessionID: c.Param("id"), Snapshot: sess.Snapshot()})
}

// CurrentSession returns the device's active session so a reloaded kiosk can resume.
func (h *Handler) CurrentSession(c *gin.Context) {
	id, sess, ok := h.kiosk.Current(deviceID(c))
	if !ok {
		writeError(c, kiosk.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, sessionView{SessionID: id, Snapshot: sess.Snapshot()})
}

// AbandonSession discards the session without recording anything.
func (h *Handler) AbandonSession(c *gin.Context) {
	if err := h.kiosk.Abandon(deviceID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Capture verifies a camera frame. Accepts multipart (frame file plus latitude and
// longitude fields) or JSON with a data URL image.
func (h *Handler) Capture(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	frame, loc, err := readCapture(c)
	if err != nil {
		writeError(c, err)
		return
	}

	snap, err := sess.Capture(c.Request.Context(), frame, workflow.Fixed(loc))
	h.respond(c, snap, err)
}

// Retry returns an Error session to Idle.
func (h *Handler) Retry(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := sess.Retry()
	h.respond(c, snap, err)
}

// InitiateOverride asks for supervisor confirmation.
func (h *Handler) InitiateOverride(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := sess.InitiateOverride()
	h.respond(c, snap, err)
}

// CancelOverride returns to Idle without recording.
func (h *Handler) CancelOverride(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := sess.CancelOverride()
	h.respond(c, snap, err)
}

// ConfirmOverride records attendance without face verification.
func (h *Handler) ConfirmOverride(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := sess.ConfirmOverride(c.Request.Context())
	h.respond(c, snap, err)
}

func (h *Handler) session(c *gin.Context) (*workflow.Session, bool) {
	sess, err := h.kiosk.Get(deviceID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

// respond writes the snapshot. Verification outcomes live in the snapshot and return 200;
// rejected operations are errors.
func (h *Handler) respond(c *gin.Context, snap workflow.Snapshot, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView{SessionID: c.Param("id"), Snapshot: snap})
}

func readCapture(c *gin.Context) ([]byte, *attendance.Location, error) {
	if c.ContentType() == gin.MIMEJSON {
		var req struct {
			Image     string   `json:"image"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, &errs.ValidationError{Message: err.Error()}
		}
		if req.Image == "" {
			return nil, nil, errs.Required("image")
		}
		frame, _, err := verify.DecodeDataURL(req.Image)
		if err != nil {
			return nil, nil, &errs.ValidationError{Field: "image", Message: err.Error()}
		}
		if len(frame) > maxFrameBytes {
			return nil, nil, &errs.ValidationError{Field: "image", Message: fmt.Sprintf("larger than %d MiB", maxFrameBytes>>20)}
		}
		var loc *attendance.Location
		if req.Latitude != nil && req.Longitude != nil {
			loc = &attendance.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
		}
		return frame, loc, nil
	}

	file, _, err := c.Request.FormFile("frame")
	if err != nil {
		return nil, nil, errs.Required("frame")
	}
	defer file.Close()

	frame, err := readUpload(file, maxFrameBytes, "frame")
	if err != nil {
		return nil, nil, err
	}
	return frame, formLocation(c), nil
}

// readUpload reads at most limit bytes of an uploaded file. A larger file is rejected
// rather than truncated.
func readUpload(r io.Reader, limit int64, field string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &errs.ValidationError{Field: field, Message: "unreadable upload"}
	}
	if int64(len(data)) > limit {
		return nil, &errs.ValidationError{Field: field, Message: fmt.Sprintf("larger than %d MiB", limit>>20)}
	}
	return data, nil
}

// formLocation returns nil unless both coordinates parse.
func formLocation(c *gin.Context) *attendance.Location {
	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		return nil
	}
	return &attendance.Location{Latitude: lat, Longitude: lng}
}
