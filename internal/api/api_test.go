package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/attendance"
	"facekiosk/internal/auth"
	"facekiosk/internal/kiosk"
	"facekiosk/internal/objectstore"
	"facekiosk/internal/store/memory"
	"facekiosk/internal/verify"
	"facekiosk/internal/worker"
	"facekiosk/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	mu    sync.Mutex
	match bool
	err   error
}

func (f *fakeVerifier) set(match bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.match, f.err = match, err
}

func (f *fakeVerifier) Verify(ctx context.Context, referenceURL string, captured []byte) (verify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return verify.Result{}, f.err
	}
	return verify.Result{Match: f.match}, nil
}

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	verifier *fakeVerifier
	device   string
	admin    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	objects, err := objectstore.NewFilesystem(t.TempDir(), "http://kiosk.test")
	if err != nil {
		t.Fatalf("objectstore: %v", err)
	}
	workers := worker.NewService(st, objects)
	ledger := attendance.NewService(st, nil)
	verifier := &fakeVerifier{match: true}
	policy := workflow.Policy{GeoTimeout: 50 * time.Millisecond, DismissDelay: time.Minute}
	manager := kiosk.NewManager(workers, verifier, ledger, policy)
	t.Cleanup(manager.CloseAll)

	tokens := auth.NewTokens(st, auth.Settings{
		Issuer:     "facekiosk-test",
		SigningKey: "test-key",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		AdminPIN:   "4321",
	})

	ts := &testServer{
		store:    st,
		verifier: verifier,
		router: NewRouter(Deps{
			Workers:    workers,
			Ledger:     ledger,
			Kiosk:      manager,
			Tokens:     tokens,
			SigningKey: "test-key",
			Issuer:     "facekiosk-test",
			Health: map[string]HealthCheck{
				"store": st.Healthy,
			},
		}),
	}
	ts.device = ts.login(t, "/v1/devices/register", `{"device_id":"kiosk-1"}`)
	ts.admin = ts.login(t, "/v1/admin/login", `{"pin":"4321"}`)
	return ts
}

func (ts *testServer) login(t *testing.T, path, body string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, path, "", "application/json", strings.NewReader(body))
	if w.Code != http.StatusOK && w.Code != http.StatusCreated {
		t.Fatalf("%s: status %d: %s", path, w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)
	return resp.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token, contentType string, body *strings.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) json(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	if body == "" {
		return ts.do(t, method, path, token, "", nil)
	}
	return ts.do(t, method, path, token, "application/json", strings.NewReader(body))
}

func (ts *testServer) multipart(t *testing.T, path, token string, fields map[string]string, fileField string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "capture.jpg")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()
	return ts.do(t, http.MethodPost, path, token, mw.FormDataContentType(), strings.NewReader(buf.String()))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type sessionResp struct {
	SessionID string             `json:"session_id"`
	State     string             `json:"state"`
	Failures  int                `json:"failures"`
	Message   string             `json:"message"`
	Record    *attendance.Record `json:"record"`
}

func (ts *testServer) addWorker(t *testing.T, name string) worker.Profile {
	t.Helper()
	w := ts.multipart(t, "/v1/admin/workers", ts.admin,
		map[string]string{"name": name, "role": "Mason"}, "photo", []byte("reference"))
	if w.Code != http.StatusCreated {
		t.Fatalf("add worker: status %d: %s", w.Code, w.Body.String())
	}
	var p worker.Profile
	decode(t, w, &p)
	return p
}

func (ts *testServer) openSession(t *testing.T, workerID string) sessionResp {
	t.Helper()
	w := ts.json(t, http.MethodPost, "/v1/kiosk/sessions", ts.device, `{"worker_id":"`+workerID+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("open session: status %d: %s", w.Code, w.Body.String())
	}
	var s sessionResp
	decode(t, w, &s)
	return s
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.json(t, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestHealthz_Degraded(t *testing.T) {
	r := NewRouter(Deps{Health: map[string]HealthCheck{
		"redis": func(context.Context) bool { return false },
	}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestAuthBoundaries(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"kiosk without token", "/v1/kiosk/workers", "", http.StatusUnauthorized},
		{"admin without token", "/v1/admin/workers", "", http.StatusUnauthorized},
		{"admin route with device token", "/v1/admin/workers", ts.device, http.StatusForbidden},
		{"kiosk route with admin token", "/v1/kiosk/workers", ts.admin, http.StatusForbidden},
		{"kiosk route with device token", "/v1/kiosk/workers", ts.device, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := ts.json(t, http.MethodGet, tt.path, tt.token, ""); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAdminLogin_WrongPIN(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.json(t, http.MethodPost, "/v1/admin/login", "", `{"pin":"0000"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)
	w := ts.json(t, http.MethodPost, "/v1/devices/register", "", `{"device_id":"kiosk-2"}`)
	var pair struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, w, &pair)

	body := `{"refresh_token":"` + pair.RefreshToken + `"}`
	if w := ts.json(t, http.MethodPost, "/v1/auth/refresh", "", body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := ts.json(t, http.MethodPost, "/v1/auth/refresh", "", body); w.Code != http.StatusUnauthorized {
		t.Errorf("expected reused refresh token to be rejected, got %d", w.Code)
	}
}

func TestAddWorker_Validation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		fields map[string]string
		photo  bool
	}{
		{"missing name", map[string]string{"role": "Mason"}, true},
		{"missing role", map[string]string{"name": "Juan Cruz"}, true},
		{"missing photo", map[string]string{"name": "Juan Cruz", "role": "Mason"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := ""
			if tt.photo {
				field = "photo"
			}
			w := ts.multipart(t, "/v1/admin/workers", ts.admin, tt.fields, field, []byte("img"))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
	workers, _ := ts.store.ListWorkers(context.Background())
	if len(workers) != 0 {
		t.Errorf("expected no workers stored, got %d", len(workers))
	}
}

func TestAddWorker_OversizedPhoto(t *testing.T) {
	ts := newTestServer(t)
	photo := bytes.Repeat([]byte{0xff}, maxPhotoBytes+1)
	w := ts.multipart(t, "/v1/admin/workers", ts.admin,
		map[string]string{"name": "Juan Cruz", "role": "Mason"}, "photo", photo)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	workers, _ := ts.store.ListWorkers(context.Background())
	if len(workers) != 0 {
		t.Errorf("oversized photo must not enroll a worker, got %d", len(workers))
	}
}

func TestCapture_OversizedFrame(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Juan Cruz")
	s := ts.openSession(t, p.ID)
	path := "/v1/kiosk/sessions/" + s.SessionID

	frame := bytes.Repeat([]byte{0xff}, maxFrameBytes+1)
	if w := ts.multipart(t, path+"/capture", ts.device, nil, "frame", frame); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var got sessionResp
	decode(t, ts.json(t, http.MethodGet, path, ts.device, ""), &got)
	if got.State != string(workflow.Idle) {
		t.Errorf("rejected frame must leave the session idle, got %+v", got)
	}
	records, _ := ts.store.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestWorkerLifecycle(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Juan Cruz")
	if !strings.HasPrefix(p.ReferencePhotoURL, "http://kiosk.test/media/workers/") {
		t.Errorf("unexpected photo url %q", p.ReferencePhotoURL)
	}

	w := ts.json(t, http.MethodGet, "/v1/kiosk/workers", ts.device, "")
	var listed []worker.Profile
	decode(t, w, &listed)
	if len(listed) != 1 || listed[0].ID != p.ID {
		t.Fatalf("unexpected kiosk list %+v", listed)
	}

	if w := ts.json(t, http.MethodDelete, "/v1/admin/workers/"+p.ID, ts.admin, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := ts.json(t, http.MethodDelete, "/v1/admin/workers/"+p.ID, ts.admin, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestKioskFlow_FaceScan(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Juan Cruz")
	sess := ts.openSession(t, p.ID)
	if sess.State != string(workflow.Idle) {
		t.Fatalf("expected idle, got %s", sess.State)
	}

	w := ts.multipart(t, "/v1/kiosk/sessions/"+sess.SessionID+"/capture", ts.device,
		map[string]string{"latitude": "14.5995", "longitude": "120.9842"}, "frame", []byte("frame"))
	if w.Code != http.StatusOK {
		t.Fatalf("capture: status %d: %s", w.Code, w.Body.String())
	}
	var got sessionResp
	decode(t, w, &got)
	if got.State != string(workflow.Success) || got.Record == nil {
		t.Fatalf("expected success with record, got %+v", got)
	}
	if got.Record.Method != attendance.MethodFaceScan || got.Record.Location == nil || got.Record.Location.Latitude != 14.5995 {
		t.Errorf("unexpected record %+v", got.Record)
	}

	w = ts.json(t, http.MethodGet, "/v1/admin/attendance?worker_id="+p.ID+"&range=7", ts.admin, "")
	var history []attendance.Record
	decode(t, w, &history)
	if len(history) != 1 || history[0].WorkerName != "Juan Cruz" {
		t.Errorf("unexpected history %+v", history)
	}

	w = ts.json(t, http.MethodGet, "/v1/admin/attendance/daily", ts.admin, "")
	var daily struct {
		Present int                 `json:"present"`
		Records []attendance.Record `json:"records"`
	}
	decode(t, w, &daily)
	if daily.Present != 1 || len(daily.Records) != 1 {
		t.Errorf("unexpected daily view %+v", daily)
	}
}

func TestKioskFlow_JSONCapture(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Juan Cruz")
	sess := ts.openSession(t, p.ID)

	w := ts.json(t, http.MethodPost, "/v1/kiosk/sessions/"+sess.SessionID+"/capture", ts.device,
		`{"image":"data:image/jpeg;base64,aGVsbG8="}`)
	var got sessionResp
	decode(t, w, &got)
	if got.State != string(workflow.Success) || got.Record.Location != nil {
		t.Errorf("expected success without location, got %+v", got)
	}
}

func TestKioskFlow_MismatchThenRetry(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.set(false, nil)
	p := ts.addWorker(t, "Juan Cruz")
	sess := ts.openSession(t, p.ID)
	path := "/v1/kiosk/sessions/" + sess.SessionID

	w := ts.multipart(t, path+"/capture", ts.device, nil, "frame", []byte("frame"))
	var got sessionResp
	decode(t, w, &got)
	if w.Code != http.StatusOK || got.State != string(workflow.Error) {
		t.Fatalf("expected 200 with error state, got %d %+v", w.Code, got)
	}
	if !strings.Contains(got.Message, "identity mismatch") || got.Failures != 1 {
		t.Errorf("unexpected snapshot %+v", got)
	}

	// Capture is not allowed from Error.
	if w := ts.multipart(t, path+"/capture", ts.device, nil, "frame", []byte("frame")); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}

	w = ts.json(t, http.MethodPost, path+"/retry", ts.device, "")
	var after sessionResp
	decode(t, w, &after)
	if after.State != string(workflow.Idle) || after.Message != "" {
		t.Errorf("expected idle after retry, got %+v", after)
	}

	records, _ := ts.store.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("mismatch must not record attendance, got %d", len(records))
	}
}

func TestKioskFlow_Override(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Ana Reyes")
	sess := ts.openSession(t, p.ID)
	path := "/v1/kiosk/sessions/" + sess.SessionID

	var got sessionResp
	decode(t, ts.json(t, http.MethodPost, path+"/override", ts.device, ""), &got)
	if got.State != string(workflow.ConfirmOverride) {
		t.Fatalf("expected confirm_override, got %s", got.State)
	}
	decode(t, ts.json(t, http.MethodPost, path+"/override/cancel", ts.device, ""), &got)
	if got.State != string(workflow.Idle) {
		t.Fatalf("expected idle after cancel, got %s", got.State)
	}

	ts.json(t, http.MethodPost, path+"/override", ts.device, "")
	w := ts.json(t, http.MethodPost, path+"/override/confirm", ts.device, "")
	decode(t, w, &got)
	if got.State != string(workflow.Success) || got.Record.Method != attendance.MethodManualOverride {
		t.Fatalf("expected manual override record, got %+v", got)
	}
	if got.Record.Location != nil {
		t.Errorf("override must not carry a location")
	}
}

func TestKioskSessions(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addWorker(t, "Juan Cruz")
	sess := ts.openSession(t, p.ID)
	path := "/v1/kiosk/sessions/" + sess.SessionID

	var current sessionResp
	decode(t, ts.json(t, http.MethodGet, "/v1/kiosk/session", ts.device, ""), &current)
	if current.SessionID != sess.SessionID {
		t.Errorf("expected current session %s, got %s", sess.SessionID, current.SessionID)
	}

	other := ts.login(t, "/v1/devices/register", `{"device_id":"kiosk-2"}`)
	if w := ts.json(t, http.MethodGet, path, other, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another device, got %d", w.Code)
	}
	if w := ts.json(t, http.MethodPost, path+"/retry", ts.device, ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for retry from idle, got %d", w.Code)
	}
	if w := ts.multipart(t, path+"/capture", ts.device, nil, "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a frame, got %d", w.Code)
	}

	if w := ts.json(t, http.MethodDelete, path, ts.device, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := ts.json(t, http.MethodGet, path, ts.device, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after abandon, got %d", w.Code)
	}
	if w := ts.json(t, http.MethodPost, "/v1/kiosk/sessions", ts.device, `{"worker_id":"missing"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown worker, got %d", w.Code)
	}
}

func TestAttendanceQueries(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	rec, err := ts.store.InsertRecord(ctx, attendance.Record{
		WorkerID: "W1", WorkerName: "Juan Cruz", Method: attendance.MethodFaceScan, Verified: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"history all", "/v1/admin/attendance?range=ALL", http.StatusOK},
		{"history bad range", "/v1/admin/attendance?range=-3", http.StatusBadRequest},
		{"daily bad date", "/v1/admin/attendance/daily?date=03/10/2026", http.StatusBadRequest},
		{"daily explicit date", "/v1/admin/attendance/daily?date=2020-01-01", http.StatusOK},
		{"export bad view", "/v1/admin/attendance/export?view=weekly", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := ts.json(t, http.MethodGet, tt.path, ts.admin, ""); w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := ts.json(t, http.MethodGet, "/v1/admin/attendance/export?view=history", ts.admin, "")
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attendance_report_history.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if !strings.Contains(w.Body.String(), "Juan Cruz") {
		t.Errorf("expected record in csv:\n%s", w.Body.String())
	}

	if w := ts.json(t, http.MethodDelete, "/v1/admin/attendance/"+rec.ID, ts.admin, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := ts.json(t, http.MethodDelete, "/v1/admin/attendance/"+rec.ID, ts.admin, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{verify.ErrReferenceUnavailable, http.StatusUnprocessableEntity},
		{&verify.FetchError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{&verify.ComparisonError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{workflow.ErrLockedOut, http.StatusConflict},
		{auth.ErrAdminDisabled, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
