package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultboard/internal/board"
	"consultboard/internal/config"
	"consultboard/internal/navigate"
	"consultboard/internal/record"
)

var wednesday = time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)

type stubRefresher struct {
	runs int
	last time.Time
}

func (s *stubRefresher) RunOnce(context.Context) {
	s.runs++
	s.last = wednesday
}

func (s *stubRefresher) LastRun() time.Time { return s.last }

func strPtr(s string) *string { return &s }

func appt(id, name, callback string) record.RawRecord {
	return record.RawRecord{
		ID: id,
		Fields: map[record.FieldName]*record.FieldValue{
			record.FieldRecordName:   {Value: strPtr(name)},
			record.FieldCallbackTime: {Value: strPtr(callback)},
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *board.Controller, *stubRefresher) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.BaseURL = "https://acme.my.salesforce.com"
	cfg.Capture.OutputPath = filepath.Join(t.TempDir(), "preview.png")
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()

	b := board.New(board.Options{
		Location:      time.UTC,
		Now:           func() time.Time { return wednesday },
		ObjectAPIName: cfg.Store.ObjectAPIName,
		Navigator: navigate.Redirector{
			BaseURL: cfg.RecordPageBaseURL,
			Open:    navigate.OpenFromContext,
		},
	})
	r := &stubRefresher{}
	return NewServer(cfg, b, r), b, r
}

func do(s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBoard(t *testing.T, rec *httptest.ResponseRecorder) boardResponse {
	t.Helper()
	var resp boardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBoard_EmptyBeforeLoad(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(s, http.MethodGet, "/api/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBoard(t, rec)
	assert.Equal(t, "this_week", resp.Active)
	assert.Nil(t, resp.View)
	assert.Empty(t, resp.WeekStart)
	assert.Nil(t, resp.LastRefresh)
}

func TestBoard_AfterLoad(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	b.LoadThisWeek([]record.RawRecord{appt("a0X1", "CR-0001", "2024-06-12T14:30:00Z")})

	resp := decodeBoard(t, do(s, http.MethodGet, "/api/board", nil))
	assert.Equal(t, "2024-06-10", resp.WeekStart)
	assert.Equal(t, "Jun 10 - Jun 14, 2024", resp.WeekLabel)
	require.NotNil(t, resp.View)
	require.Len(t, resp.View.Days[2].Appointments, 1)
	assert.Equal(t, "CR-0001", resp.View.Days[2].Appointments[0].Name)
	assert.Equal(t, 1, resp.Counts["this_week"])
}

func TestNavigation_JSON(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	b.LoadThisWeek([]record.RawRecord{appt("a", "CR-1", "2024-06-12T09:00:00Z")})
	b.LoadAll([]record.RawRecord{appt("b", "CR-2", "2024-06-18T09:00:00Z")})

	resp := decodeBoard(t, do(s, http.MethodPost, "/api/board/next", nil))
	assert.Equal(t, "all", resp.Active)
	assert.Equal(t, "2024-06-17", resp.WeekStart)
	require.NotNil(t, resp.View)
	assert.Len(t, resp.View.Days[1].Appointments, 1)

	resp = decodeBoard(t, do(s, http.MethodPost, "/api/board/prev", nil))
	assert.Equal(t, "2024-06-10", resp.WeekStart)

	resp = decodeBoard(t, do(s, http.MethodPost, "/api/board/current", nil))
	assert.Equal(t, "this_week", resp.Active)
}

func TestNavigation_FormRedirectsToBoard(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	rec := do(s, http.MethodPost, "/api/board/prev", map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.True(t, b.Snapshot().WeekStart.Equal(time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)))
}

func TestRefresh(t *testing.T) {
	s, _, r := newTestServer(t, nil)
	rec := do(s, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, r.runs)

	resp := decodeBoard(t, rec)
	require.NotNil(t, resp.LastRefresh)
	assert.True(t, resp.LastRefresh.Equal(wednesday))
}

func TestRefresh_Unavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewServer(cfg, board.New(board.Options{}), nil)
	rec := do(s, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenAppointment(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	b.LoadAll([]record.RawRecord{appt("a0X1", "CR-1", "")})

	rec := do(s, http.MethodGet, "/api/appointments/a0X1/open", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t,
		"https://acme.lightning.force.com/lightning/r/Consult_Request__c/a0X1/view",
		rec.Header().Get("Location"))

	rec = do(s, http.MethodGet, "/api/appointments/missing/open", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarICS(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	b.LoadThisWeek([]record.RawRecord{appt("a0X1", "CR-0001", "2024-06-12T14:30:00Z")})

	rec := do(s, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:a0X1@consultboard")
}

func TestPreview(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/preview.png", nil).Code)

	require.NoError(t, os.WriteFile(s.cfg.Capture.OutputPath, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	rec := do(s, http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestBoardPage(t *testing.T) {
	s, b, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No phone consults to display.")

	b.LoadThisWeek([]record.RawRecord{appt("a0X1", "CR-0001", "2024-06-12T14:30:00Z")})
	rec = do(s, http.MethodGet, "/", nil)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "CR-0001")
	assert.Contains(t, body, "/api/appointments/a0X1/open")
	assert.Contains(t, body, "Jun 10 - Jun 14, 2024")
}

func TestBoardPage_ShowsError(t *testing.T) {
	s, b, _ := newTestServer(t, nil)
	b.LoadFailed(board.ThisWeek, assert.AnError)
	body := do(s, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, assert.AnError.Error())
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "front", Password: "desk"}
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/board", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.SetBasicAuth("front", "desk")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.SetBasicAuth("front", "wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWeekLabel(t *testing.T) {
	assert.Equal(t, "Dec 30 - Jan 3, 2025", weekLabel(time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC)))
}
