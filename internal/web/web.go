package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"consultboard/internal/board"
	"consultboard/internal/config"
	"consultboard/internal/ics"
	appLog "consultboard/internal/log"
	"consultboard/internal/model"
	"consultboard/internal/navigate"
)

//go:embed templates/board.html
var templateFS embed.FS

var boardTemplate = template.Must(template.ParseFS(templateFS, "templates/board.html"))

// Refresher triggers an immediate refetch of both record sets.
type Refresher interface {
	RunOnce(ctx context.Context)
	LastRun() time.Time
}

// Server exposes the board over HTTP: a JSON API, the rendered week, an
// iCalendar feed and the last PNG snapshot.
type Server struct {
	cfg       *config.Config
	board     *board.Controller
	refresher Refresher
	e         *echo.Echo
}

// NewServer constructs a new Server. refresher may be nil, in which case
// POST /api/refresh answers 503.
func NewServer(cfg *config.Config, b *board.Controller, refresher Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		board:     b,
		refresher: refresher,
		e:         echo.New(),
	}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.Use(echomw.Recover())
	s.e.Use(echomw.RequestID())
	s.e.Use(requestLogger())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+cfg.Listen)
		s.e.Use(s.basicAuthMiddleware())
	}

	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves on cfg.Listen until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- s.e.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware() echo.MiddlewareFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Skipper: func(c echo.Context) bool { return c.Request().URL.Path == "/health" },
		Realm:   "ConsultBoard",
		Validator: func(u, p string, _ echo.Context) (bool, error) {
			return secureCompare(u, username) && secureCompare(p, password), nil
		},
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requestLogger logs one line per request through the app logger.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger := appLog.Logger()
			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			req := c.Request()
			evt.
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.e.GET("/health", s.handleHealth)
	s.e.GET("/", s.handleBoardPage)

	api := s.e.Group("/api")
	api.GET("/board", s.handleBoard)
	api.POST("/board/prev", s.navigation(s.board.PrevWeek))
	api.POST("/board/next", s.navigation(s.board.NextWeek))
	api.POST("/board/current", s.navigation(s.board.CurrentWeek))
	api.POST("/refresh", s.handleRefresh)
	api.GET("/appointments/:id/open", s.handleOpen)

	s.e.GET("/calendar.ics", s.handleICS)
	s.e.GET("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// boardResponse is the JSON response shape for /api/board.
type boardResponse struct {
	Active      string              `json:"active"`
	WeekStart   string              `json:"week_start,omitempty"`
	WeekLabel   string              `json:"week_label,omitempty"`
	View        *model.CalendarView `json:"view"`
	Error       string              `json:"error,omitempty"`
	Counts      map[string]int      `json:"counts"`
	LastRefresh *time.Time          `json:"last_refresh,omitempty"`
}

func (s *Server) boardResponse() boardResponse {
	st := s.board.Snapshot()
	resp := boardResponse{
		Active: st.Active.String(),
		View:   st.View,
		Error:  st.Error,
		Counts: map[string]int{
			board.ThisWeek.String(): st.Counts[board.ThisWeek],
			board.All.String():      st.Counts[board.All],
		},
	}
	if !st.WeekStart.IsZero() {
		resp.WeekStart = st.WeekStart.Format(time.DateOnly)
		resp.WeekLabel = weekLabel(st.WeekStart)
	}
	if s.refresher != nil {
		if t := s.refresher.LastRun(); !t.IsZero() {
			resp.LastRefresh = &t
		}
	}
	return resp
}

func (s *Server) handleBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.boardResponse())
}

// navigation wraps a board transition. HTML form posts are sent back to the
// board page; API clients get the new board as JSON.
func (s *Server) navigation(move func()) echo.HandlerFunc {
	return func(c echo.Context) error {
		move()
		if isFormPost(c.Request()) {
			return c.Redirect(http.StatusSeeOther, "/")
		}
		return c.JSON(http.StatusOK, s.boardResponse())
	}
}

func isFormPost(r *http.Request) bool {
	ct := r.Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

func (s *Server) handleRefresh(c echo.Context) error {
	if s.refresher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "refresh unavailable")
	}
	s.refresher.RunOnce(c.Request().Context())
	return c.JSON(http.StatusOK, s.boardResponse())
}

func (s *Server) handleOpen(c echo.Context) error {
	id := c.Param("id")
	ctx := navigate.WithOpener(c.Request().Context(), func(pageURL string) error {
		return c.Redirect(http.StatusFound, pageURL)
	})

	err := s.board.Open(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, board.ErrUnknownAppointment):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	default:
		appLog.Error("open appointment failed", err, "id", id)
		return echo.NewHTTPError(http.StatusBadGateway, "cannot open record")
	}
}

func (s *Server) handleICS(c echo.Context) error {
	feed := ics.Export(s.board.View(), ics.ExportOptions{
		RecordURL: s.recordURL,
	})
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}

func (s *Server) recordURL(id string) string {
	u, err := navigate.PageURL(s.cfg.RecordPageBaseURL, navigate.Target{
		RecordID:      id,
		ObjectAPIName: s.cfg.Store.ObjectAPIName,
		Action:        navigate.ActionView,
	})
	if err != nil {
		return ""
	}
	return u
}

// handlePreview serves the last captured board snapshot from disk.
func (s *Server) handlePreview(c echo.Context) error {
	return c.File(s.cfg.Capture.OutputPath)
}

type boardPage struct {
	WeekLabel string
	Error     string
	View      *model.CalendarView
}

func (s *Server) handleBoardPage(c echo.Context) error {
	st := s.board.Snapshot()
	page := boardPage{Error: st.Error, View: st.View}
	if !st.WeekStart.IsZero() {
		page.WeekLabel = weekLabel(st.WeekStart)
	}

	var b strings.Builder
	if err := boardTemplate.Execute(&b, page); err != nil {
		appLog.Error("board template failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}
	return c.HTML(http.StatusOK, b.String())
}

// weekLabel renders "Jun 10 - Jun 14, 2024" for a Monday week start.
func weekLabel(weekStart time.Time) string {
	friday := weekStart.AddDate(0, 0, 4)
	return weekStart.Format("Jan 2") + " - " + friday.Format("Jan 2, 2006")
}
