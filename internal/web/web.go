package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"wristdisp/internal/config"
	"wristdisp/internal/display"
	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
	"wristdisp/internal/schedule"
)

// Display is the part of the display adapter the API drives.
type Display interface {
	State() display.State
	SetFullRefresh(d model.Direction) bool
	SetNewTouchPoint(x, y uint16, contact bool)
	SetPower(on bool) error
}

// Schedule reports the cron-driven transitions; *schedule.Scheduler
// implements it.
type Schedule interface {
	State() schedule.State
}

// Previewer renders the current picture; the memory panel and the screen
// canvas both implement it.
type Previewer interface {
	Snapshot() *image.RGBA
}

// Server provides the debug HTTP API: state, injected touches, refresh
// requests and a PNG preview.
type Server struct {
	cfg     *config.Config
	disp    Display
	preview Previewer
	sched   Schedule
	mux     *http.ServeMux
}

// embeddedStatic holds the small debug page served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. preview may be nil.
func NewServer(cfg *config.Config, disp Display, preview Previewer) *Server {
	s := &Server{
		cfg:     cfg,
		disp:    disp,
		preview: preview,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// SetSchedule adds the schedule counters to /api/state.
func (s *Server) SetSchedule(sc Schedule) {
	s.sched = sc
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave auth disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="wristdisp", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	static := s.staticFileServer()
	s.mux.Handle("/health", methodRoute(http.MethodGet, s.handleHealth, static))
	s.mux.Handle("/api/state", methodRoute(http.MethodGet, s.handleState, static))
	s.mux.Handle("/api/touch", methodRoute(http.MethodPost, s.handleTouch, static))
	s.mux.Handle("/api/refresh", methodRoute(http.MethodPost, s.handleRefresh, static))
	s.mux.Handle("/api/power", methodRoute(http.MethodPost, s.handlePower, static))
	s.mux.Handle("/preview.png", methodRoute(http.MethodGet, s.handlePreview, static))

	// Everything else falls back to the embedded debug page.
	s.mux.Handle("/", static)
}

// methodRoute matches like a Go 1.22 "METHOD /path" mux pattern: GET also
// accepts HEAD, and any other method falls through to the "/" catch-all.
func methodRoute(method string, h http.HandlerFunc, fallback http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
			h(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the display state with the schedule alongside it.
type stateResponse struct {
	display.State
	Schedule *schedule.State `json:"schedule,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{State: s.disp.State()}
	if s.sched != nil {
		st := s.sched.State()
		resp.Schedule = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// touchRequest is the JSON body of POST /api/touch.
type touchRequest struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Contact bool `json:"contact"`
}

// handleTouch injects a touch sample as if the controller had reported it.
//
// POST /api/touch {"x":10,"y":20,"contact":true}
func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	var req touchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := s.disp.State()
	if req.X < 0 || req.Y < 0 || req.X >= st.Width || req.Y >= st.Height {
		writeError(w, http.StatusBadRequest, "touch point outside the panel")
		return
	}
	s.disp.SetNewTouchPoint(uint16(req.X), uint16(req.Y), req.Contact)
	appLog.Debug("api touch", "x", req.X, "y", req.Y, "contact", req.Contact)
	writeJSON(w, http.StatusOK, model.TouchSample{X: uint16(req.X), Y: uint16(req.Y), Contact: req.Contact})
}

// refreshRequest is the JSON body of POST /api/refresh.
type refreshRequest struct {
	Direction model.Direction `json:"direction"`
}

type refreshResponse struct {
	Accepted  bool            `json:"accepted"`
	Direction model.Direction `json:"direction"`
}

// handleRefresh requests a full refresh transition.
//
// POST /api/refresh {"direction":"left_anim"}
//   - 202 when the request was taken
//   - 409 when another transition is still running
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Direction == model.None {
		writeError(w, http.StatusBadRequest, "direction is required")
		return
	}
	resp := refreshResponse{Accepted: s.disp.SetFullRefresh(req.Direction), Direction: req.Direction}
	appLog.Info("api refresh request", "direction", req.Direction, "accepted", resp.Accepted)
	if !resp.Accepted {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// powerRequest is the JSON body of POST /api/power. On is required.
type powerRequest struct {
	On *bool `json:"on"`
}

// handlePower sleeps or wakes the panel.
//
// POST /api/power {"on":false}
//   - 200 with the new display state
//   - 501 when the panel has no sleep mode
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, "on is required")
		return
	}
	if err := s.disp.SetPower(*req.On); err != nil {
		if errors.Is(err, display.ErrNoPower) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		appLog.Error("api power request failed", err, "on", *req.On)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.disp.State())
}

// handlePreview encodes the current picture as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	if s.preview == nil {
		writeError(w, http.StatusNotFound, "preview not available")
		return
	}
	img := s.preview.Snapshot()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		appLog.Error("failed to encode preview", err)
	}
}

// staticFileServer serves the embedded files under internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths are 404s, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
