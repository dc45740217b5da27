// Package server exposes the render points over HTTP for the host renderer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dyluth/ldew/internal/access"
	"github.com/dyluth/ldew/internal/hooks"
	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the caller's request ID, if any.
const RequestIDHeader = "X-Request-ID"

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the hook endpoints and /healthz.
type Server struct {
	hooks   *hooks.Hooks
	store   Pinger
	addr    string
	server  *http.Server
	limiter *rate.Limiter
}

// New creates a server listening on addr once started.
func New(addr string, h *hooks.Hooks, store Pinger) *Server {
	return &Server{
		hooks: h,
		store: store,
		addr:  addr,
	}
}

// SetRateLimit caps hook and render requests at rps per second with the
// given burst. rps <= 0 removes the cap. /healthz is never limited.
func (s *Server) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	mux.HandleFunc("/hooks/every-page-top", s.limit(s.everyPageTopHandler))
	mux.HandleFunc("/hooks/data-entry-form", s.limit(s.dataEntryFormHandler))
	mux.HandleFunc("/hooks/save-record", s.limit(s.saveRecordHandler))
	mux.HandleFunc("/render/data-entry-form", s.limit(s.renderDataEntryHandler))
	return mux
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:     "rate limit exceeded",
				RequestID: r.Header.Get(RequestIDHeader),
			})
			return
		}
		next(w, r)
	}
}

// Start starts the HTTP server in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] HTTP server error: %v", err)
		}
	}()

	log.Printf("[Server] Listening on %s", s.addr)
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
	}

	if err := s.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Redis = "connected"
	writeJSON(w, http.StatusOK, response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of a failed hook call.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

func (s *Server) everyPageTopHandler(w http.ResponseWriter, r *http.Request) {
	var pc hooks.PageContext
	rc, ok := decodeHookRequest(w, r, &pc)
	if !ok {
		return
	}

	out, err := s.hooks.EveryPageTop(r.Context(), rc, pc)
	if err != nil {
		writeError(w, rc, err)
		return
	}
	if out == nil {
		out = &hooks.DashboardOutput{DisabledLinks: []string{}}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dataEntryFormHandler(w http.ResponseWriter, r *http.Request) {
	var pc hooks.PageContext
	rc, ok := decodeHookRequest(w, r, &pc)
	if !ok {
		return
	}

	out, err := s.hooks.DataEntryForm(r.Context(), rc, pc)
	if err != nil {
		writeError(w, rc, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveRecordHandler(w http.ResponseWriter, r *http.Request) {
	var in hooks.SaveInput
	rc, ok := decodeHookRequest(w, r, &in)
	if !ok {
		return
	}

	out, err := s.hooks.SaveRecord(r.Context(), rc, in)
	if err != nil {
		writeError(w, rc, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// renderDataEntryHandler renders the data entry page fragment as the host
// would embed it. With page_top=1 the page-top fragment is written first,
// so a denial found afterwards must redirect from the client side.
func (s *Server) renderDataEntryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := requestContext(r)
	q := r.URL.Query()
	instance, _ := strconv.Atoi(q.Get("instance"))
	pc := hooks.PageContext{
		Page:     hooks.PageDataEntry,
		Arm:      q.Get("arm"),
		Record:   q.Get("id"),
		Event:    q.Get("event_id"),
		Form:     q.Get("page"),
		Instance: instance,
		UserRole: q.Get("role"),

		CurrentStatus: clinical.CompletionStatus(q.Get("status")),
	}

	tw := &trackingWriter{ResponseWriter: w}
	tw.Header().Set("Content-Type", "text/html; charset=utf-8")

	if q.Get("page_top") == "1" {
		top, err := s.hooks.EveryPageTop(r.Context(), rc, hooks.PageContext{Page: hooks.PageRecordHome, Arm: pc.Arm, Record: pc.Record})
		if err != nil {
			writeError(tw, rc, err)
			return
		}
		if err := pageTopTemplate.Execute(tw, top); err != nil {
			log.Printf("[Server] request=%s failed to render page top: %v", rc.ID, err)
			return
		}
	}

	out, err := s.hooks.DataEntryForm(r.Context(), rc, pc)
	if err != nil {
		if tw.written {
			log.Printf("[Server] request=%s data entry hook failed after output began: %v", rc.ID, err)
			return
		}
		writeError(tw, rc, err)
		return
	}

	if out.Redirect != "" {
		redirect(tw, r, out.Redirect)
		return
	}

	if err := dataEntryTemplate.Execute(tw, out); err != nil {
		log.Printf("[Server] request=%s failed to render data entry settings: %v", rc.ID, err)
	}
}

var pageTopTemplate = template.Must(template.New("page_top").Parse(
	`<script>window.ldew = window.ldew || {}; window.ldew.disabledLinks = {{if .}}{{.DisabledLinks}}{{else}}[]{{end}};</script>
`))

var dataEntryTemplate = template.Must(template.New("data_entry").Parse(
	`<script>window.ldew = window.ldew || {}; window.ldew.rfio = {{.RFIO}}; window.ldew.visibility = {{.Visibility}}; window.ldew.removeIgnoreButton = {{.RemoveIgnoreButton}}; window.ldew.fdec = {{.FDEC}}; window.ldew.autoLock = {{.AutoLock}}; window.ldew.locked = {{.Locked}}; window.ldew.defaults = {{.Defaults}};</script>
`))

// trackingWriter records whether any body bytes went out.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.written = true
	return t.ResponseWriter.Write(p)
}

func (t *trackingWriter) WriteHeader(code int) {
	t.written = true
	t.ResponseWriter.WriteHeader(code)
}

var redirectTemplate = template.Must(template.New("redirect").Parse(
	`<script>window.location.href = {{.}};</script>
`))

// redirect sends the user to target and ends the response. Before any
// output it answers 302; once output has begun it falls back to a script.
func redirect(w *trackingWriter, r *http.Request, target string) {
	if !w.written {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if err := redirectTemplate.Execute(w, target); err != nil {
		log.Printf("[Server] Failed to write client-side redirect: %v", err)
	}
}

func requestContext(r *http.Request) *access.RequestContext {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.New().String()
	}
	return access.NewRequestContext(id)
}

func decodeHookRequest(w http.ResponseWriter, r *http.Request, v any) (*access.RequestContext, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	rc := requestContext(r)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     fmt.Sprintf("invalid request body: %v", err),
			RequestID: rc.ID,
		})
		return nil, false
	}
	return rc, true
}

func writeError(w http.ResponseWriter, rc *access.RequestContext, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, access.ErrUnknownTarget) {
		code = http.StatusBadRequest
	}

	log.Printf("[Server] request=%s error: %v", rc.ID, err)
	writeJSON(w, code, ErrorResponse{Error: err.Error(), RequestID: rc.ID})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}
