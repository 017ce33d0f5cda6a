// Package server exposes the command pipeline and record store over HTTP:
// a command endpoint for spoken or typed input, roster import, record and
// analytics listings, a websocket feed of confirmations, and the Prometheus
// metrics plus health endpoints.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chalkvoice/chalkvoice/internal/analytics"
	"github.com/chalkvoice/chalkvoice/internal/command"
	"github.com/chalkvoice/chalkvoice/internal/health"
	"github.com/chalkvoice/chalkvoice/internal/observe"
	"github.com/chalkvoice/chalkvoice/internal/roster"
)

// Server wires the HTTP surface. Construct with [New], then serve
// [Server.Handler].
type Server struct {
	processor *command.Processor
	store     roster.Store
	reporter  *analytics.Reporter
	feed      *Hub
	metrics   *observe.Metrics
	health    *health.Handler
	log       *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth sets the health handler registered on the mux. Without one,
// /healthz and /readyz are not served.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the handlers and the HTTP
// middleware. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New constructs a [Server] over the command processor and record store.
func New(processor *command.Processor, store roster.Store, opts ...Option) *Server {
	s := &Server{
		processor: processor,
		store:     store,
		reporter:  analytics.NewReporter(store),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.feed = NewHub(s.metrics, s.log)
	return s
}

// Handler returns the fully routed HTTP handler with the observability
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("POST /api/students/import", s.handleImport)
	mux.HandleFunc("GET /api/students", s.handleListStudents)
	mux.HandleFunc("GET /api/attendance", s.handleListAttendance)
	mux.HandleFunc("GET /api/marks", s.handleListMarks)
	mux.HandleFunc("GET /api/analytics/attendance", s.handleAttendanceSummary)
	mux.HandleFunc("GET /api/analytics/exams", s.handleExamReport)
	mux.HandleFunc("GET /api/analytics/at-risk", s.handleAtRisk)
	mux.HandleFunc("GET /api/live", s.feed.Serve)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	return observe.Middleware(s.metrics)(mux)
}

// Feed returns the live confirmation hub, e.g. for shutdown.
func (s *Server) Feed() *Hub { return s.feed }

// commandRequest is the body of POST /api/command. Exactly one of Transcript
// and Audio should be set; Audio is a base64-encoded WAV clip.
type commandRequest struct {
	Transcript string `json:"transcript"`
	Audio      string `json:"audio"`

	// Date is the session date (YYYY-MM-DD) attendance is recorded against.
	Date string `json:"date"`

	// Exam is the session's selected assessment, used when a marks command
	// names none.
	Exam string `json:"exam"`
}

// errorBody is the JSON error envelope shared by all handlers.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string           `json:"kind,omitempty"`
	Message    string           `json:"message"`
	Candidates []roster.Student `json:"candidates,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorDetail{Message: "invalid JSON body: " + err.Error()})
		return
	}
	if (req.Transcript == "") == (req.Audio == "") {
		writeError(w, http.StatusBadRequest, errorDetail{Message: "exactly one of transcript and audio must be set"})
		return
	}

	sess := command.Context{Date: req.Date, Exam: roster.Exam(req.Exam)}

	var (
		conf command.Confirmation
		err  error
	)
	if req.Audio != "" {
		audio, decErr := base64.StdEncoding.DecodeString(req.Audio)
		if decErr != nil {
			writeError(w, http.StatusBadRequest, errorDetail{Message: "audio is not valid base64: " + decErr.Error()})
			return
		}
		conf, err = s.processor.ProcessAudio(r.Context(), audio, sess)
	} else {
		conf, err = s.processor.Process(r.Context(), req.Transcript, sess)
	}

	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	s.feed.Broadcast(conf)
	writeJSON(w, http.StatusOK, conf)
}

// writeCommandError maps a command pipeline failure onto an HTTP status and
// the shared error envelope. Every taxonomy kind is a client-correctable
// rejection except dangling references (a server-side consistency fault) and
// transcription timeouts (upstream unavailability).
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var cerr *command.Error
	if !errors.As(err, &cerr) {
		s.log.Error("command processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, errorDetail{Message: "internal error"})
		return
	}

	status := http.StatusUnprocessableEntity
	switch cerr.Kind {
	case command.KindNoMatch:
		status = http.StatusNotFound
	case command.KindAmbiguousMatch:
		status = http.StatusConflict
	case command.KindDanglingReference:
		status = http.StatusInternalServerError
	case command.KindTranscriptionTimeout:
		status = http.StatusGatewayTimeout
	}

	writeError(w, status, errorDetail{
		Kind:       string(cerr.Kind),
		Message:    cerr.Error(),
		Candidates: cerr.Candidates,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	count, err := roster.ImportCSV(r.Context(), s.store, r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorDetail{Message: err.Error()})
		return
	}
	s.log.Info("roster imported", "students", count)
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(r.Context())
	if err != nil {
		s.internalError(w, "listing students", err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" && !roster.ValidDate(date) {
		writeError(w, http.StatusBadRequest, errorDetail{Message: fmt.Sprintf("date %q is not in YYYY-MM-DD form", date)})
		return
	}
	records, err := s.store.ListAttendance(r.Context(), date)
	if err != nil {
		s.internalError(w, "listing attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleListMarks(w http.ResponseWriter, r *http.Request) {
	exam := roster.Exam(r.URL.Query().Get("exam"))
	if !exam.IsValid() {
		writeError(w, http.StatusBadRequest, errorDetail{Message: fmt.Sprintf("exam %q is not one of %s, %s", exam, roster.ExamIA1, roster.ExamIA2)})
		return
	}
	records, err := s.store.ListExamRecords(r.Context(), exam)
	if err != nil {
		s.internalError(w, "listing exam records", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reporter.AttendanceSummary(r.Context())
	if err != nil {
		s.internalError(w, "attendance summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExamReport(w http.ResponseWriter, r *http.Request) {
	exam := roster.Exam(r.URL.Query().Get("exam"))
	stats, err := s.reporter.ExamReport(r.Context(), exam)
	if err != nil {
		if !exam.IsValid() {
			writeError(w, http.StatusBadRequest, errorDetail{Message: err.Error()})
			return
		}
		s.internalError(w, "exam report", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAtRisk(w http.ResponseWriter, r *http.Request) {
	students, err := s.reporter.AtRisk(r.Context())
	if err != nil {
		s.internalError(w, "at-risk report", err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.log.Error(what+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, errorDetail{Message: "internal error"})
}

// Shutdown closes the live feed, disconnecting all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.feed.Close(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"message":"encoding failure"}}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, detail errorDetail) {
	writeJSON(w, status, errorBody{Error: detail})
}
