package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine defines the coordinator operations exposed over HTTP.
type Engine interface {
	Lines() []domain.Line
	GetLineState(n domain.LineNumber) (domain.Line, error)
	GetLineByCallID(callID string) (domain.Line, bool)
	ConfigureLine(n domain.LineNumber, patch domain.LineConfigPatch) (domain.LineConfig, error)

	SelectedLine() (domain.LineNumber, bool)
	SelectLine(ctx context.Context, n domain.LineNumber) error
	SelectNextAvailable(ctx context.Context) (domain.LineNumber, bool)
	SelectRingingLine(ctx context.Context) (domain.LineNumber, bool)

	MakeCall(ctx context.Context, target string, opts domain.CallOptions) (domain.LineNumber, error)
	AnswerCall(ctx context.Context, n domain.LineNumber, opts domain.AnswerOptions) error
	RejectCall(ctx context.Context, n domain.LineNumber, code int) error
	HangupCall(ctx context.Context, n domain.LineNumber) error
	HangupAll(ctx context.Context) error
	HoldLine(ctx context.Context, n domain.LineNumber) error
	UnholdLine(ctx context.Context, n domain.LineNumber) error
	ToggleHoldLine(ctx context.Context, n domain.LineNumber) error
	MuteLine(ctx context.Context, n domain.LineNumber) error
	UnmuteLine(ctx context.Context, n domain.LineNumber) error
	SendDTMF(ctx context.Context, n domain.LineNumber, digits string) error
	GetLineStats(ctx context.Context, n domain.LineNumber) (domain.Stats, error)
	ResetLine(ctx context.Context, n domain.LineNumber) error
	ResetAllLines(ctx context.Context) error
	SwapLines(ctx context.Context, a, b domain.LineNumber) error
	TransferCall(ctx context.Context, req domain.TransferRequest) error

	Subscribe(hooks domain.LifecycleHooks) func()
}

// Server serves the line API and the event stream.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	calls       ports.CallLog
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	unsubscribe func()
}

// Option configures a Server.
type Option func(*Server)

// WithCallLog exposes the call history under /calllog.
func WithCallLog(log ports.CallLog) Option {
	return func(s *Server) {
		s.calls = log
	}
}

// WithGatherer serves /metrics from the given registry instead of the global one.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server and subscribes its stream manager to the engine's events.
// Call Close to drop the subscription.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:   engine,
		Streams:  NewStreamManager(),
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	s.unsubscribe = engine.Subscribe(s.Streams.Hooks())
	return s
}

// Close detaches the server from the engine's event bus.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// NewHandler creates a new HTTP handler for the engine.
// The event subscription lives as long as the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/events", s.SubscribeEvents)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/calllog", s.GetCallLog)

	r.Post("/calls", s.MakeCall)
	r.Get("/calls/{callID}", s.GetCall)

	r.Get("/selection", s.GetSelection)
	r.Post("/selection/next", s.SelectNext)
	r.Post("/selection/ringing", s.SelectRinging)

	r.Post("/swap", s.Swap)
	r.Post("/hangup-all", s.HangupAll)
	r.Post("/reset-all", s.ResetAll)

	r.Get("/lines", s.GetLines)
	r.Route("/lines/{line}", func(r chi.Router) {
		r.Get("/", s.GetLine)
		r.Patch("/config", s.ConfigureLine)
		r.Get("/stats", s.GetStats)
		r.Post("/answer", s.Answer)
		r.Post("/reject", s.Reject)
		r.Post("/dtmf", s.SendDTMF)
		r.Post("/transfer", s.Transfer)
		r.Post("/select", s.lineAction(func(ctx context.Context, n domain.LineNumber) error {
			return s.Engine.SelectLine(ctx, n)
		}))
		r.Post("/hangup", s.lineAction(s.Engine.HangupCall))
		r.Post("/hold", s.lineAction(s.Engine.HoldLine))
		r.Post("/unhold", s.lineAction(s.Engine.UnholdLine))
		r.Post("/toggle-hold", s.lineAction(s.Engine.ToggleHoldLine))
		r.Post("/reset", s.lineAction(s.Engine.ResetLine))
		r.Post("/mute", s.lineAction(s.Engine.MuteLine))
		r.Post("/unmute", s.lineAction(s.Engine.UnmuteLine))
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLines handles the GET /lines request.
func (s *Server) GetLines(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toLineViews(s.Engine.Lines()))
}

// GetLine handles the GET /lines/{line} request.
func (s *Server) GetLine(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	l, err := s.Engine.GetLineState(n)
	if err != nil {
		s.fail(w, "GetLine", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineView(l))
}

// GetCall handles the GET /calls/{callID} request.
func (s *Server) GetCall(w http.ResponseWriter, r *http.Request) {
	l, ok := s.Engine.GetLineByCallID(chi.URLParam(r, "callID"))
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineView(l))
}

// ConfigureLine handles the PATCH /lines/{line}/config request.
func (s *Server) ConfigureLine(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	var raw map[string]any
	if !s.decode(w, r, &raw) {
		return
	}
	patch, err := config.DecodePatch(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid patch: %v", err), http.StatusBadRequest)
		return
	}
	cfg, err := s.Engine.ConfigureLine(n, patch)
	if err != nil {
		s.fail(w, "ConfigureLine", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

// GetStats handles the GET /lines/{line}/stats request.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	stats, err := s.Engine.GetLineStats(r.Context(), n)
	if err != nil {
		s.fail(w, "GetStats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// MakeCallRequest is the body of POST /calls.
type MakeCallRequest struct {
	Target  string            `json:"target"`
	Line    int               `json:"line,omitempty"`
	Audio   bool              `json:"audio"`
	Video   bool              `json:"video"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MakeCall handles the POST /calls request.
func (s *Server) MakeCall(w http.ResponseWriter, r *http.Request) {
	var body MakeCallRequest
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.Engine.MakeCall(r.Context(), body.Target, domain.CallOptions{
		Line:    domain.LineNumber(body.Line),
		Audio:   body.Audio,
		Video:   body.Video,
		Headers: body.Headers,
	})
	if err != nil {
		s.fail(w, "MakeCall", err)
		return
	}
	l, err := s.Engine.GetLineState(n)
	if err != nil {
		s.fail(w, "MakeCall", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toLineView(l))
}

// Answer handles the POST /lines/{line}/answer request. An empty body answers with audio.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	opts := domain.AnswerOptions{Audio: true}
	if r.ContentLength != 0 && !s.decode(w, r, &opts) {
		return
	}
	s.respond(w, r, "Answer", n, s.Engine.AnswerCall(r.Context(), n, opts))
}

// Reject handles the POST /lines/{line}/reject request.
func (s *Server) Reject(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Code int `json:"code"`
	}
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	s.respond(w, r, "Reject", n, s.Engine.RejectCall(r.Context(), n, body.Code))
}

// SendDTMF handles the POST /lines/{line}/dtmf request.
func (s *Server) SendDTMF(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Digits string `json:"digits"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.respond(w, r, "SendDTMF", n, s.Engine.SendDTMF(r.Context(), n, body.Digits))
}

// TransferRequest is the body of POST /lines/{line}/transfer.
// URI selects a blind transfer, Line an attended one.
type TransferRequest struct {
	URI      string `json:"uri,omitempty"`
	Line     int    `json:"line,omitempty"`
	Attended bool   `json:"attended"`
}

// Transfer handles the POST /lines/{line}/transfer request.
func (s *Server) Transfer(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lineParam(w, r)
	if !ok {
		return
	}
	var body TransferRequest
	if !s.decode(w, r, &body) {
		return
	}
	err := s.Engine.TransferCall(r.Context(), domain.TransferRequest{
		FromLine: n,
		Target:   domain.TransferTarget{URI: body.URI, Line: domain.LineNumber(body.Line)},
		Attended: body.Attended,
	})
	if err != nil {
		s.fail(w, "Transfer", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineViews(s.Engine.Lines()))
}

// GetSelection handles the GET /selection request.
func (s *Server) GetSelection(w http.ResponseWriter, r *http.Request) {
	n, _ := s.Engine.SelectedLine()
	s.writeJSON(w, http.StatusOK, selectionView{Line: n})
}

// SelectNext handles the POST /selection/next request.
func (s *Server) SelectNext(w http.ResponseWriter, r *http.Request) {
	n, found := s.Engine.SelectNextAvailable(r.Context())
	s.selectBy(w, n, found)
}

// SelectRinging handles the POST /selection/ringing request.
func (s *Server) SelectRinging(w http.ResponseWriter, r *http.Request) {
	n, found := s.Engine.SelectRingingLine(r.Context())
	s.selectBy(w, n, found)
}

func (s *Server) selectBy(w http.ResponseWriter, n domain.LineNumber, found bool) {
	if !found {
		http.Error(w, "no matching line", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, selectionView{Line: n})
}

// Swap handles the POST /swap request.
func (s *Server) Swap(w http.ResponseWriter, r *http.Request) {
	var body struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.Engine.SwapLines(r.Context(), domain.LineNumber(body.A), domain.LineNumber(body.B)); err != nil {
		s.fail(w, "Swap", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineViews(s.Engine.Lines()))
}

// HangupAll handles the POST /hangup-all request.
func (s *Server) HangupAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.HangupAll(r.Context()); err != nil {
		s.fail(w, "HangupAll", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineViews(s.Engine.Lines()))
}

// ResetAll handles the POST /reset-all request.
func (s *Server) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.ResetAllLines(r.Context()); err != nil {
		s.fail(w, "ResetAll", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineViews(s.Engine.Lines()))
}

// GetCallLog handles the GET /calllog request.
func (s *Server) GetCallLog(w http.ResponseWriter, r *http.Request) {
	if s.calls == nil {
		http.Error(w, "call log disabled", http.StatusNotFound)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	records, err := s.calls.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, "GetCallLog", err)
		return
	}
	if records == nil {
		records = []domain.CallRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// lineAction adapts a single-line operation to a handler that answers with the new line state.
func (s *Server) lineAction(op func(context.Context, domain.LineNumber) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := s.lineParam(w, r)
		if !ok {
			return
		}
		name := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		s.respond(w, r, name, n, op(r.Context(), n))
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, n domain.LineNumber, err error) {
	if err != nil {
		s.fail(w, op, err)
		return
	}
	l, err := s.Engine.GetLineState(n)
	if err != nil {
		s.fail(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLineView(l))
}

func (s *Server) lineParam(w http.ResponseWriter, r *http.Request) (domain.LineNumber, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "line"))
	if err != nil {
		http.Error(w, "invalid line number", http.StatusBadRequest)
		return 0, false
	}
	return domain.LineNumber(n), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "op", op, "err", err)
	} else {
		s.logger.Debug("Request rejected", "op", op, "status", code, "err", err)
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
