package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/domain"
)

const streamBuffer = 32

// StreamManager fans coordinator events out to SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan message]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan message]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a connection and returns its channel and a cancel func.
func (sm *StreamManager) Subscribe() (<-chan message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan message, streamBuffer)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Count reports the number of open connections.
func (sm *StreamManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast sends an event to every connection without blocking.
func (sm *StreamManager) Broadcast(event domain.EventType, line domain.LineNumber, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("SSE: encode failed", "event", event, "err", err)
		return
	}
	msg := message{Event: event, Line: line, Data: data}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "event", event, "line", line)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.LineStateChangeEvent) {
			sm.Broadcast(domain.EventStateChange, e.Line, e)
		},
		OnIncomingCall: func(_ context.Context, e *domain.LineIncomingCallEvent) {
			sm.Broadcast(domain.EventIncomingCall, e.Line, e)
		},
		OnCallEnded: func(_ context.Context, e *domain.LineCallEndedEvent) {
			sm.Broadcast(domain.EventCallEnded, e.Line, e)
		},
		OnSelectionChange: func(_ context.Context, e *domain.LineSelectionChangeEvent) {
			sm.Broadcast(domain.EventSelectionChange, e.NewLine, e)
		},
	}
}

// streamFilter narrows a connection to some event types and lines.
type streamFilter struct {
	events []domain.EventType
	lines  []domain.LineNumber
}

func parseFilter(r *http.Request) (streamFilter, error) {
	var f streamFilter
	q := r.URL.Query()
	if v := q.Get("events"); v != "" {
		for _, name := range strings.Split(v, ",") {
			f.events = append(f.events, domain.EventType(strings.TrimSpace(name)))
		}
	}
	if v := q.Get("lines"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return f, fmt.Errorf("invalid line %q", raw)
			}
			f.lines = append(f.lines, domain.LineNumber(n))
		}
	}
	return f, nil
}

func (f streamFilter) keep(msg message) bool {
	if len(f.events) > 0 && !slices.Contains(f.events, msg.Event) {
		return false
	}
	// Selection events that clear the selection carry line 0 and always pass.
	if len(f.lines) > 0 && msg.Line != 0 && !slices.Contains(f.lines, msg.Line) {
		return false
	}
	return true
}

// SubscribeEvents handles the GET /events request (SSE).
// Optional filters: ?events=line_state_change,line_call_ended and ?lines=1,2.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "remote", r.RemoteAddr)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !filter.keep(msg) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}
