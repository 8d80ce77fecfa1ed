package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/google/uuid"
)

// Op names one Session Gateway primitive.
type Op string

const (
	OpPlace            Op = "place"
	OpAnswer           Op = "answer"
	OpReject           Op = "reject"
	OpEnd              Op = "end"
	OpHold             Op = "hold"
	OpUnhold           Op = "unhold"
	OpSendDigit        Op = "send_digit"
	OpTransferBlind    Op = "transfer_blind"
	OpTransferAttended Op = "transfer_attended"
	OpGetStats         Op = "get_stats"
)

// ErrUnknownSession is returned for handles the gateway never issued or already ended.
var ErrUnknownSession = errors.New("unknown session")

// Session is the handle issued by Gateway.
type Session struct {
	id     string
	remote domain.RemoteIdentity

	mu          sync.Mutex
	held        bool
	muted       bool
	ended       bool
	digits      []rune
	transferred string
	createdAt   time.Time
}

// CallID implements domain.SessionHandle.
func (s *Session) CallID() string { return s.id }

// Remote returns the far end of the call.
func (s *Session) Remote() domain.RemoteIdentity { return s.remote }

func (s *Session) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Digits returns every DTMF digit sent on the session so far.
func (s *Session) Digits() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.digits)
}

// TransferredTo returns the blind transfer target, if any.
func (s *Session) TransferredTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferred
}

// Gate parks every call of one Op until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	enterO  sync.Once
	relO    sync.Once
}

// Entered is closed once a call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets parked and future calls through.
func (g *Gate) Release() { g.relO.Do(func() { close(g.release) }) }

// Gateway is a simulated ports.SessionGateway. Calls succeed instantly unless
// a failure, latency or gate is configured for their Op.
// Safe for concurrent use.
type Gateway struct {
	mu       sync.Mutex
	sessions map[string]*Session
	listener ports.GatewayListener
	failures map[Op][]error
	sticky   map[Op]error
	gates    map[Op]*Gate
	latency  time.Duration
	ops      []string
}

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithLatency delays every operation, as a real network would.
func WithLatency(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.latency = d
	}
}

// NewGateway creates a simulated gateway with no sessions.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		sessions: make(map[string]*Session),
		failures: make(map[Op][]error),
		sticky:   make(map[Op]error),
		gates:    make(map[Op]*Gate),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Listen implements ports.Observable.
func (g *Gateway) Listen(listener ports.GatewayListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = listener
}

// FailNext makes the next call of op return err.
func (g *Gateway) FailNext(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// Fail makes every call of op return err until ClearFailures.
func (g *Gateway) Fail(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sticky[op] = err
}

// ClearFailures drops every configured failure.
func (g *Gateway) ClearFailures() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = make(map[Op][]error)
	g.sticky = make(map[Op]error)
}

// Block parks calls of op until the returned gate is released.
func (g *Gateway) Block(op Op) *Gate {
	gate := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[op] = gate
	return gate
}

// Ops lists the operations performed so far as "op:call-id".
func (g *Gateway) Ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ops...)
}

// Session looks up a live session by call ID.
func (g *Gateway) Session(callID string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[callID]
	return s, ok
}

// enter applies latency, gates and injected failures for one call of op.
func (g *Gateway) enter(ctx context.Context, op Op, id string) error {
	g.mu.Lock()
	g.ops = append(g.ops, string(op)+":"+id)
	gate := g.gates[op]
	var err error
	if queued := g.failures[op]; len(queued) > 0 {
		err, g.failures[op] = queued[0], queued[1:]
	} else if sticky, ok := g.sticky[op]; ok {
		err = sticky
	}
	latency := g.latency
	g.mu.Unlock()

	if gate != nil {
		gate.enterO.Do(func() { close(gate.entered) })
		select {
		case <-gate.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Gateway) lookup(handle domain.SessionHandle) (*Session, error) {
	if handle == nil {
		return nil, ErrUnknownSession
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[handle.CallID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, handle.CallID())
	}
	return s, nil
}

func (g *Gateway) drop(s *Session) {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
}

func (g *Gateway) newSession(remote domain.RemoteIdentity) *Session {
	s := &Session{id: uuid.NewString(), remote: remote, createdAt: time.Now()}
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
	return s
}

// Place implements ports.SessionGateway.
func (g *Gateway) Place(ctx context.Context, target string, opts domain.CallOptions) (domain.SessionHandle, error) {
	if err := g.enter(ctx, OpPlace, target); err != nil {
		return nil, err
	}
	return g.newSession(domain.RemoteIdentity{URI: target}), nil
}

// Answer implements ports.SessionGateway.
func (g *Gateway) Answer(ctx context.Context, handle domain.SessionHandle, opts domain.AnswerOptions) error {
	return g.apply(ctx, OpAnswer, handle, func(s *Session) {})
}

// Reject implements ports.SessionGateway.
func (g *Gateway) Reject(ctx context.Context, handle domain.SessionHandle, code int) error {
	s, err := g.lookup(handle)
	if err != nil {
		return err
	}
	if err := g.enter(ctx, OpReject, s.id); err != nil {
		return err
	}
	g.drop(s)
	return nil
}

// End implements ports.SessionGateway.
func (g *Gateway) End(ctx context.Context, handle domain.SessionHandle) error {
	s, err := g.lookup(handle)
	if err != nil {
		return err
	}
	if err := g.enter(ctx, OpEnd, s.id); err != nil {
		return err
	}
	g.drop(s)
	return nil
}

// Hold implements ports.SessionGateway.
func (g *Gateway) Hold(ctx context.Context, handle domain.SessionHandle) error {
	return g.apply(ctx, OpHold, handle, func(s *Session) { s.held = true })
}

// Unhold implements ports.SessionGateway.
func (g *Gateway) Unhold(ctx context.Context, handle domain.SessionHandle) error {
	return g.apply(ctx, OpUnhold, handle, func(s *Session) { s.held = false })
}

// Mute implements ports.SessionGateway.
func (g *Gateway) Mute(handle domain.SessionHandle) {
	if s, err := g.lookup(handle); err == nil {
		s.mu.Lock()
		s.muted = true
		s.mu.Unlock()
	}
}

// Unmute implements ports.SessionGateway.
func (g *Gateway) Unmute(handle domain.SessionHandle) {
	if s, err := g.lookup(handle); err == nil {
		s.mu.Lock()
		s.muted = false
		s.mu.Unlock()
	}
}

// SendDigit implements ports.SessionGateway.
func (g *Gateway) SendDigit(ctx context.Context, handle domain.SessionHandle, digit rune) error {
	return g.apply(ctx, OpSendDigit, handle, func(s *Session) { s.digits = append(s.digits, digit) })
}

// TransferBlind implements ports.SessionGateway.
func (g *Gateway) TransferBlind(ctx context.Context, handle domain.SessionHandle, target string) error {
	s, err := g.lookup(handle)
	if err != nil {
		return err
	}
	if err := g.enter(ctx, OpTransferBlind, s.id); err != nil {
		return err
	}
	s.mu.Lock()
	s.transferred = target
	s.mu.Unlock()
	g.drop(s)
	return nil
}

// TransferAttended implements ports.SessionGateway.
func (g *Gateway) TransferAttended(ctx context.Context, handle, consultation domain.SessionHandle) error {
	s, err := g.lookup(handle)
	if err != nil {
		return err
	}
	c, err := g.lookup(consultation)
	if err != nil {
		return err
	}
	if err := g.enter(ctx, OpTransferAttended, s.id); err != nil {
		return err
	}
	s.mu.Lock()
	s.transferred = c.remote.URI
	s.mu.Unlock()
	g.drop(s)
	g.drop(c)
	return nil
}

// GetStats implements ports.SessionGateway with figures derived from the call age.
func (g *Gateway) GetStats(ctx context.Context, handle domain.SessionHandle) (domain.Stats, error) {
	s, err := g.lookup(handle)
	if err != nil {
		return domain.Stats{}, err
	}
	if err := g.enter(ctx, OpGetStats, s.id); err != nil {
		return domain.Stats{}, err
	}
	// 50 packets per second each way at 20ms ptime.
	packets := uint64(time.Since(s.createdAt)/(20*time.Millisecond)) + 1
	return domain.Stats{
		CallID:          s.id,
		Codec:           "opus",
		PacketsSent:     packets,
		PacketsReceived: packets,
		Jitter:          2 * time.Millisecond,
		RoundTrip:       40 * time.Millisecond,
	}, nil
}

func (g *Gateway) apply(ctx context.Context, op Op, handle domain.SessionHandle, fn func(s *Session)) error {
	s, err := g.lookup(handle)
	if err != nil {
		return err
	}
	if err := g.enter(ctx, op, s.id); err != nil {
		return err
	}
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
	return nil
}

func (g *Gateway) currentListener() ports.GatewayListener {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listener
}

// SimulateIncoming delivers a new inbound call to the listener.
func (g *Gateway) SimulateIncoming(uri, displayName string) *Session {
	remote := domain.RemoteIdentity{URI: uri, DisplayName: displayName}
	s := g.newSession(remote)
	if l := g.currentListener(); l != nil {
		l.OnIncoming(s, remote)
	}
	return s
}

// SimulateRemoteHangup ends the session from the far side.
func (g *Gateway) SimulateRemoteHangup(s *Session) {
	g.drop(s)
	if l := g.currentListener(); l != nil {
		l.OnTerminated(s, domain.CauseRemoteBye)
	}
}

// SimulateFailure reports an unrecoverable session error.
func (g *Gateway) SimulateFailure(s *Session, err error) {
	g.drop(s)
	if l := g.currentListener(); l != nil {
		l.OnFailed(s, err)
	}
}

// SimulateRemoteHold reports the far side holding or resuming the call.
func (g *Gateway) SimulateRemoteHold(s *Session, held bool) {
	if l := g.currentListener(); l != nil {
		l.OnRemoteRenegotiation(s, held)
	}
}
