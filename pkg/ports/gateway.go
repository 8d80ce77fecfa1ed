package ports

import (
	"context"

	"github.com/aretw0/callboard/pkg/domain"
)

// SessionGateway is the signaling/media stack the coordinator delegates every call leg to.
// Each blocking method may fail independently; timeouts are the gateway's responsibility
// and are reported as ordinary errors.
type SessionGateway interface {
	// Place dials target and resolves once the call is established.
	Place(ctx context.Context, target string, opts domain.CallOptions) (domain.SessionHandle, error)

	Answer(ctx context.Context, session domain.SessionHandle, opts domain.AnswerOptions) error
	Reject(ctx context.Context, session domain.SessionHandle, code int) error
	End(ctx context.Context, session domain.SessionHandle) error
	Hold(ctx context.Context, session domain.SessionHandle) error
	Unhold(ctx context.Context, session domain.SessionHandle) error

	// Mute and Unmute are local to the capture pipeline and never fail.
	Mute(session domain.SessionHandle)
	Unmute(session domain.SessionHandle)

	SendDigit(ctx context.Context, session domain.SessionHandle, digit rune) error
	TransferBlind(ctx context.Context, session domain.SessionHandle, target string) error
	TransferAttended(ctx context.Context, session, consultation domain.SessionHandle) error
	GetStats(ctx context.Context, session domain.SessionHandle) (domain.Stats, error)
}

// GatewayListener receives the gateway's unsolicited events.
type GatewayListener interface {
	OnIncoming(session domain.SessionHandle, remote domain.RemoteIdentity)
	OnTerminated(session domain.SessionHandle, cause domain.EndCause)
	OnFailed(session domain.SessionHandle, err error)
	OnRemoteRenegotiation(session domain.SessionHandle, remoteHeld bool)
}

// Observable is implemented by gateways that push events.
// The coordinator registers its listener at construction.
type Observable interface {
	Listen(listener GatewayListener)
}
