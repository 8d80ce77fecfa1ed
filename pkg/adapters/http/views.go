package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/callboard/pkg/domain"
)

// LineView is the wire form of a line snapshot.
type LineView struct {
	domain.Line
	CallID string `json:"call_id,omitempty"`
}

func toLineView(l domain.Line) LineView {
	return LineView{Line: l, CallID: l.CallID()}
}

func toLineViews(lines []domain.Line) []LineView {
	out := make([]LineView, len(lines))
	for i, l := range lines {
		out[i] = toLineView(l)
	}
	return out
}

type selectionView struct {
	Line domain.LineNumber `json:"line"`
}

// StatusFor maps a coordinator error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrInvalidLineNumber):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDigit), errors.Is(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLineBusy),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrLineNotAvailable),
		errors.Is(err, domain.ErrNoAvailableLines),
		errors.Is(err, domain.ErrLineDisabled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayFailure), errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// message is one SSE frame.
type message struct {
	Event domain.EventType
	Line  domain.LineNumber
	Data  []byte
}
