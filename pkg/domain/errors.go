package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidLineNumber is returned when a line number is outside 1..lineCount.
var ErrInvalidLineNumber = errors.New("invalid line number")

// ErrLineDisabled is returned when an operation targets a line whose config is disabled.
var ErrLineDisabled = errors.New("line disabled")

// ErrNoAvailableLines is returned when auto-selection finds no idle, enabled line.
var ErrNoAvailableLines = errors.New("no available lines")

// ErrLineNotAvailable is returned when an explicitly requested line is not idle.
var ErrLineNotAvailable = errors.New("line not available")

// ErrLineBusy is returned when another operation is already in flight on the line.
var ErrLineBusy = errors.New("line busy")

// ErrInvalidState is returned when the operation is not valid for the line's current status.
var ErrInvalidState = errors.New("invalid state")

// ErrInvalidDigit is returned when a DTMF string contains a non-dialable character.
var ErrInvalidDigit = errors.New("invalid DTMF digit")

// ErrInvalidTarget is returned when a call or transfer target is empty or malformed.
var ErrInvalidTarget = errors.New("invalid target")

// ErrGatewayFailure is the sentinel behind every GatewayError.
var ErrGatewayFailure = errors.New("gateway failure")

// ErrTransferFailed is the sentinel behind every TransferError.
var ErrTransferFailed = errors.New("transfer failed")

// GatewayError wraps whatever the Session Gateway reported for one operation.
type GatewayError struct {
	Op   string
	Line LineNumber
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s on line %d: %v", e.Op, e.Line, e.Err)
}

// Unwrap exposes both ErrGatewayFailure and the gateway's own error.
func (e *GatewayError) Unwrap() []error {
	return []error{ErrGatewayFailure, e.Err}
}

// TransferError reports which phase of a transfer failed.
type TransferError struct {
	Phase    TransferPhase
	FromLine LineNumber
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer from line %d failed during %s: %v", e.FromLine, e.Phase, e.Err)
}

// Unwrap exposes both ErrTransferFailed and the underlying cause.
func (e *TransferError) Unwrap() []error {
	return []error{ErrTransferFailed, e.Err}
}
