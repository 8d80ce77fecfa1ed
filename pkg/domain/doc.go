/*
Package domain contains the core entities of the Callboard multi-line call coordinator.

It defines the fixed pool of telephony Lines, the per-line state machine, the events
emitted on every transition and the error taxonomy shared by every adapter. This package
is kept pure and free of external dependencies like I/O, signaling or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Line: one addressable call slot (1-indexed), holding at most one Session.
  - LineStatus: the state of a Line (idle, busy, ringing, active, held, error).
  - SessionHandle: the opaque per-call handle issued by the Session Gateway.
  - TransferRequest: an ephemeral blind or attended transfer instruction.
  - Events: LineStateChangeEvent, LineIncomingCallEvent, LineCallEndedEvent and
    LineSelectionChangeEvent, delivered synchronously through LifecycleHooks.
*/
package domain
