/*
Package ports defines the driven ports (interfaces) of the Callboard coordinator.

These interfaces decouple the line state machine from the signaling stack, storage
backends and cross-process locking, so the coordinator can run against a real SIP/WebRTC
stack, a simulated gateway in tests, or anything in between.

# Key Interfaces

  - SessionGateway: per-call signaling primitives (place, answer, hold, transfer, ...).
  - GatewayListener: the event stream a gateway pushes back (incoming, terminated, ...).
  - CallLog: append-only history of ended calls.
  - DistributedLocker: cross-process ownership of a line while an operation is in flight.
*/
package ports
