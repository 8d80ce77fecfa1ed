/*
Package callboard coordinates several concurrent calls over one SIP account, the
way a desk phone with line keys does.

A fixed pool of numbered lines each carries at most one call. The engine routes
inbound calls to free lines, keeps a single line active at a time (auto-hold),
swaps between an active and a held call, runs blind and attended transfers, and
publishes one event per state change. Signalling and media are delegated to a
SessionGateway; callboard only decides which line a call lives on and what may
happen to it next.

# Lines

Each line moves through a small state machine:

	idle -> busy -> active        (outbound)
	idle -> ringing -> active     (inbound)
	active <-> held
	any call state -> idle        (hangup, reject, transfer, remote bye)
	any state -> error -> idle    (session failure, then reset)

Operations on one line never overlap: a second operation while one is in flight
fails fast with domain.ErrLineBusy instead of queueing.

# Usage

	gateway := memory.NewGateway()
	eng, err := callboard.New(gateway,
		callboard.WithLineCount(4),
		callboard.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		log.Fatal(err)
	}

	n, err := eng.MakeCall(ctx, "sip:bob@example.com", domain.CallOptions{Audio: true})

# Events

Subscribe with domain.LifecycleHooks to observe state changes, incoming calls,
ended calls and selection changes. Hooks run synchronously after the state they
describe is committed.

# Adapters

  - pkg/adapters/http: REST API, SSE event stream and /metrics.
  - pkg/adapters/mcp: MCP tools for agents.
  - pkg/adapters/redis: call log and distributed line locks.
  - pkg/adapters/memory: simulated gateway and in-memory call log.
*/
package callboard
