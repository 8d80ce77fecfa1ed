package domain

// Trigger names what moves a line from one status to another.
type Trigger string

const (
	TriggerDial       Trigger = "dial"
	TriggerPlaced     Trigger = "placed"
	TriggerDialFailed Trigger = "dial_failed"
	TriggerIncoming   Trigger = "incoming"
	TriggerAnswer     Trigger = "answer"
	TriggerReject     Trigger = "reject"
	TriggerHold       Trigger = "hold"
	TriggerUnhold     Trigger = "unhold"
	TriggerHangup     Trigger = "hangup"
	TriggerTransfer   Trigger = "transfer"
	TriggerTerminated Trigger = "terminated"
	TriggerFailed     Trigger = "failed"
	TriggerReset      Trigger = "reset"
)

// Transition is a single allowed edge in the line state machine.
type Transition struct {
	From    LineStatus
	To      LineStatus
	Trigger Trigger
}

var transitionsTable = []Transition{
	// Outbound
	{From: StatusIdle, To: StatusBusy, Trigger: TriggerDial},
	{From: StatusBusy, To: StatusActive, Trigger: TriggerPlaced},
	{From: StatusBusy, To: StatusIdle, Trigger: TriggerDialFailed},

	// Inbound
	{From: StatusIdle, To: StatusRinging, Trigger: TriggerIncoming},
	{From: StatusRinging, To: StatusActive, Trigger: TriggerAnswer},
	{From: StatusRinging, To: StatusIdle, Trigger: TriggerReject},

	// Hold
	{From: StatusActive, To: StatusHeld, Trigger: TriggerHold},
	{From: StatusHeld, To: StatusActive, Trigger: TriggerUnhold},

	// Local teardown
	{From: StatusActive, To: StatusIdle, Trigger: TriggerHangup},
	{From: StatusHeld, To: StatusIdle, Trigger: TriggerHangup},
	{From: StatusRinging, To: StatusIdle, Trigger: TriggerHangup},
	{From: StatusActive, To: StatusIdle, Trigger: TriggerTransfer},
	{From: StatusHeld, To: StatusIdle, Trigger: TriggerTransfer},

	// Gateway initiated
	{From: StatusBusy, To: StatusIdle, Trigger: TriggerTerminated},
	{From: StatusRinging, To: StatusIdle, Trigger: TriggerTerminated},
	{From: StatusActive, To: StatusIdle, Trigger: TriggerTerminated},
	{From: StatusHeld, To: StatusIdle, Trigger: TriggerTerminated},
	{From: StatusIdle, To: StatusError, Trigger: TriggerFailed},
	{From: StatusBusy, To: StatusError, Trigger: TriggerFailed},
	{From: StatusRinging, To: StatusError, Trigger: TriggerFailed},
	{From: StatusActive, To: StatusError, Trigger: TriggerFailed},
	{From: StatusHeld, To: StatusError, Trigger: TriggerFailed},
}

// TransitionFor returns the allowed transition for a given status and trigger.
// Reset is accepted from every status and always lands on idle.
func TransitionFor(from LineStatus, trigger Trigger) (Transition, bool) {
	if trigger == TriggerReset {
		return Transition{From: from, To: StatusIdle, Trigger: TriggerReset}, true
	}
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Trigger == trigger {
			return tr, true
		}
	}
	return Transition{}, false
}

// CanTransition reports whether trigger is valid from the given status.
func (s LineStatus) CanTransition(trigger Trigger) bool {
	_, ok := TransitionFor(s, trigger)
	return ok
}
