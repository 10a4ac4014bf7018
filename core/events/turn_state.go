package events

const (
	// KindTurnStarted identifies turn start.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnStateChanged identifies a state machine transition.
	KindTurnStateChanged Kind = "turn_state.changed"
	// KindTurnCompleted identifies successful turn completion.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies turn failure.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of a turn.
type TurnStarted struct{ Base }

// NewTurnStarted creates a turn started event.
func NewTurnStarted(opts ...BaseOption) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted, opts...)}
}

// TurnStateChanged reports a transition of the turn state machine.
type TurnStateChanged struct {
	Base
	From string
	To   string
}

// NewTurnStateChanged creates a turn state changed event.
func NewTurnStateChanged(from, to string, opts ...BaseOption) TurnStateChanged {
	return TurnStateChanged{Base: NewBase(KindTurnStateChanged, opts...), From: from, To: to}
}

// TurnCompleted marks successful completion of a turn.
type TurnCompleted struct {
	Base
	Rounds int
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(rounds int, opts ...BaseOption) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted, opts...), Rounds: rounds}
}

// TurnFailed marks a turn that ended with an error.
type TurnFailed struct {
	Base
	Error string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(err string, opts ...BaseOption) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed, opts...), Error: err}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct{ Base }

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(opts ...BaseOption) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled, opts...)}
}
