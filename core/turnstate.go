package orchestration

import (
	"errors"
	"fmt"
	"slices"
)

var ErrIllegalTransition = errors.New("illegal turn state transition")

type TurnState int

const (
	TurnStateIdle TurnState = iota
	TurnStateStreaming
	TurnStateToolsPending
	TurnStateExecuting
	TurnStateCompleted
	TurnStateFailed
	// TurnStateCancelled is a user stop. It is a valid outcome, not a
	// failure.
	TurnStateCancelled
)

func (s TurnState) String() string {
	switch s {
	case TurnStateIdle:
		return "idle"
	case TurnStateStreaming:
		return "streaming"
	case TurnStateToolsPending:
		return "tools_pending"
	case TurnStateExecuting:
		return "executing"
	case TurnStateCompleted:
		return "completed"
	case TurnStateFailed:
		return "failed"
	case TurnStateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("TurnState(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s TurnState) Terminal() bool {
	return len(turnTransitions[s]) == 0
}

var turnTransitions = map[TurnState][]TurnState{
	TurnStateIdle:         {TurnStateStreaming, TurnStateFailed, TurnStateCancelled},
	TurnStateStreaming:    {TurnStateToolsPending, TurnStateCompleted, TurnStateFailed, TurnStateCancelled},
	TurnStateToolsPending: {TurnStateExecuting, TurnStateFailed, TurnStateCancelled},
	TurnStateExecuting:    {TurnStateStreaming, TurnStateFailed, TurnStateCancelled},
}

func canTransition(from, to TurnState) bool {
	return slices.Contains(turnTransitions[from], to)
}
