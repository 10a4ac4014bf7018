package orchestration

// CancelTurn stops the running turn of a conversation. It reports whether a
// turn was running. The turn itself finishes asynchronously in
// TurnStateCancelled.
func (o *Orchestrator) CancelTurn(conversationID string) bool {
	o.mu.Lock()
	turn, ok := o.turns[conversationID]
	o.mu.Unlock()

	if !ok {
		return false
	}
	turn.cancel()
	return true
}

// CancelAll stops every running turn.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	active := make([]*activeTurn, 0, len(o.turns))
	for _, turn := range o.turns {
		active = append(active, turn)
	}
	o.mu.Unlock()

	for _, turn := range active {
		turn.cancel()
	}
}

// TurnState returns the state of the running turn of a conversation.
func (o *Orchestrator) TurnState(conversationID string) (TurnState, bool) {
	o.mu.Lock()
	turn, ok := o.turns[conversationID]
	o.mu.Unlock()

	if !ok {
		return TurnStateIdle, false
	}
	return turn.State(), true
}
