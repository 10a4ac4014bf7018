package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
	ConversationID() string
	TurnID() string
}

type Base struct {
	kind           Kind
	timestamp      time.Time
	conversationID string
	turnID         string
}

type BaseOption func(*Base)

// InTurn scopes an event to a conversation and turn.
func InTurn(conversationID, turnID string) BaseOption {
	return func(b *Base) {
		b.conversationID = conversationID
		b.turnID = turnID
	}
}

func NewBase(kind Kind, opts ...BaseOption) Base {
	base := Base{kind: kind, timestamp: time.Now()}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) ConversationID() string {
	return b.conversationID
}

func (b Base) TurnID() string {
	return b.turnID
}
