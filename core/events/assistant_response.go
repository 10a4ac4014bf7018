package events

const (
	// KindAssistantResponseStarted identifies the start of an inference round.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseUpdated identifies a paced update of the message
	// under construction.
	KindAssistantResponseUpdated Kind = "assistant_response.updated"
	// KindAssistantReasoningCollapsed identifies the hint that reasoning is
	// finished and can be collapsed.
	KindAssistantReasoningCollapsed Kind = "assistant_response.reasoning_collapsed"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseStarted marks the start of an inference round.
type AssistantResponseStarted struct {
	Base
	MessageID string
	Round     int
}

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted(messageID string, round int, opts ...BaseOption) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted, opts...), MessageID: messageID, Round: round}
}

// AssistantResponseUpdated carries one paced segment together with the
// displayed snapshot of the message after applying it.
type AssistantResponseUpdated struct {
	Base
	MessageID string
	// Channel is "reasoning" or "text".
	Channel   string
	Segment   string
	Text      string
	Reasoning string
}

// NewAssistantResponseUpdated creates an assistant response updated event.
func NewAssistantResponseUpdated(messageID, channel, segment, text, reasoning string, opts ...BaseOption) AssistantResponseUpdated {
	return AssistantResponseUpdated{
		Base:      NewBase(KindAssistantResponseUpdated, opts...),
		MessageID: messageID,
		Channel:   channel,
		Segment:   segment,
		Text:      text,
		Reasoning: reasoning,
	}
}

type AssistantReasoningCollapsed struct {
	Base
	MessageID string
}

func NewAssistantReasoningCollapsed(messageID string, opts ...BaseOption) AssistantReasoningCollapsed {
	return AssistantReasoningCollapsed{Base: NewBase(KindAssistantReasoningCollapsed, opts...), MessageID: messageID}
}

// AssistantResponseFinal marks assistant response stream completion.
type AssistantResponseFinal struct {
	Base
	MessageID string
	Text      string
	Reasoning string
	ToolCalls int
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(messageID, text, reasoning string, toolCalls int, opts ...BaseOption) AssistantResponseFinal {
	return AssistantResponseFinal{
		Base:      NewBase(KindAssistantResponseFinal, opts...),
		MessageID: messageID,
		Text:      text,
		Reasoning: reasoning,
		ToolCalls: toolCalls,
	}
}
