package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/pacing"
)

// roundState is the assistant message under construction for one round.
// The orchestrator goroutine accumulates, the balancer goroutine advances
// what has been displayed.
type roundState struct {
	mu sync.Mutex

	messageID string
	round     int

	text           string
	reasoning      string
	signature      string
	thinkingActive bool
	toolCalls      []llms.ToolCall
	images         []llms.Attachment
	textLength     int

	displayedText      string
	displayedReasoning string

	persisted bool
}

func newRoundState(round int) *roundState {
	return &roundState{messageID: uuid.NewString(), round: round}
}

func (s *roundState) addReasoning(reasoning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasoning += reasoning
	s.thinkingActive = true
}

func (s *roundState) setReasoningSignature(signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signature = signature
}

// addText returns the grapheme length of all text so far.
func (s *roundState) addText(text string) int {
	length := pacing.Length(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.text += text
	s.textLength += length
	return s.textLength
}

func (s *roundState) addToolCall(call llms.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls = append(s.toolCalls, call)
}

func (s *roundState) addImage(image llms.Attachment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, image)
	return len(s.images)
}

func (s *roundState) imageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// display records a paced chunk and returns the displayed snapshot.
func (s *roundState) display(chunk pacing.Chunk) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch chunk.Channel {
	case pacing.ChannelReasoning:
		s.displayedReasoning += chunk.Text
	default:
		s.displayedText += chunk.Text
	}
	return s.displayedText, s.displayedReasoning
}

func (s *roundState) displayed() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayedText, s.displayedReasoning
}

// collapse ends the thinking phase and reports whether there was any
// reasoning.
func (s *roundState) collapse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinkingActive = false
	return s.reasoning != ""
}

func (s *roundState) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text == "" && s.reasoning == "" && len(s.toolCalls) == 0 && len(s.images) == 0
}

func (s *roundState) calls() []llms.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llms.ToolCall(nil), s.toolCalls...)
}

func (s *roundState) message() conversations.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := conversations.NewMessage(conversations.RoleAssistant, s.text,
		conversations.WithReasoning(s.reasoning),
		conversations.WithReasoningSignature(s.signature),
		conversations.WithToolCalls(s.toolCalls...))
	message.ID = s.messageID
	return message
}

func (s *roundState) markPersisted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = true
}

func (s *roundState) isPersisted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

// activeTurn is the registry entry of a running turn. It owns the turn's
// balancer and state machine.
type activeTurn struct {
	id             string
	conversationID string
	cancel         context.CancelFunc
	emit           func(events.Event)
	eventOpts      []events.BaseOption

	balancer *pacing.Balancer

	mu        sync.Mutex
	state     TurnState
	pacing    PacingConfig
	frequency int
	round     *roundState
}

func newActiveTurn(conversationID string, cancel context.CancelFunc, emit func(events.Event), config PacingConfig) *activeTurn {
	turn := &activeTurn{
		id:             uuid.NewString(),
		conversationID: conversationID,
		cancel:         cancel,
		emit:           emit,
		state:          TurnStateIdle,
		pacing:         config,
		frequency:      config.Frequency,
	}
	turn.eventOpts = []events.BaseOption{events.InTurn(conversationID, turn.id)}
	turn.balancer = pacing.New(turn.onPaced, pacing.WithPace(config.Duration, config.Frequency))
	return turn
}

func (t *activeTurn) onPaced(chunk pacing.Chunk) {
	t.mu.Lock()
	round := t.round
	t.mu.Unlock()
	if round == nil {
		return
	}

	text, reasoning := round.display(chunk)
	t.emit(events.NewAssistantResponseUpdated(round.messageID, string(chunk.Channel), chunk.Text, text, reasoning, t.eventOpts...))
}

func (t *activeTurn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *activeTurn) transition(to TurnState) error {
	t.mu.Lock()
	from := t.state
	if !canTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, to)
	}
	t.state = to
	t.mu.Unlock()

	t.emit(events.NewTurnStateChanged(from.String(), to.String(), t.eventOpts...))
	return nil
}

// beginRound makes round the target of paced updates and restores the base
// pace.
func (t *activeTurn) beginRound(round *roundState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.round = round
	t.frequency = t.pacing.Frequency
	t.balancer.Configure(t.pacing.Duration, t.frequency)
}

// adapt lowers the frequency once the round's visible text crosses a tier.
func (t *activeTurn) adapt(textLength int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frequency := t.pacing.frequencyFor(textLength, t.frequency)
	if frequency == t.frequency {
		return
	}
	t.frequency = frequency
	t.balancer.Configure(t.pacing.Duration, frequency)
	logger.Debug("lowered pacing frequency", "turn_id", t.id, "characters", textLength, "frequency", frequency)
}

func (t *activeTurn) setPacing(config PacingConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pacing = config
	textLength := 0
	if t.round != nil {
		t.round.mu.Lock()
		textLength = t.round.textLength
		t.round.mu.Unlock()
	}
	t.frequency = config.frequencyFor(textLength, config.Frequency)
	t.balancer.Configure(config.Duration, t.frequency)
}
