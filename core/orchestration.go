// Package orchestration runs conversation turns: it streams model output
// through a pacing balancer to the registered event handlers, executes the
// tool calls the model makes and re-invokes the model until the turn is
// complete.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrBackendStream     = errors.New("backend stream failed")
	ErrEmptyResponse     = errors.New("backend returned an empty response")
	ErrAttachment        = errors.New("attachment could not be processed")
	ErrTurnInProgress    = errors.New("a turn is already in progress for this conversation")
	ErrMaxRoundsExceeded = errors.New("turn exceeded the round limit")
	ErrNoBackend         = errors.New("no backend configured")
)

type TurnResult struct {
	TurnID         string
	ConversationID string
	State          TurnState
	Rounds         int
	ToolCalls      int
	Usage          llms.Usage
	// Text is the visible text of the last round. For a cancelled turn it is
	// what had been displayed.
	Text     string
	Duration time.Duration
}

type Orchestrator struct {
	mu sync.Mutex

	llm            llm
	store          conversations.Store
	builder        *conversations.Builder
	registry       *tools.Registry
	coordinator    *tools.Coordinator
	handlers       eventEmitter
	pacing         PacingConfig
	maxRounds      int
	maxOutputBytes int

	// turns holds the running turn of each conversation.
	turns map[string]*activeTurn
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:     conversations.NewMemoryStore(),
		pacing:    DefaultPacingConfig(),
		maxRounds: DefaultMaxRounds,
		turns:     map[string]*activeTurn{},
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.builder == nil {
		o.builder = conversations.NewBuilder()
	}
	o.coordinator = tools.NewCoordinator(o.registry,
		tools.WithEmitter(o.handlers.emit),
		tools.WithMaxOutputBytes(o.maxOutputBytes),
	)
	return o
}

func (o *Orchestrator) Store() conversations.Store { return o.store }

func (o *Orchestrator) Registry() *tools.Registry { return o.registry }

// NewConversation creates an empty conversation in the configured store.
func (o *Orchestrator) NewConversation(ctx context.Context, title, instructions string) (conversations.Conversation, error) {
	conversation, err := o.store.Create(ctx, conversations.NewConversation(title, instructions))
	if err != nil {
		return conversations.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// SetPacing replaces the pacing configuration. Running turns pick it up
// immediately.
func (o *Orchestrator) SetPacing(config PacingConfig) {
	config = config.normalized()

	o.mu.Lock()
	o.pacing = config
	active := make([]*activeTurn, 0, len(o.turns))
	for _, turn := range o.turns {
		active = append(active, turn)
	}
	o.mu.Unlock()

	for _, turn := range active {
		turn.setPacing(config)
	}
}

// RunTurn appends input to the conversation and runs inference rounds until
// the model stops calling tools. A cancelled turn is not an error: the
// result carries TurnStateCancelled and err is nil.
//
// Only one turn may run per conversation; a concurrent call returns
// ErrTurnInProgress.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID string, input UserInput, opts ...TurnOption) (TurnResult, error) {
	o.mu.Lock()
	runtime := o.llm
	pacingConfig := o.pacing
	settings := turnSettings{maxRounds: o.maxRounds}
	o.mu.Unlock()

	for _, opt := range opts {
		opt(&settings)
	}

	if runtime.backend == nil {
		return TurnResult{ConversationID: conversationID}, ErrNoBackend
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	turn := newActiveTurn(conversationID, cancel, o.handlers.emit, pacingConfig)
	if err := o.register(turn); err != nil {
		return TurnResult{ConversationID: conversationID}, err
	}
	defer o.unregister(turn)

	ctx, span := tracer.Start(ctx, "run turn", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("turn.id", turn.id),
	))
	defer span.End()

	// Stop pacing the moment the turn is cancelled, even while blocked on
	// the backend.
	stopHook := onContextDone(ctx, turn.balancer.Cancel)
	defer stopHook()

	run := &turnRun{
		turn:        turn,
		runtime:     runtime,
		settings:    settings,
		store:       o.store,
		builder:     o.builder,
		coordinator: o.coordinator,
		started:     time.Now(),
		result: TurnResult{
			TurnID:         turn.id,
			ConversationID: conversationID,
			State:          TurnStateIdle,
		},
	}
	return run.run(ctx, input)
}

func (o *Orchestrator) register(turn *activeTurn) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.turns[turn.conversationID]; exists {
		return fmt.Errorf("%w: %s", ErrTurnInProgress, turn.conversationID)
	}
	o.turns[turn.conversationID] = turn
	return nil
}

func (o *Orchestrator) unregister(turn *activeTurn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.turns[turn.conversationID] == turn {
		delete(o.turns, turn.conversationID)
	}
}
