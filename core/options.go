package orchestration

import (
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/tools"
)

const DefaultMaxRounds = 16

type OrchestratorOption func(*Orchestrator)

func WithBackend(backend llms.Backend) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.set(backend) }
}

func WithModel(model string) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.model = model }
}

// WithCapabilities describes what the configured model accepts. Tools are
// only offered, and images only forwarded, when the capabilities allow it.
func WithCapabilities(caps llms.Capabilities) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.caps = caps }
}

// WithInstructions sets the default system instructions, used for
// conversations that carry none of their own.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.instructions = instructions }
}

func WithMaxTokens(maxTokens int) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.maxTokens = maxTokens }
}

func WithStore(store conversations.Store) OrchestratorOption {
	return func(o *Orchestrator) {
		if store != nil {
			o.store = store
		}
	}
}

func WithBuilder(builder *conversations.Builder) OrchestratorOption {
	return func(o *Orchestrator) {
		if builder != nil {
			o.builder = builder
		}
	}
}

func WithToolRegistry(registry *tools.Registry) OrchestratorOption {
	return func(o *Orchestrator) { o.registry = registry }
}

// WithEventHandler registers handler for every turn event. Handlers
// registered more than once all receive every event, in registration order.
func WithEventHandler(handler EventHandler) OrchestratorOption {
	return func(o *Orchestrator) {
		if handler != nil {
			o.handlers = append(o.handlers, handler)
		}
	}
}

func WithPacing(config PacingConfig) OrchestratorOption {
	return func(o *Orchestrator) { o.pacing = config.normalized() }
}

// WithMaxRounds caps the inference rounds of a turn. Non-positive values
// keep DefaultMaxRounds.
func WithMaxRounds(rounds int) OrchestratorOption {
	return func(o *Orchestrator) {
		if rounds > 0 {
			o.maxRounds = rounds
		}
	}
}

// WithMaxOutputBytes sets the size above which tool output is truncated.
func WithMaxOutputBytes(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxOutputBytes = n }
}

// UserInput is what the user submits to start a turn. An input without text
// and attachments continues the conversation as it is.
type UserInput struct {
	Text        string
	Attachments []llms.Attachment
}

func (in UserInput) isEmpty() bool {
	return in.Text == "" && len(in.Attachments) == 0
}

type turnSettings struct {
	toolsDisabled bool
	maxRounds     int
	instructions  *string
}

type TurnOption func(*turnSettings)

// WithToolsDisabled runs the turn without offering any tools.
func WithToolsDisabled() TurnOption {
	return func(s *turnSettings) { s.toolsDisabled = true }
}

// WithTurnMaxRounds overrides the round limit for one turn.
func WithTurnMaxRounds(rounds int) TurnOption {
	return func(s *turnSettings) {
		if rounds > 0 {
			s.maxRounds = rounds
		}
	}
}

// WithTurnInstructions replaces the system instructions for one turn.
func WithTurnInstructions(instructions string) TurnOption {
	return func(s *turnSettings) { s.instructions = &instructions }
}
