package orchestration

import (
	"github.com/koscakluka/ema-chat/core/events"
)

// EventHandler receives every event of every turn. Paced response updates
// are delivered from the balancer goroutine, so handlers must be safe for
// concurrent use and should not block.
type EventHandler func(events.Event)

type eventEmitter []EventHandler

func (handlers eventEmitter) emit(event events.Event) {
	for _, handler := range handlers {
		handlers.deliver(handler, event)
	}
}

func (eventEmitter) deliver(handler EventHandler, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event handler panicked", "kind", event.Kind(), "panic", recovered)
		}
	}()
	handler(event)
}
