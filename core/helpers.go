package orchestration

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

const partialPersistTimeout = 5 * time.Second

// onContextDone calls hook once ctx is done unless stop is called first.
// stop waits for a hook that already started.
func onContextDone(ctx context.Context, hook func()) (stop func()) {
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
			hook()
		case <-release:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(release) })
		<-finished
	}
}

// guarded runs the named step and turns a panic inside it into an error.
func guarded(name string, step func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("recovered from panic", "step", name, "panic", recovered, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s panicked: %v", name, recovered)
		}
	}()

	if err = step(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// detachedContext outlives the cancellation of ctx for at most
// partialPersistTimeout.
func detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), partialPersistTimeout)
}
