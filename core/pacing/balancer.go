// Package pacing smooths a bursty producer into evenly paced chunks.
//
// A Balancer buffers tagged text and drains it from a single goroutine in
// batches of batchSize grapheme clusters, sleeping duration/frequency between
// batches. Because reasoning and visible text share one ordered queue, the two
// can never be emitted out of their relative order.
package pacing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"
)

const (
	DefaultDuration  = 200 * time.Millisecond
	DefaultFrequency = 10
)

type Channel string

const (
	ChannelReasoning Channel = "reasoning"
	ChannelText      Channel = "text"
)

// Chunk is a single paced emission. Text never spans two channels.
type Chunk struct {
	Channel Channel
	Text    string
}

type segment struct {
	channel   Channel
	graphemes []string
}

type Balancer struct {
	mu sync.Mutex

	emit   func(Chunk)
	emitMu sync.Mutex

	duration  time.Duration
	frequency int
	batchSize int

	queue    []segment
	buffered int

	running bool
	// stop is closed by Cancel to abandon the active drain loop.
	stop chan struct{}
	// idle is closed exactly once when the active drain loop finishes or is
	// cancelled. nil while no loop runs.
	idle chan struct{}
}

type Option func(*Balancer)

// WithPace sets the initial duration and frequency.
func WithPace(duration time.Duration, frequency int) Option {
	return func(b *Balancer) {
		b.duration, b.frequency = clampPace(duration, frequency)
	}
}

// New creates a balancer that hands every paced chunk to emit. emit is called
// from the drain goroutine and never concurrently with itself.
func New(emit func(Chunk), opts ...Option) *Balancer {
	if emit == nil {
		emit = func(Chunk) {}
	}

	b := &Balancer{
		emit:      emit,
		duration:  DefaultDuration,
		frequency: DefaultFrequency,
		batchSize: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Configure changes the pace. The batch size is recomputed from what is
// currently buffered; a drain in progress picks the new values up on its next
// step.
func (b *Balancer) Configure(duration time.Duration, frequency int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.duration, b.frequency = clampPace(duration, frequency)
	b.recomputeBatchSize()
}

// Pace returns the current duration and frequency.
func (b *Balancer) Pace() (time.Duration, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.duration, b.frequency
}

// Add appends text to the queue and starts a drain loop if none is running.
// It never blocks on the drain.
func (b *Balancer) Add(channel Channel, text string) {
	if text == "" {
		return
	}
	graphemes := splitGraphemes(text)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.queue); n > 0 && b.queue[n-1].channel == channel {
		b.queue[n-1].graphemes = append(b.queue[n-1].graphemes, graphemes...)
	} else {
		b.queue = append(b.queue, segment{channel: channel, graphemes: graphemes})
	}
	b.buffered += len(graphemes)
	b.recomputeBatchSize()

	if !b.running {
		b.running = true
		b.stop = make(chan struct{})
		b.idle = make(chan struct{})
		go b.drain(b.stop, b.idle)
	}
}

// Wait blocks until the buffer is drained and no loop is running, the
// balancer is cancelled, or ctx is done. It returns immediately when idle.
func (b *Balancer) Wait(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel drops everything still buffered without emitting it and releases
// all waiters. No chunk is emitted once Cancel returns, so it must not be
// called from emit. The balancer stays usable.
func (b *Balancer) Cancel() {
	b.mu.Lock()
	b.queue = nil
	b.buffered = 0
	b.recomputeBatchSize()

	if b.running {
		close(b.stop)
		close(b.idle)
		b.running = false
		b.stop = nil
		b.idle = nil
	}
	b.mu.Unlock()

	// Wait out an emission that was already in flight.
	b.emitMu.Lock()
	b.emitMu.Unlock()
}

// Idle reports whether no drain loop is running.
func (b *Balancer) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return !b.running
}

// Buffered returns the number of grapheme clusters waiting to be emitted.
func (b *Balancer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buffered
}

func (b *Balancer) drain(stop, idle chan struct{}) {
	for {
		b.mu.Lock()
		if isClosed(stop) {
			b.mu.Unlock()
			return
		}
		if b.buffered == 0 {
			b.running = false
			b.stop = nil
			b.idle = nil
			close(idle)
			b.mu.Unlock()
			return
		}
		chunk := b.take()
		b.mu.Unlock()

		b.emitMu.Lock()
		if !isClosed(stop) {
			b.emit(chunk)
		}
		b.emitMu.Unlock()

		b.mu.Lock()
		empty := b.buffered == 0
		interval := b.interval()
		b.mu.Unlock()

		if empty || interval <= 0 {
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// take removes the next batch from the head segment. Must hold mu.
func (b *Balancer) take() Chunk {
	head := &b.queue[0]
	channel := head.channel

	n := min(b.batchSize, len(head.graphemes))
	text := strings.Join(head.graphemes[:n], "")
	head.graphemes = head.graphemes[n:]
	if len(head.graphemes) == 0 {
		b.queue = b.queue[1:]
	}
	b.buffered -= n

	return Chunk{Channel: channel, Text: text}
}

// Must hold mu.
func (b *Balancer) recomputeBatchSize() {
	b.batchSize = max(1, (b.buffered+b.frequency-1)/b.frequency)
}

// Must hold mu.
func (b *Balancer) interval() time.Duration {
	return b.duration / time.Duration(b.frequency)
}

func clampPace(duration time.Duration, frequency int) (time.Duration, int) {
	return max(0, duration), max(1, frequency)
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func splitGraphemes(text string) []string {
	graphemes := make([]string, 0, len(text))
	state := -1
	for len(text) > 0 {
		var cluster string
		cluster, text, _, state = uniseg.FirstGraphemeClusterInString(text, state)
		graphemes = append(graphemes, cluster)
	}
	return graphemes
}

// Length returns the number of grapheme clusters in text.
func Length(text string) int {
	return uniseg.GraphemeClusterCount(text)
}
