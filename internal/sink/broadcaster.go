// Package sink fans computed attitude results out to any number of
// consumers. Each consumer gets its own buffered channel; a consumer that
// falls behind loses results instead of stalling the session that produced
// them.
package sink

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/device-attitude/core"
)

// Record is one published result.
type Record struct {
	// Sequence increases by one per published result, so a consumer can
	// tell how many it missed.
	Sequence    uint64
	SessionID   string
	Result      core.AttitudeResult
	PublishedAt time.Time
}

// Metrics is the subset of observability.PipelineCollector the broadcaster
// reports to.
type Metrics interface {
	SetSubscribers(count int)
	IncDropped()
}

// Broadcaster delivers every published Record to every subscriber.
type Broadcaster struct {
	buffer  int
	metrics Metrics

	mu          sync.Mutex
	subscribers map[string]chan Record
	sequence    uint64
	closed      bool
}

// NewBroadcaster returns a broadcaster whose subscribers buffer up to buffer
// records. metrics may be nil.
func NewBroadcaster(buffer int, metrics Metrics) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		buffer:      buffer,
		metrics:     metrics,
		subscribers: make(map[string]chan Record),
	}
}

// Subscribe registers a consumer. The channel is closed by the returned
// cancel function or by Close; cancel is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Record, func()) {
	id := uuid.NewString()
	ch := make(chan Record, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch
	count := len(b.subscribers)
	b.mu.Unlock()
	b.reportSubscribers(count)

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	count := len(b.subscribers)
	b.mu.Unlock()
	if ok {
		b.reportSubscribers(count)
	}
}

// Publish stamps result with the next sequence number and hands it to every
// subscriber without blocking. It returns the number of subscribers that
// received it.
func (b *Broadcaster) Publish(sessionID string, result core.AttitudeResult) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	b.sequence++
	rec := Record{
		Sequence:    b.sequence,
		SessionID:   sessionID,
		Result:      result,
		PublishedAt: time.Now().UTC(),
	}

	delivered := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- rec:
			delivered++
		default:
			// full buffer: drop for this subscriber only
			if b.metrics != nil {
				b.metrics.IncDropped()
			}
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored and
// later subscriptions receive an already-closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	b.reportSubscribers(0)
}

func (b *Broadcaster) reportSubscribers(count int) {
	if b.metrics != nil {
		b.metrics.SetSubscribers(count)
	}
}
