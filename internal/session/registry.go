package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

// EventType indicates what happened to a session.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventStationUpdated
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventStationUpdated:
		return "station_updated"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when a session changes.
type Event struct {
	Type      EventType
	SessionID string
	// Station is set for EventStationUpdated.
	Station *model.Station
}

// Publisher receives every successfully computed result.
type Publisher interface {
	Publish(sessionID string, result core.AttitudeResult) int
}

// MetricsRecorder is driven by Open, Close and station updates.
type MetricsRecorder interface {
	SetActiveSessions(n int)
	IncStationUpdates()
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets where computed results go.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithBaseClock sets the clock new session clocks are offset from.
func WithBaseClock(c timectrl.Clock) Option {
	return func(r *Registry) { r.base = c }
}

// Registry tracks the live sessions.
type Registry struct {
	publisher Publisher
	metrics   MetricsRecorder
	base      timectrl.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
	subs     map[int]func(Event)
	nextSub  int
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		base:     timectrl.SystemClock{},
		sessions: make(map[string]*Session),
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates and registers a new session.
func (r *Registry) Open() *Session {
	s := &Session{
		id:       uuid.NewString(),
		openedAt: r.base.Now(),
		clock:    timectrl.NewOffsetClock(r.base),
		registry: r,
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	count := len(r.sessions)
	subs := r.snapshotSubs()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(count)
	}
	notify(subs, Event{Type: EventOpened, SessionID: s.id})
	return s
}

// Close removes the session with id. It reports whether the session existed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	subs := r.snapshotSubs()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(count)
	}
	notify(subs, Event{Type: EventClosed, SessionID: id})
	return true
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all live sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Subscribe registers a callback for session events. It returns an
// unsubscribe function. Callbacks run on the goroutine that caused the
// event, outside the registry lock.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) stationUpdated(id string, st model.Station) {
	if r.metrics != nil {
		r.metrics.IncStationUpdates()
	}
	r.mu.RLock()
	subs := r.snapshotSubs()
	r.mu.RUnlock()
	notify(subs, Event{Type: EventStationUpdated, SessionID: id, Station: &st})
}

func (r *Registry) publish(id string, result core.AttitudeResult) {
	if r.publisher != nil {
		r.publisher.Publish(id, result)
	}
}

// snapshotSubs copies the subscriber set; the caller holds r.mu.
func (r *Registry) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
