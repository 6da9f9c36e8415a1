// Package session keeps the per-connection state an orientation needs: the
// observer's station and the client's clock. Each Session serialises its
// own updates and computations; different sessions never share a lock.
package session

import (
	"sync"
	"time"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

// Session is the state owned by one client connection.
type Session struct {
	id       string
	openedAt time.Time
	clock    *timectrl.OffsetClock
	registry *Registry

	mu      sync.Mutex
	station *model.Station
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OpenedAt returns when the session was opened.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Clock returns the session clock, which follows the client's time_update
// messages once one has arrived.
func (s *Session) Clock() timectrl.Clock { return s.clock }

// Station returns a copy of the current station, or nil before the first
// position update.
func (s *Session) Station() *model.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.station == nil {
		return nil
	}
	st := *s.station
	return &st
}

// UpdateStation validates p and replaces the station with it. A rejected
// update leaves the previous station in place.
func (s *Session) UpdateStation(p model.PositionSample) (model.Station, error) {
	st := p.Station(s.clock.Now())
	if err := core.ValidateStation(st); err != nil {
		return model.Station{}, err
	}

	s.mu.Lock()
	s.station = &st
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.stationUpdated(s.id, st)
	}
	return st, nil
}

// SyncClock aligns the session clock with the client's reading and returns
// the resulting offset from server time.
func (s *Session) SyncClock(ts model.TimeSample) time.Duration {
	return s.clock.Sync(ts.Time())
}

// Orient computes the attitude of sample against the session's station and
// clock. Successful results are handed to the registry's publisher.
func (s *Session) Orient(p *core.Pipeline, sample model.OrientationSample, frame core.ReferenceFrame, declinationRad *float64) (core.AttitudeResult, error) {
	s.mu.Lock()
	result, err := p.Compute(core.Request{
		Sample:         sample,
		Station:        s.station,
		Frame:          frame,
		DeclinationRad: declinationRad,
		Clock:          s.clock,
	})
	s.mu.Unlock()
	if err != nil {
		return core.AttitudeResult{}, err
	}

	if s.registry != nil {
		s.registry.publish(s.id, result)
	}
	return result, nil
}

// StationPosition returns the session's station position in frame at the
// session clock's current time.
func (s *Session) StationPosition(p *core.Pipeline, frame core.ReferenceFrame) (core.Vec3, error) {
	station := s.Station()
	return p.StationPositionAt(station, frame, s.clock.Now())
}

// Snapshot is a read-only view of a session for listings.
type Snapshot struct {
	ID          string
	OpenedAt    time.Time
	Station     *model.Station
	ClockOffset time.Duration
	ClockSynced bool
}

// Snapshot returns the current view of s.
func (s *Session) Snapshot() Snapshot {
	offset, synced := s.clock.Offset()
	return Snapshot{
		ID:          s.id,
		OpenedAt:    s.openedAt,
		Station:     s.Station(),
		ClockOffset: offset,
		ClockSynced: synced,
	}
}
