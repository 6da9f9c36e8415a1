package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/earth"
	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

var testNow = time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	results map[string][]core.AttitudeResult
}

func (p *recordingPublisher) Publish(id string, r core.AttitudeResult) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = make(map[string][]core.AttitudeResult)
	}
	p.results[id] = append(p.results[id], r)
	return 1
}

func (p *recordingPublisher) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results[id])
}

type recordingMetrics struct {
	mu       sync.Mutex
	active   int
	stations int
}

func (m *recordingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func (m *recordingMetrics) IncStationUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations++
}

func newPipeline(t *testing.T) *core.Pipeline {
	t.Helper()
	p, err := core.NewPipeline(earth.Model{}, core.WithClock(timectrl.FixedClock(testNow)))
	require.NoError(t, err)
	return p
}

func newRegistry(pub Publisher, metrics MetricsRecorder) *Registry {
	return NewRegistry(
		WithPublisher(pub),
		WithMetrics(metrics),
		WithBaseClock(timectrl.FixedClock(testNow)),
	)
}

func TestOpenGetClose(t *testing.T) {
	metrics := &recordingMetrics{}
	reg := newRegistry(nil, metrics)

	a := reg.Open()
	b := reg.Open()
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, 2, reg.Len())
	require.Equal(t, 2, metrics.active)

	got, ok := reg.Get(a.ID())
	require.True(t, ok)
	require.Same(t, a, got)

	require.True(t, reg.Close(a.ID()))
	require.False(t, reg.Close(a.ID()))
	_, ok = reg.Get(a.ID())
	require.False(t, ok)
	require.Equal(t, 1, metrics.active)
}

func TestOrientBeforePositionFails(t *testing.T) {
	pub := &recordingPublisher{}
	reg := newRegistry(pub, nil)
	s := reg.Open()

	_, err := s.Orient(newPipeline(t), model.OrientationSample{}, core.FrameLocalHorizon, nil)
	require.True(t, errors.Is(err, core.ErrMissingStation), "got %v", err)
	require.Equal(t, 0, pub.count(s.ID()))
}

func TestUpdateStationValidatesAndNotifies(t *testing.T) {
	metrics := &recordingMetrics{}
	reg := newRegistry(nil, metrics)

	var events []Event
	unsubscribe := reg.Subscribe(func(e Event) { events = append(events, e) })

	s := reg.Open()

	_, err := s.UpdateStation(model.PositionSample{LatitudeDeg: 91})
	require.ErrorIs(t, err, core.ErrInvalidSample)
	require.Nil(t, s.Station())

	st, err := s.UpdateStation(model.PositionSample{LatitudeDeg: 35, LongitudeDeg: 139, AltitudeKm: 0.04})
	require.NoError(t, err)
	require.Equal(t, testNow, st.UpdatedAt)
	require.Equal(t, 1, metrics.stations)

	// a rejected update keeps the previous station
	_, err = s.UpdateStation(model.PositionSample{LatitudeDeg: 0, LongitudeDeg: math.NaN()})
	require.Error(t, err)
	require.Equal(t, 35.0, s.Station().LatitudeDeg)

	unsubscribe()
	reg.Close(s.ID())

	require.Len(t, events, 2)
	require.Equal(t, EventOpened, events[0].Type)
	require.Equal(t, EventStationUpdated, events[1].Type)
	require.Equal(t, s.ID(), events[1].SessionID)
	require.Equal(t, 139.0, events[1].Station.LongitudeDeg)
}

func TestStationReturnsCopy(t *testing.T) {
	s := newRegistry(nil, nil).Open()
	_, err := s.UpdateStation(model.PositionSample{LatitudeDeg: 10, LongitudeDeg: 20})
	require.NoError(t, err)

	st := s.Station()
	st.LatitudeDeg = -80
	require.Equal(t, 10.0, s.Station().LatitudeDeg)
}

func TestOrientPublishesResult(t *testing.T) {
	pub := &recordingPublisher{}
	reg := newRegistry(pub, nil)
	s := reg.Open()
	_, err := s.UpdateStation(model.PositionSample{LatitudeDeg: 0, LongitudeDeg: 0})
	require.NoError(t, err)

	res, err := s.Orient(newPipeline(t), model.OrientationSample{}, core.FrameLocalHorizon, nil)
	require.NoError(t, err)
	full, ok := res.Attitude.(core.FullAttitude)
	require.True(t, ok)
	require.True(t, full.Q.Equivalent(core.IdentityQuaternion, 1e-9), "q = %+v", full.Q)
	require.Equal(t, 1, pub.count(s.ID()))

	_, err = s.Orient(newPipeline(t), model.OrientationSample{}, core.FrameUnknown, nil)
	require.ErrorIs(t, err, core.ErrUnknownFrame)
	require.Equal(t, 1, pub.count(s.ID()))
}

func TestSyncClockDrivesComputedAt(t *testing.T) {
	s := newRegistry(nil, nil).Open()
	_, err := s.UpdateStation(model.PositionSample{})
	require.NoError(t, err)

	client := testNow.Add(90 * time.Minute)
	offset := s.SyncClock(model.TimeSample{UnixMillis: client.UnixMilli()})
	require.Equal(t, 90*time.Minute, offset)

	res, err := s.Orient(newPipeline(t), model.OrientationSample{}, core.FrameInertial, nil)
	require.NoError(t, err)
	require.True(t, res.ComputedAt.Equal(client), "ComputedAt = %v", res.ComputedAt)

	snap := s.Snapshot()
	require.True(t, snap.ClockSynced)
	require.Equal(t, 90*time.Minute, snap.ClockOffset)
}

func TestSessionStationPosition(t *testing.T) {
	p := newPipeline(t)
	s := newRegistry(nil, nil).Open()

	_, err := s.StationPosition(p, core.FrameEarthFixed)
	require.ErrorIs(t, err, core.ErrMissingStation)

	_, err = s.UpdateStation(model.PositionSample{})
	require.NoError(t, err)

	enu, err := s.StationPosition(p, core.FrameLocalHorizon)
	require.NoError(t, err)
	require.Equal(t, core.Vec3{}, enu)

	ecef, err := s.StationPosition(p, core.FrameEarthFixed)
	require.NoError(t, err)
	require.InDelta(t, earth.WGS84SemiMajorKm, ecef.X, 1e-9)

	eci, err := s.StationPosition(p, core.FrameInertial)
	require.NoError(t, err)
	require.InDelta(t, earth.WGS84SemiMajorKm, eci.Norm(), 1e-6)
}

func TestListIsSortedAndIncludesStation(t *testing.T) {
	reg := newRegistry(nil, nil)
	for i := 0; i < 3; i++ {
		s := reg.Open()
		_, err := s.UpdateStation(model.PositionSample{LatitudeDeg: float64(i)})
		require.NoError(t, err)
	}

	list := reg.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		require.Less(t, list[i-1].ID, list[i].ID, "same OpenedAt sorts by ID")
	}
	for _, snap := range list {
		require.NotNil(t, snap.Station)
	}
}

func TestSessionsRunConcurrently(t *testing.T) {
	pub := &recordingPublisher{}
	metrics := &recordingMetrics{}
	reg := newRegistry(pub, metrics)
	p := newPipeline(t)

	const sessions, perSession = 8, 25
	var wg sync.WaitGroup
	ids := make([]string, sessions)
	for i := 0; i < sessions; i++ {
		s := reg.Open()
		ids[i] = s.ID()
		wg.Add(2)
		go func(s *Session, lat float64) {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				if _, err := s.UpdateStation(model.PositionSample{LatitudeDeg: lat, LongitudeDeg: float64(j)}); err != nil {
					panic(fmt.Sprintf("UpdateStation: %v", err))
				}
			}
		}(s, float64(i))
		go func(s *Session) {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				_, _ = s.Orient(p, model.OrientationSample{CompassHeadingDeg: float64(j)}, core.FrameEarthFixed, nil)
			}
		}(s)
	}
	wg.Wait()

	require.Equal(t, sessions, metrics.active)
	require.Equal(t, sessions*perSession, metrics.stations)
	for i, id := range ids {
		st := reg.sessions[id].Station()
		require.NotNil(t, st)
		require.Equal(t, float64(i), st.LatitudeDeg)
		require.Equal(t, float64(perSession-1), st.LongitudeDeg)
	}
}

func TestEventTypeString(t *testing.T) {
	require.Equal(t, "opened", EventOpened.String())
	require.Equal(t, "closed", EventClosed.String())
	require.Equal(t, "station_updated", EventStationUpdated.String())
	require.Equal(t, "unknown", EventType(9).String())
}
