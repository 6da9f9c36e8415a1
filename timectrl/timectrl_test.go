package timectrl

import (
	"sync"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	done := tc.Start(15 * time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerListenersSeeEveryTick(t *testing.T) {
	start := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Minute, Accelerated)

	var (
		mu   sync.Mutex
		seen []time.Time
	)
	tc.AddListener(func(now time.Time) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, now)
	})

	<-tc.Start(10 * time.Minute)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 10 {
		t.Fatalf("listener called %d times, want 10", len(seen))
	}
	for i, got := range seen {
		want := start.Add(time.Duration(i+1) * time.Minute)
		if !got.Equal(want) {
			t.Fatalf("tick %d = %v, want %v", i, got, want)
		}
	}
}

func TestTimeControllerZeroTickStopsImmediately(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 0, Accelerated)

	select {
	case <-tc.Start(0):
	case <-time.After(time.Second):
		t.Fatalf("Start with zero tick did not return")
	}
	if got := tc.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
}

func TestOffsetClockSync(t *testing.T) {
	base := FixedClock(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	clock := NewOffsetClock(base)

	if _, synced := clock.Offset(); synced {
		t.Fatalf("new clock reports synced")
	}
	if got := clock.Now(); !got.Equal(time.Time(base)) {
		t.Fatalf("Now() before sync = %v, want %v", got, time.Time(base))
	}

	client := time.Date(2025, time.June, 1, 0, 0, 30, 0, time.UTC)
	offset := clock.Sync(client)
	if offset != 30*time.Second {
		t.Fatalf("Sync offset = %v, want 30s", offset)
	}
	if got := clock.Now(); !got.Equal(client) {
		t.Fatalf("Now() after sync = %v, want %v", got, client)
	}
	if got, synced := clock.Offset(); !synced || got != 30*time.Second {
		t.Fatalf("Offset() = (%v, %v), want (30s, true)", got, synced)
	}
}

func TestOffsetClockFollowsBase(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	base := NewTimeController(start, time.Second, Accelerated)
	clock := NewOffsetClock(base)
	clock.Sync(start.Add(-time.Hour))

	base.SetTime(start.Add(10 * time.Second))

	want := start.Add(-time.Hour + 10*time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestNewOffsetClockDefaultsToSystemClock(t *testing.T) {
	clock := NewOffsetClock(nil)
	before := time.Now().Add(-time.Second)
	if got := clock.Now(); got.Before(before) {
		t.Fatalf("Now() = %v, want close to wall clock", got)
	}
}
