package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pcollard/wordhall/internal/game/mode"
)

func testModeFactory(name string) (mode.Config, error) {
	if name == "bogus" {
		return mode.Config{}, fmt.Errorf("unknown mode %q", name)
	}
	return mode.ForName(name, 10, 1), nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(testTiming(), testLexicon(), testModeFactory, zaptest.NewLogger(t))
	t.Cleanup(reg.Stop)
	return reg
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)

	r1, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)
	r2, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, reg.Count())

	// The mode argument only matters on first creation.
	r3, err := reg.GetOrCreate("R1", "timed")
	require.NoError(t, err)
	assert.Same(t, r1, r3)
	assert.Equal(t, "cooperative", r1.Mode())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	reg := newTestRegistry(t)

	const workers = 16
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			r, err := reg.GetOrCreate("R1", "cooperative")
			require.NoError(t, err)
			rooms[i] = r
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, rooms[0], rooms[i])
	}
	assert.Equal(t, 1, reg.Count())
}

func TestGetOrCreateValidation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.GetOrCreate("", "cooperative")
	assert.Error(t, err)

	_, err = reg.GetOrCreate("R1", "bogus")
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Count())
}

func TestGetUnknownRoom(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRemoveStopsRoom(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)

	reg.Remove("R1")
	assert.Equal(t, 0, reg.Count())
	assert.ErrorIs(t, r.Join("p1", "p1", NewOutbox("p1", 8)), ErrRoomClosed)
}

func TestSweepPurgesEndedRooms(t *testing.T) {
	cfg := testTiming()
	cfg.PurgeGrace = 50 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	reg := NewRegistry(cfg, testLexicon(), testModeFactory, zaptest.NewLogger(t))
	go func() { _ = reg.Start() }()
	t.Cleanup(reg.Stop)

	r, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)

	// Drive the room to its end: the last player leaving is terminal.
	out := NewOutbox("p1", 64)
	require.NoError(t, r.Join("p1", "p1", out))
	require.NoError(t, r.RequestStart("p1"))
	require.NoError(t, r.Leave("p1"))
	waitForPhase(t, r, PhaseEnded)

	// Ended rooms survive the purge grace, then get reaped.
	assert.Equal(t, 1, reg.Count())
	deadline := time.After(2 * time.Second)
	for reg.Count() != 0 {
		select {
		case <-deadline:
			t.Fatalf("ended room was never purged")
		case <-reg.swept:
		}
	}
}

func TestSweepLeavesLiveRoomsAlone(t *testing.T) {
	cfg := testTiming()
	cfg.PurgeGrace = 10 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	reg := NewRegistry(cfg, testLexicon(), testModeFactory, zaptest.NewLogger(t))
	go func() { _ = reg.Start() }()
	t.Cleanup(reg.Stop)

	_, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		select {
		case <-reg.swept:
		case <-time.After(time.Second):
			t.Fatal("sweep never ran")
		}
	}
	assert.Equal(t, 1, reg.Count(), "lobby rooms are not the sweep's business")
}

func TestEndHookFansOut(t *testing.T) {
	reg := newTestRegistry(t)

	results := make(chan Result, 2)
	reg.OnRoomEnded(func(res Result) { results <- res })
	reg.OnRoomEnded(func(res Result) { results <- res })

	r, err := reg.GetOrCreate("R1", "cooperative")
	require.NoError(t, err)
	out := NewOutbox("p1", 64)
	require.NoError(t, r.Join("p1", "p1", out))
	require.NoError(t, r.RequestStart("p1"))
	require.NoError(t, r.Leave("p1"))

	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.Equal(t, "R1", res.RoomID)
			assert.Equal(t, ReasonAllPlayersLeft, res.Reason)
		case <-time.After(2 * time.Second):
			t.Fatal("end hook never fired")
		}
	}
}
