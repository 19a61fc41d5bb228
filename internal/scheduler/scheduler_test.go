package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testRegions() []model.Region {
	return []model.Region{
		{Name: "alpha", Bounds: []model.BoundingBox{{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}}},
		{Name: "bravo", Bounds: []model.BoundingBox{{MinLat: 20, MinLon: 20, MaxLat: 30, MaxLon: 30}}},
		{Name: "charlie", Bounds: []model.BoundingBox{{MinLat: 40, MinLon: 40, MaxLat: 50, MaxLon: 50}}},
	}
}

// recorder collects rotation events under a lock.
type recorder struct {
	mu      sync.Mutex
	changes []string
	cycles  []int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		RegionChange: func(region model.Region) {
			r.mu.Lock()
			r.changes = append(r.changes, region.Name)
			r.mu.Unlock()
		},
		CycleComplete: func(cycles int) {
			r.mu.Lock()
			r.cycles = append(r.cycles, cycles)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]string, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...), append([]int(nil), r.cycles...)
}

func TestScheduler_RequiresRegions(t *testing.T) {
	t.Parallel()

	_, err := New(nil, time.Hour, true, testLogger(), Handlers{})
	require.Error(t, err)
}

func TestScheduler_RotateNowAdvancesAndWraps(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s, err := New(testRegions(), time.Hour, false, testLogger(), rec.handlers())
	require.NoError(t, err)

	ctx := context.Background()
	s.Start(ctx, true)
	defer s.Stop()

	assert.Equal(t, "bravo", s.RotateNow(ctx).Name)
	assert.Equal(t, "charlie", s.RotateNow(ctx).Name)
	assert.Equal(t, "alpha", s.RotateNow(ctx).Name)

	changes, cycles := rec.snapshot()
	assert.Equal(t, []string{"bravo", "charlie", "alpha"}, changes)
	// Cycle completes only on the wrap back to the first region.
	assert.Equal(t, []int{1}, cycles)
}

func TestScheduler_StartEmitsInitialRegionUnlessSkipped(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s, err := New(testRegions(), time.Hour, false, testLogger(), rec.handlers())
	require.NoError(t, err)
	s.Start(context.Background(), false)
	defer s.Stop()

	changes, _ := rec.snapshot()
	assert.Equal(t, []string{"alpha"}, changes)

	recSkip := &recorder{}
	sSkip, err := New(testRegions(), time.Hour, false, testLogger(), recSkip.handlers())
	require.NoError(t, err)
	sSkip.Start(context.Background(), true)
	defer sSkip.Stop()

	changes, _ = recSkip.snapshot()
	assert.Empty(t, changes)
}

func TestScheduler_AutoRotationTicks(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s, err := New(testRegions(), 30*time.Millisecond, true, testLogger(), rec.handlers())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, true)
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, cycles := rec.snapshot()
		return len(cycles) >= 1
	}, 3*time.Second, 10*time.Millisecond, "rotation never completed a full cycle")

	changes, _ := rec.snapshot()
	require.GreaterOrEqual(t, len(changes), 3)
	assert.Equal(t, []string{"bravo", "charlie", "alpha"}, changes[:3])
}

func TestScheduler_FocusOnLocation(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s, err := New(testRegions(), time.Hour, false, testLogger(), rec.handlers())
	require.NoError(t, err)

	ctx := context.Background()
	s.Start(ctx, true)
	defer s.Stop()

	region, ok := s.FocusOnLocation(ctx, 25, 25)
	require.True(t, ok)
	assert.Equal(t, "bravo", region.Name)
	assert.Equal(t, "bravo", s.Current().Name)

	// Rotation resumes from the focused region's slot.
	assert.Equal(t, "charlie", s.RotateNow(ctx).Name)

	_, ok = s.FocusOnLocation(ctx, -60, -60)
	assert.False(t, ok)
}

func TestScheduler_Status(t *testing.T) {
	t.Parallel()
	s, err := New(testRegions(), 4*time.Hour, true, testLogger(), Handlers{})
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, "alpha", status.Current)
	assert.Equal(t, "bravo", status.Next)
	assert.Equal(t, 0, status.Index)
	assert.Equal(t, 3, status.Total)
	assert.True(t, status.AutoRotate)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, status.Regions)
	// Not started yet: no scheduled rotation.
	assert.True(t, status.NextRotation.IsZero())

	ctx := context.Background()
	s.Start(ctx, true)
	defer s.Stop()
	assert.False(t, s.Status().NextRotation.IsZero())
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	s, err := New(testRegions(), time.Hour, true, testLogger(), Handlers{})
	require.NoError(t, err)

	s.Start(context.Background(), true)
	s.Stop()
	s.Stop()
}
