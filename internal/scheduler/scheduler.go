// Package scheduler rotates the feed focus through an ordered list of
// named regions so a single subscription eventually covers the globe.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
	"github.com/snekkenull/AISight-sub001/internal/metrics"
)

// Handlers receive rotation events. RegionChange fires with the region
// now in focus; CycleComplete fires each time the rotation wraps back
// to the first region, with the completed cycle count.
type Handlers struct {
	RegionChange  func(model.Region)
	CycleComplete func(cycles int)
}

// Status is a point-in-time view of the rotation.
type Status struct {
	Current      string        `json:"current"`
	Next         string        `json:"next"`
	Index        int           `json:"index"`
	Total        int           `json:"total"`
	Cycles       int           `json:"cycles"`
	AutoRotate   bool          `json:"autoRotate"`
	Interval     time.Duration `json:"-"`
	NextRotation time.Time     `json:"nextRotation,omitempty"`
	Regions      []string      `json:"regions"`
}

type Scheduler struct {
	logger   *slog.Logger
	regions  []model.Region
	interval time.Duration
	auto     bool
	handlers Handlers

	mu           sync.Mutex
	index        int
	cycles       int
	timer        *time.Timer
	nextRotation time.Time
	running      bool
}

func New(regions []model.Region, interval time.Duration, autoRotate bool, logger *slog.Logger, handlers Handlers) (*Scheduler, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one region")
	}
	return &Scheduler{
		logger:   logger.With("component", "scheduler"),
		regions:  regions,
		interval: interval,
		auto:     autoRotate,
		handlers: handlers,
	}, nil
}

// Start begins rotation from the first region. With skipInitialEmit the
// current region is assumed already applied and no region-changed event
// fires until the first rotation.
func (s *Scheduler) Start(ctx context.Context, skipInitialEmit bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	current := s.regions[s.index]
	s.armTimerLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("rotation started",
		"region", current.Name,
		"regions", len(s.regions),
		"interval", s.interval.String(),
		"auto", s.auto)

	if !skipInitialEmit {
		s.emitRegionChange(current)
	}
}

// Stop cancels the pending rotation. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.running = false
}

// RotateNow advances to the next region immediately and restarts the
// rotation interval from now.
func (s *Scheduler) RotateNow(ctx context.Context) model.Region {
	return s.advance(ctx)
}

// FocusOnLocation jumps to the first region containing the coordinates
// and restarts the interval. Rotation continues from that region's slot
// in the order. Returns false when no region contains the location.
func (s *Scheduler) FocusOnLocation(ctx context.Context, lat, lon float64) (model.Region, bool) {
	s.mu.Lock()
	target := -1
	for i, region := range s.regions {
		if region.ContainsLocation(lat, lon) {
			target = i
			break
		}
	}
	if target == -1 {
		s.mu.Unlock()
		return model.Region{}, false
	}
	s.index = target
	region := s.regions[target]
	s.armTimerLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("focus moved", "region", region.Name, "lat", lat, "lon", lon)
	s.emitRegionChange(region)
	return region, true
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.regions))
	for i, r := range s.regions {
		names[i] = r.Name
	}
	next := (s.index + 1) % len(s.regions)
	status := Status{
		Current:    s.regions[s.index].Name,
		Next:       s.regions[next].Name,
		Index:      s.index,
		Total:      len(s.regions),
		Cycles:     s.cycles,
		AutoRotate: s.auto,
		Interval:   s.interval,
		Regions:    names,
	}
	if s.running && s.auto {
		status.NextRotation = s.nextRotation
	}
	return status
}

func (s *Scheduler) Current() model.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regions[s.index]
}

func (s *Scheduler) advance(ctx context.Context) model.Region {
	s.mu.Lock()
	s.index = (s.index + 1) % len(s.regions)
	region := s.regions[s.index]
	wrapped := s.index == 0
	if wrapped {
		s.cycles++
	}
	cycles := s.cycles
	s.armTimerLocked(ctx)
	s.mu.Unlock()

	metrics.SchedulerRotations.Inc()
	s.logger.Info("rotated", "region", region.Name, "cycles", cycles)

	s.emitRegionChange(region)
	if wrapped {
		metrics.SchedulerCyclesCompleted.Inc()
		if s.handlers.CycleComplete != nil {
			s.handlers.CycleComplete(cycles)
		}
	}
	return region
}

// armTimerLocked (re)schedules the next automatic rotation. Callers
// hold s.mu.
func (s *Scheduler) armTimerLocked(ctx context.Context) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.auto || !s.running {
		return
	}
	s.nextRotation = time.Now().Add(s.interval)
	s.timer = time.AfterFunc(s.interval, func() {
		if ctx.Err() != nil {
			return
		}
		s.advance(ctx)
	})
}

func (s *Scheduler) emitRegionChange(region model.Region) {
	if s.handlers.RegionChange != nil {
		s.handlers.RegionChange(region)
	}
}
