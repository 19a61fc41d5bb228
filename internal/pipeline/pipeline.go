// Package pipeline turns validated feed events into durable rows and
// live-view updates: positions accumulate in a bounded batch flushed by
// size or timer, metadata is upserted immediately. Failures downgrade
// to diagnostics and metrics; the pipeline's public entry points never
// return errors.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/snekkenull/AISight-sub001/internal/config"
	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
	"github.com/snekkenull/AISight-sub001/internal/metrics"
	"github.com/snekkenull/AISight-sub001/internal/store"
	"github.com/snekkenull/AISight-sub001/internal/tracing"
	"github.com/snekkenull/AISight-sub001/internal/validate"
)

// Cache is the live-view write surface the pipeline needs. Failures
// here are never fatal: the durable path does not depend on the cache.
type Cache interface {
	SetPosition(ctx context.Context, p *model.LatestPosition) error
	SetMetadata(ctx context.Context, v *model.Vessel) error
}

// Broadcaster fans out updates and diagnostics to subscribers.
type Broadcaster interface {
	BroadcastAll(typ string, data interface{})
	BroadcastFiltered(typ string, data interface{}, lat, lon float64)
}

type Pipeline struct {
	cfg       config.PipelineConfig
	logger    *slog.Logger
	vessels   store.VesselRepository
	positions store.PositionRepository
	latest    store.LatestPositionRepository
	cache     Cache
	hub       Broadcaster
	health    *Health
	tracer    trace.Tracer

	mu       sync.Mutex
	batch    []model.Position
	flushing bool
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// known caches MMSIs already ensured in the store so the placeholder
	// insert runs once per vessel, not once per report.
	knownMu sync.Mutex
	known   map[string]struct{}
}

func New(
	cfg config.PipelineConfig,
	logger *slog.Logger,
	vessels store.VesselRepository,
	positions store.PositionRepository,
	latest store.LatestPositionRepository,
	cache Cache,
	hub Broadcaster,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger.With("component", "pipeline"),
		vessels:   vessels,
		positions: positions,
		latest:    latest,
		cache:     cache,
		hub:       hub,
		health:    NewHealth(),
		tracer:    tracing.Tracer("pipeline"),
		batch:     make([]model.Position, 0, cfg.BatchSize),
		known:     make(map[string]struct{}),
	}
}

func (p *Pipeline) Health() HealthSnapshot {
	return p.health.Snapshot()
}

// Start begins the flush timer. Idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.flush(ctx, "timer")
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	p.logger.Info("pipeline started",
		"batch_size", p.cfg.BatchSize,
		"flush_interval", p.cfg.FlushInterval.String())
}

// Stop cancels the flush timer and runs one final best-effort flush so
// a drained process loses at most what was in flight. Idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.flush(ctx, "shutdown")
	p.logger.Info("pipeline stopped")
}

// ProcessPosition validates and stages one position report. The cache
// write-through and the broadcast happen immediately; durability comes
// with the next flush.
func (p *Pipeline) ProcessPosition(ctx context.Context, e event.PositionEvent) {
	now := time.Now().UTC()
	if result := validate.Position(e, now); !result.OK() {
		p.reject(event.DiagnosticValidation, "position", e.MMSI, result)
		return
	}
	metrics.PipelineEventsProcessed.WithLabelValues("position").Inc()

	p.ensureVessel(ctx, e.MMSI)

	p.mu.Lock()
	p.batch = append(p.batch, e.Position())
	size := len(p.batch)
	p.mu.Unlock()
	metrics.PipelineBatchSize.Set(float64(size))

	latest := latestFromEvent(e)
	if err := p.cache.SetPosition(ctx, &latest); err != nil {
		metrics.CacheWriteErrors.WithLabelValues("position").Inc()
		p.logger.Warn("cache position write failed", "mmsi", e.MMSI, "error", err)
		p.emitDiagnostic(event.Diagnostic{
			Kind:      event.DiagnosticIngestion,
			Component: "pipeline",
			Stage:     "cache_update",
			MMSI:      e.MMSI,
			Reason:    err.Error(),
			Timestamp: now,
		})
	} else {
		metrics.CacheWrites.WithLabelValues("position").Inc()
	}

	if size >= p.cfg.BatchSize {
		p.flush(ctx, "size")
	}

	p.hub.BroadcastFiltered(string(event.UpdateTypePosition), event.VesselUpdate{
		Type:      event.UpdateTypePosition,
		Data:      e.Position(),
		Timestamp: now,
	}, e.Lat, e.Lon)
}

// ProcessStaticData validates and immediately upserts one metadata
// report. A store failure is terminal for this call only.
func (p *Pipeline) ProcessStaticData(ctx context.Context, e event.StaticDataEvent) {
	now := time.Now().UTC()
	if result := validate.StaticData(e, now); !result.OK() {
		p.reject(event.DiagnosticValidation, "staticData", e.MMSI, result)
		return
	}
	metrics.PipelineEventsProcessed.WithLabelValues("staticData").Inc()

	vessel := e.Vessel()
	stored, err := p.vessels.Upsert(ctx, &vessel)
	if err != nil {
		p.logger.Error("vessel upsert failed", "mmsi", e.MMSI, "error", err)
		p.emitDiagnostic(event.Diagnostic{
			Kind:      event.DiagnosticIngestion,
			Component: "pipeline",
			Stage:     "vessel_upsert",
			MMSI:      e.MMSI,
			Reason:    err.Error(),
			Timestamp: now,
		})
		return
	}
	p.markKnown(e.MMSI)

	if err := p.cache.SetMetadata(ctx, stored); err != nil {
		metrics.CacheWriteErrors.WithLabelValues("metadata").Inc()
		p.logger.Warn("cache metadata write failed", "mmsi", e.MMSI, "error", err)
		p.emitDiagnostic(event.Diagnostic{
			Kind:      event.DiagnosticIngestion,
			Component: "pipeline",
			Stage:     "cache_update",
			MMSI:      e.MMSI,
			Reason:    err.Error(),
			Timestamp: now,
		})
	} else {
		metrics.CacheWrites.WithLabelValues("metadata").Inc()
	}

	p.hub.BroadcastAll(string(event.UpdateTypeStaticData), event.VesselUpdate{
		Type:      event.UpdateTypeStaticData,
		Data:      *stored,
		Timestamp: now,
	})
}

// flush snapshots the batch and writes it out. At most one flush runs
// at a time; a failed batch is discarded, never retried, so one poison
// batch cannot wedge ingestion.
func (p *Pipeline) flush(ctx context.Context, reason string) {
	p.mu.Lock()
	if p.flushing || len(p.batch) == 0 {
		p.mu.Unlock()
		return
	}
	p.flushing = true
	batch := p.batch
	p.batch = make([]model.Position, 0, p.cfg.BatchSize)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.flushing = false
		p.mu.Unlock()
		metrics.PipelineBatchSize.Set(0)
	}()

	ctx, span := p.tracer.Start(ctx, "pipeline.flush",
		trace.WithAttributes(
			attribute.String("reason", reason),
			attribute.Int("batch.size", len(batch)),
		))
	defer span.End()

	start := time.Now()

	kept, filtered, err := p.filterKnownVessels(ctx, batch)
	if err == nil && len(kept) > 0 {
		var inserted int
		inserted, err = p.positions.BulkInsert(ctx, kept)
		if err == nil {
			metrics.PipelinePositionsWritten.Add(float64(inserted))
			if latestErr := p.latest.UpsertLatest(ctx, latestRows(kept)); latestErr != nil {
				p.logger.Error("latest position upsert failed", "error", latestErr, "rows", len(kept))
				p.emitDiagnostic(event.Diagnostic{
					Kind:      event.DiagnosticIngestion,
					Component: "pipeline",
					Stage:     "latest_upsert",
					Reason:    latestErr.Error(),
					Timestamp: time.Now().UTC(),
				})
			}
		}
	}

	elapsed := time.Since(start)
	metrics.PipelineFlushLatency.Observe(elapsed.Seconds())
	p.health.RecordLatency(elapsed)

	if err != nil {
		metrics.PipelineBatchFlushErrors.Inc()
		p.health.RecordFailure()
		span.RecordError(err)
		p.logger.Error("batch flush failed, discarding batch",
			"error", err,
			"reason", reason,
			"batch_size", len(batch),
			"elapsed", elapsed.String())
		p.emitDiagnostic(event.Diagnostic{
			Kind:      event.DiagnosticIngestion,
			Component: "pipeline",
			Stage:     "flush",
			Reason:    err.Error(),
			Detail:    map[string]string{"batch_size": strconv.Itoa(len(batch)), "trigger": reason},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	metrics.PipelineBatchesFlushed.Inc()
	p.health.RecordSuccess()
	p.logger.Debug("batch flushed",
		"reason", reason,
		"rows", len(kept),
		"filtered", filtered,
		"elapsed", elapsed.String())
	p.emitDiagnostic(event.Diagnostic{
		Kind:      event.DiagnosticBatchProcessed,
		Component: "pipeline",
		Stage:     "flush",
		Detail: map[string]string{
			"rows":     strconv.Itoa(len(kept)),
			"filtered": strconv.Itoa(filtered),
			"trigger":  reason,
		},
		Timestamp: time.Now().UTC(),
	})
}

// filterKnownVessels drops rows whose vessel is unknown to the store.
// Those rows are counted and logged but never retried.
func (p *Pipeline) filterKnownVessels(ctx context.Context, batch []model.Position) ([]model.Position, int, error) {
	mmsiSet := make(map[string]struct{}, len(batch))
	for _, row := range batch {
		mmsiSet[row.MMSI] = struct{}{}
	}
	mmsis := make([]string, 0, len(mmsiSet))
	for mmsi := range mmsiSet {
		mmsis = append(mmsis, mmsi)
	}

	existing, err := p.vessels.ExistingMMSIs(ctx, mmsis)
	if err != nil {
		return nil, 0, err
	}

	kept := batch[:0:0]
	filtered := 0
	for _, row := range batch {
		if _, ok := existing[row.MMSI]; !ok {
			filtered++
			continue
		}
		kept = append(kept, row)
	}
	if filtered > 0 {
		metrics.PipelinePositionsFiltered.Add(float64(filtered))
		p.logger.Warn("dropped positions for unknown vessels", "count", filtered)
	}
	return kept, filtered, nil
}

// ensureVessel inserts the placeholder row once per MMSI. Failure is
// logged and forgotten: the flush-time filter catches what it misses.
func (p *Pipeline) ensureVessel(ctx context.Context, mmsi string) {
	p.knownMu.Lock()
	_, ok := p.known[mmsi]
	p.knownMu.Unlock()
	if ok {
		return
	}
	if err := p.vessels.EnsureExists(ctx, mmsi); err != nil {
		p.logger.Warn("vessel placeholder insert failed", "mmsi", mmsi, "error", err)
		return
	}
	p.markKnown(mmsi)
}

func (p *Pipeline) markKnown(mmsi string) {
	p.knownMu.Lock()
	p.known[mmsi] = struct{}{}
	p.knownMu.Unlock()
}

func (p *Pipeline) reject(kind event.DiagnosticKind, eventType, mmsi string, result validate.Result) {
	reason := result.PrimaryReason()
	metrics.ValidationRejections.WithLabelValues(eventType, reason).Inc()
	p.logger.Debug("event rejected", "type", eventType, "mmsi", mmsi, "reason", reason)

	detail := make(map[string]string, len(result.Violations))
	for _, v := range result.Violations {
		detail[v.Field] = v.Rule
	}
	p.emitDiagnostic(event.Diagnostic{
		Kind:      kind,
		Component: "pipeline",
		Stage:     "validate",
		MMSI:      mmsi,
		Reason:    reason,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Pipeline) emitDiagnostic(d event.Diagnostic) {
	p.hub.BroadcastAll(string(d.Kind), d)
}

// latestRows reduces a batch to one row per vessel carrying its newest
// timestamp, ready for the conditional latest-position upsert.
func latestRows(batch []model.Position) []model.LatestPosition {
	byMMSI := make(map[string]model.Position, len(batch))
	for _, row := range batch {
		if current, ok := byMMSI[row.MMSI]; !ok || row.Timestamp.After(current.Timestamp) {
			byMMSI[row.MMSI] = row
		}
	}
	rows := make([]model.LatestPosition, 0, len(byMMSI))
	for _, row := range byMMSI {
		rows = append(rows, model.LatestPosition{
			MMSI:       row.MMSI,
			Timestamp:  row.Timestamp,
			Lat:        row.Lat,
			Lon:        row.Lon,
			SOG:        row.SOG,
			COG:        row.COG,
			Heading:    row.Heading,
			NavStatus:  row.NavStatus,
			RateOfTurn: row.RateOfTurn,
		})
	}
	return rows
}

func latestFromEvent(e event.PositionEvent) model.LatestPosition {
	return model.LatestPosition{
		MMSI:       e.MMSI,
		Timestamp:  e.Timestamp,
		Lat:        e.Lat,
		Lon:        e.Lon,
		SOG:        e.SOG,
		COG:        e.COG,
		Heading:    e.Heading,
		NavStatus:  e.NavStatus,
		RateOfTurn: e.RateOfTurn,
	}
}
