// Package pipeline sequences extract → transform → load for one batch id and
// re-runs the whole cycle on a timer. Cycles are single-threaded; the batch
// id is the only coupling between the stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"

	"github.com/fenorlabs/totesys-etl/pkg/etlerr"
	"github.com/fenorlabs/totesys-etl/pkg/extract"
	"github.com/fenorlabs/totesys-etl/pkg/metrics"
	"github.com/fenorlabs/totesys-etl/pkg/transform"
)

// Loader is the optional warehouse boundary.
type Loader interface {
	Load(ctx context.Context, batchID string) error
}

// Notifier is the optional alerting boundary.
type Notifier interface {
	BatchFailed(ctx context.Context, batchID string, codes []etlerr.Code)
}

type Config struct {
	Logger      *slog.Logger
	Extractor   *extract.Extractor
	CursorStore *extract.CursorStore
	Engine      *transform.Engine
	Clock       clockwork.Clock
	Interval    time.Duration

	// Loader and Notifier are optional.
	Loader   Loader
	Notifier Notifier
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Extractor == nil {
		return errors.New("extractor is required")
	}
	if cfg.CursorStore == nil {
		return errors.New("cursor store is required")
	}
	if cfg.Engine == nil {
		return errors.New("transform engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return nil
}

// Status is the user-visible result of one batch cycle: overall success plus
// the distinct failure codes seen across per-table outcomes, so a caller can
// decide whether to retry the whole batch or re-run failed tables.
type Status struct {
	BatchID          string                 `json:"batch_id"`
	StartedAt        time.Time              `json:"started_at"`
	FinishedAt       time.Time              `json:"finished_at"`
	Extract          *extract.CycleResult   `json:"extract,omitempty"`
	Transform        *transform.BatchStatus `json:"transform,omitempty"`
	TransformSkipped bool                   `json:"transform_skipped,omitempty"`
	LoadError        string                 `json:"load_error,omitempty"`
	Success          bool                   `json:"success"`
	FailureCodes     []etlerr.Code          `json:"failure_codes,omitempty"`
}

type Pipeline struct {
	log *slog.Logger
	cfg Config

	mu        sync.RWMutex
	last      *Status
	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether at least one batch has completed successfully.
func (p *Pipeline) Ready() bool {
	select {
	case <-p.readyCh:
		return true
	default:
		return false
	}
}

// LastStatus returns the most recent batch status, or nil before the first
// cycle.
func (p *Pipeline) LastStatus() *Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run executes cycles on the configured interval until ctx is cancelled. The
// first cycle runs immediately.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("pipeline: starting", "interval", p.cfg.Interval)

	p.RunOnce(ctx)

	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("pipeline: stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single extract → transform → load cycle.
func (p *Pipeline) RunOnce(ctx context.Context) *Status {
	started := p.cfg.Clock.Now()
	status := &Status{StartedAt: started.UTC()}

	p.runCycle(ctx, status)

	status.FinishedAt = p.cfg.Clock.Now().UTC()
	p.finish(ctx, status)
	return status
}

func (p *Pipeline) runCycle(ctx context.Context, status *Status) {
	cursor, err := p.cfg.CursorStore.Load(ctx)
	if err != nil {
		p.log.Error("pipeline: failed to load cursor", "error", err)
		status.FailureCodes = appendCode(status.FailureCodes, etlerr.Classify(err))
		return
	}

	extractStart := p.cfg.Clock.Now()
	result := p.cfg.Extractor.Run(ctx, cursor)
	metrics.BatchDuration.WithLabelValues("extract").Observe(p.cfg.Clock.Since(extractStart).Seconds())
	status.BatchID = result.BatchID
	status.Extract = result
	for _, code := range result.FailureCodes() {
		status.FailureCodes = appendCode(status.FailureCodes, code)
	}

	// Per-table watermarks were only advanced after successful writes, so a
	// partially failed cycle persists a partially advanced cursor and the
	// failed tables retry their window next cycle.
	if err := p.cfg.CursorStore.Save(ctx, cursor); err != nil {
		p.log.Error("pipeline: failed to persist cursor", "error", err)
		status.FailureCodes = appendCode(status.FailureCodes, etlerr.Classify(err))
	}

	// The sales-order snapshot anchors the transform stage; without it there
	// is nothing to conform this cycle.
	if !hasSalesOrderSnapshot(result) {
		p.log.Info("pipeline: no sales order changes, transform skipped", "batch_id", result.BatchID)
		status.TransformSkipped = true
		return
	}

	transformStart := p.cfg.Clock.Now()
	tStatus := p.cfg.Engine.Run(ctx, result.BatchID)
	metrics.BatchDuration.WithLabelValues("transform").Observe(p.cfg.Clock.Since(transformStart).Seconds())
	status.Transform = tStatus
	for _, code := range tStatus.FailureCodes() {
		status.FailureCodes = appendCode(status.FailureCodes, code)
	}

	if p.cfg.Loader == nil || !tStatus.Success() {
		return
	}
	loadStart := p.cfg.Clock.Now()
	if err := p.cfg.Loader.Load(ctx, result.BatchID); err != nil {
		p.log.Error("pipeline: load failed", "batch_id", result.BatchID, "error", err)
		status.LoadError = err.Error()
		status.FailureCodes = appendCode(status.FailureCodes, etlerr.Classify(err))
	}
	metrics.BatchDuration.WithLabelValues("load").Observe(p.cfg.Clock.Since(loadStart).Seconds())
}

func (p *Pipeline) finish(ctx context.Context, status *Status) {
	status.Success = len(status.FailureCodes) == 0

	outcome := "ok"
	if !status.Success {
		outcome = "error"
	}
	metrics.BatchTotal.WithLabelValues("cycle", outcome).Inc()

	p.mu.Lock()
	p.last = status
	p.mu.Unlock()

	if status.Success {
		p.readyOnce.Do(func() { close(p.readyCh) })
		p.log.Info("pipeline: batch succeeded", "batch_id", status.BatchID)
		return
	}

	p.log.Error("pipeline: batch failed", "batch_id", status.BatchID, "codes", status.FailureCodes)
	sentry.CaptureException(fmt.Errorf("batch %s failed with codes %v", status.BatchID, status.FailureCodes))
	if p.cfg.Notifier != nil {
		p.cfg.Notifier.BatchFailed(ctx, status.BatchID, status.FailureCodes)
	}
}

func hasSalesOrderSnapshot(result *extract.CycleResult) bool {
	for _, o := range result.Outcomes {
		if o.Table == "sales_order" {
			return o.Err == nil && !o.Skipped
		}
	}
	return false
}

func appendCode(codes []etlerr.Code, code etlerr.Code) []etlerr.Code {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}
