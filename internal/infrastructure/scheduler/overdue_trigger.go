package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"go.uber.org/zap"
)

// Detector runs one overdue detection pass
type Detector interface {
	Detect(ctx context.Context) (appinvoicing.DetectionResult, error)
}

// OverdueTriggerConfig holds configuration for the interval trigger
type OverdueTriggerConfig struct {
	// Interval between detection passes
	Interval time.Duration
	// Timeout bounds a single pass; zero means no bound
	Timeout time.Duration
	// RunOnStart runs a pass immediately instead of waiting one interval
	RunOnStart bool
}

// DefaultOverdueTriggerConfig returns default trigger configuration
func DefaultOverdueTriggerConfig() OverdueTriggerConfig {
	return OverdueTriggerConfig{
		Interval:   time.Hour,
		Timeout:    5 * time.Minute,
		RunOnStart: true,
	}
}

// RunReport describes the last completed pass
type RunReport struct {
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt time.Time                    `json:"finished_at"`
	Manual     bool                         `json:"manual"`
	Result     appinvoicing.DetectionResult `json:"result"`
	Error      string                       `json:"error,omitempty"`
}

// OverdueTrigger calls the detector on a fixed interval.
// Passes never overlap; a tick that arrives during a pass is skipped.
type OverdueTrigger struct {
	config   OverdueTriggerConfig
	detector Detector
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	busy    atomic.Bool
	lastRun atomic.Pointer[RunReport]
	runs    atomic.Int64
	skipped atomic.Int64
}

// NewOverdueTrigger creates a trigger; it does nothing until Start
func NewOverdueTrigger(config OverdueTriggerConfig, detector Detector, logger *zap.Logger) (*OverdueTrigger, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if detector == nil {
		return nil, fmt.Errorf("%w: detector is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueTrigger{
		config:   config,
		detector: detector,
		logger:   logger.Named("overdue_trigger"),
	}, nil
}

// Start launches the interval loop. Calling Start twice is a no-op.
func (t *OverdueTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Overdue trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("timeout", t.config.Timeout),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass, bounded by ctx
func (t *OverdueTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Overdue trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *OverdueTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *OverdueTrigger) tick(ctx context.Context) {
	if _, err := t.run(ctx, false); errors.Is(err, ErrRunInProgress) {
		t.skipped.Add(1)
		t.logger.Debug("Skipping tick, previous pass still running")
	}
}

// RunNow performs a pass immediately on the caller's goroutine.
// It returns ErrRunInProgress if a pass is already running.
func (t *OverdueTrigger) RunNow(ctx context.Context) (appinvoicing.DetectionResult, error) {
	return t.run(ctx, true)
}

func (t *OverdueTrigger) run(ctx context.Context, manual bool) (appinvoicing.DetectionResult, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return appinvoicing.DetectionResult{}, ErrRunInProgress
	}
	defer t.busy.Store(false)

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	report := RunReport{StartedAt: time.Now(), Manual: manual}
	result, err := t.detector.Detect(ctx)
	report.FinishedAt = time.Now()
	report.Result = result
	t.runs.Add(1)

	if err != nil {
		report.Error = err.Error()
		t.logger.Error("Overdue detection pass failed",
			zap.Bool("manual", manual),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
			zap.Error(err),
		)
	} else {
		t.logger.Info("Overdue detection pass completed",
			zap.Bool("manual", manual),
			zap.Int("candidates", result.Candidates),
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		)
	}
	t.lastRun.Store(&report)
	return result, err
}

// TriggerStatus is a point-in-time view of the trigger
type TriggerStatus struct {
	Running  bool          `json:"running"`
	Busy     bool          `json:"busy"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Skipped  int64         `json:"skipped"`
	LastRun  *RunReport    `json:"last_run,omitempty"`
}

// Status reports the trigger state
func (t *OverdueTrigger) Status() TriggerStatus {
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()
	return TriggerStatus{
		Running:  running,
		Busy:     t.busy.Load(),
		Interval: t.config.Interval,
		Runs:     t.runs.Load(),
		Skipped:  t.skipped.Load(),
		LastRun:  t.lastRun.Load(),
	}
}
