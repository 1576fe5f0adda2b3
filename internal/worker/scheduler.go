package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ledgerreports/internal/core"
	"ledgerreports/internal/log"
)

// StaleProcessingMessage is recorded on requests found in processing at start.
const StaleProcessingMessage = "interrupted: process stopped while the report was being generated"

// Config holds configuration for the scheduler
type Config struct {
	// Interval between cycles (default: 60s)
	Interval time.Duration

	// BatchSize is the max number of requests handled per cycle (default: 10)
	BatchSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:  60 * time.Second,
		BatchSize: 10,
	}
}

// PendingSource is the slice of the request store the scheduler reads.
type PendingSource interface {
	FindPending(ctx context.Context, limit int) ([]core.ReportRequest, error)
	FailStaleProcessing(ctx context.Context, message string) (int64, error)
}

// ItemProcessor runs one request to a terminal status.
type ItemProcessor interface {
	Process(ctx context.Context, req core.ReportRequest) error
}

// Scheduler polls for pending report requests and processes them one at a
// time in creation order. A tick that finds a cycle in flight is dropped.
type Scheduler struct {
	source    PendingSource
	processor ItemProcessor
	lock      CycleLock
	config    Config
	logger    *log.Logger

	cyclesRun     atomic.Int64
	cyclesSkipped atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticks   sync.WaitGroup
}

// NewScheduler creates a scheduler. A nil lock means an in-process LocalLock.
func NewScheduler(source PendingSource, processor ItemProcessor, lock CycleLock, config Config, logger *log.Logger) *Scheduler {
	if lock == nil {
		lock = NewLocalLock()
	}
	if logger == nil {
		logger = log.Discard()
	}
	if config.BatchSize < 1 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		source:    source,
		processor: processor,
		lock:      lock,
		config:    config,
		logger:    logger.WithComponent(log.ComponentScheduler),
	}
}

// Start fails any request left in processing by a previous run, then begins
// the polling loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.failStale(ctx)

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Scheduler started",
		"interval", s.config.Interval,
		log.FieldBatchSize, s.config.BatchSize)

	return nil
}

// failStale runs under the cycle lock so it never touches an item another
// holder of the lock is processing.
func (s *Scheduler) failStale(ctx context.Context) {
	lease, ok, err := s.lock.TryAcquire(ctx)
	if err != nil || !ok {
		s.logger.WarnContext(ctx, "Skipping stale processing recovery, cycle lock unavailable", log.FieldError, err)
		return
	}
	defer lease.Release()

	n, err := s.source.FailStaleProcessing(ctx, StaleProcessingMessage)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to fail stale processing requests", log.FieldError, err)
		return
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "Marked stale processing requests as error", "count", n)
	}
}

// Stop ends the polling loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	// A previous Stop may have timed out after closing stopCh.
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-doneCh
		s.ticks.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CyclesRun is the number of cycles that obtained the lock.
func (s *Scheduler) CyclesRun() int64 { return s.cyclesRun.Load() }

// CyclesSkipped is the number of ticks dropped because a cycle was in flight.
func (s *Scheduler) CyclesSkipped() int64 { return s.cyclesSkipped.Load() }

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	s.tick(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick never blocks the timer: the cycle runs in its own goroutine and a
// tick that loses the lock returns at once.
func (s *Scheduler) tick(ctx context.Context) {
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.RunCycle(ctx)
	}()
}

// RunCycle runs one cycle if no other cycle holds the lock and reports
// whether it ran. Failures inside the cycle are logged, never returned.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	lease, ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to acquire cycle lock", log.FieldError, err)
		return false
	}
	if !ok {
		s.cyclesSkipped.Add(1)
		s.logger.DebugContext(ctx, "Cycle already in flight, skipping tick")
		return false
	}
	defer lease.Release()

	s.cyclesRun.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Cycle panicked",
				log.FieldOperation, log.OpCycle,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	s.cycle(ctx, lease.Lost())
	return true
}

func (s *Scheduler) cycle(ctx context.Context, lost <-chan struct{}) {
	items, err := s.source.FindPending(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list pending report requests",
			log.FieldOperation, log.OpCycle,
			log.FieldError, err)
		return
	}
	if len(items) == 0 {
		return
	}

	s.logger.DebugContext(ctx, "Processing pending report requests", "count", len(items))

	start := time.Now()
	for _, item := range items {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-lost:
			s.logger.WarnContext(ctx, "Cycle lock lost, leaving remaining items for the next cycle",
				log.FieldOperation, log.OpCycle)
			return
		default:
		}
		s.processOne(ctx, item)
	}

	s.logger.InfoContext(ctx, "Cycle complete",
		"count", len(items),
		log.FieldDuration, time.Since(start).Milliseconds())
}

func (s *Scheduler) processOne(ctx context.Context, item core.ReportRequest) {
	fields := log.NewFields().WithReport(item.RequestID, string(item.Kind))
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Report request panicked",
				append(fields.ToSlice(), "panic", r)...)
		}
	}()

	if err := s.processor.Process(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "Failed to process report request",
			fields.WithError(err).ToSlice()...)
	}
}
