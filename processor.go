/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/model"
	"github.com/sirupsen/logrus"
)

const (
	defaultProcessorInterval  = 20 * time.Second
	defaultProcessorBatchSize = 5
	defaultCycleLockTTL       = 5 * time.Minute
)

// CycleLocker keeps replicas from running the same cycle at once.
type CycleLocker interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

type ProcessorOptions struct {
	Interval  time.Duration
	BatchSize int
	// Locker is optional. Without it cycles are only single-flight within this process.
	Locker  CycleLocker
	LockTTL time.Duration
	// Alert receives scan failures and auth failures, which no retry will fix.
	Alert func(error)
	// Publisher is optional. It receives the counters after every cycle that ran.
	Publisher StatsPublisher
}

// ProcessorOptionsFromConfig reads the engine settings. The locker is supplied by the caller.
func ProcessorOptionsFromConfig(cfg config.PipelineConfig, locker CycleLocker) ProcessorOptions {
	opts := ProcessorOptions{
		Interval:  cfg.Interval(),
		BatchSize: cfg.BatchSize,
		LockTTL:   cfg.LockTTL(),
	}
	if cfg.UseCycleLock {
		opts.Locker = locker
	}
	return opts
}

// ProcessorStats is a snapshot of the engine counters.
type ProcessorStats struct {
	Running             bool                 `json:"running"`
	CycleInProgress     bool                 `json:"cycle_in_progress"`
	Interval            string               `json:"interval"`
	BatchSize           int                  `json:"batch_size"`
	CyclesRun           int64                `json:"cycles_run"`
	CyclesSkipped       int64                `json:"cycles_skipped"`
	ItemsProcessed      int64                `json:"items_processed"`
	ItemsSucceeded      int64                `json:"items_succeeded"`
	Failures            map[ErrorClass]int64 `json:"failures"`
	LastCycleStartedAt  *time.Time           `json:"last_cycle_started_at,omitempty"`
	LastCycleFinishedAt *time.Time           `json:"last_cycle_finished_at,omitempty"`
	Source              string               `json:"source"`
	ReportedAt          *time.Time           `json:"reported_at,omitempty"`
}

// Processor is the orchestration engine. Every cycle scans for work on each stage
// and runs it. A cycle never starts while another one is in progress.
type Processor struct {
	labsync   *Labsync
	interval  time.Duration
	batchSize int
	locker    CycleLocker
	lockTTL   time.Duration
	alert     func(error)
	publisher StatsPublisher

	stopCh  chan struct{}
	wg      sync.WaitGroup
	cycles  sync.WaitGroup
	running bool
	mu      sync.Mutex

	inCycle atomic.Bool

	statsMu sync.Mutex
	stats   ProcessorStats
}

func NewProcessor(l *Labsync, opts ProcessorOptions) *Processor {
	if opts.Interval <= 0 {
		opts.Interval = defaultProcessorInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultProcessorBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultCycleLockTTL
	}
	return &Processor{
		labsync:   l,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		locker:    opts.Locker,
		lockTTL:   opts.LockTTL,
		alert:     opts.Alert,
		publisher: opts.Publisher,
		stopCh:    make(chan struct{}),
		stats:     ProcessorStats{Failures: map[ErrorClass]int64{}},
	}
}

// Start runs a cycle immediately and then one per interval. Calling Start on a
// running processor does nothing.
func (p *Processor) Start(ctx context.Context) {
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
		p.run(ctx, stopCh)
	}()

	logrus.WithFields(logrus.Fields{
		"interval":   p.interval,
		"batch_size": p.batchSize,
	}).Info("pipeline processor started")
}

// Stop cancels the schedule. A cycle already in flight is left to finish; use Wait
// to block until it has.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("pipeline processor stopped")
}

// Wait blocks until no cycle is in flight.
func (p *Processor) Wait() {
	p.cycles.Wait()
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context, stopCh <-chan struct{}) {
	p.launch(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("pipeline processor context cancelled")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.launch(ctx)
		}
	}
}

// launch starts a cycle without blocking the schedule, so a long cycle shows up
// as skipped ticks rather than a drifting timer.
func (p *Processor) launch(ctx context.Context) {
	p.cycles.Add(1)
	go func() {
		defer p.cycles.Done()
		p.cycle(ctx)
	}()
}

// RunCycle runs one cycle now and reports whether it ran. It returns false when
// another cycle holds the single-flight guard or the cycle lock.
func (p *Processor) RunCycle(ctx context.Context) bool {
	p.cycles.Add(1)
	defer p.cycles.Done()
	return p.cycle(ctx)
}

func (p *Processor) cycle(ctx context.Context) (ran bool) {
	if !p.inCycle.CompareAndSwap(false, true) {
		p.recordSkip()
		logrus.Debug("pipeline cycle still running, skipping")
		return false
	}
	defer p.inCycle.Store(false)

	if p.locker != nil {
		ok, err := p.locker.TryLock(ctx, p.lockTTL)
		if err != nil {
			logrus.Warnf("failed to acquire pipeline cycle lock: %v", err)
			p.recordSkip()
			return false
		}
		if !ok {
			logrus.Debug("pipeline cycle lock held elsewhere, skipping")
			p.recordSkip()
			return false
		}
		defer func() {
			if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logrus.Warnf("failed to release pipeline cycle lock: %v", err)
			}
		}()
	}

	ran = true
	started := time.Now()
	p.statsMu.Lock()
	p.stats.CyclesRun++
	p.stats.LastCycleStartedAt = &started
	p.statsMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("pipeline cycle aborted: %v", r)
		}
		finished := time.Now()
		p.statsMu.Lock()
		p.stats.LastCycleFinishedAt = &finished
		p.statsMu.Unlock()
		p.publish(ctx)
	}()

	if err := p.scan(ctx); err != nil {
		logrus.Errorf("pipeline cycle ended early: %v", err)
		p.raise(err)
	}
	return ran
}

// scan runs the four scans in order. An item is attempted at most once per stage
// per cycle even when two scans both return it.
func (p *Processor) scan(ctx context.Context) error {
	attempted := make(map[string]struct{})
	ds := p.labsync.datasource

	messages, err := ds.GetMessagesForExtraction(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("scan messages for extraction: %w", err)
	}
	for _, msg := range messages {
		p.process(ctx, attempted, model.StageExtraction, msg.ID)
	}

	meetings, err := ds.GetMeetingsAwaitingDesign(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("scan meetings awaiting design: %w", err)
	}
	for _, m := range meetings {
		p.process(ctx, attempted, model.StageDesign, m.MeetingID)
	}

	failed, err := ds.GetMessagesWithFailedDesign(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("scan messages with failed design: %w", err)
	}
	for _, msg := range failed {
		meeting, err := ds.GetMeetingByMessageID(ctx, msg.ID)
		if err != nil {
			logrus.WithField("message_id", msg.ID).Warnf("no meeting for failed design: %v", err)
			continue
		}
		p.process(ctx, attempted, model.StageDesign, meeting.MeetingID)
	}

	budgets, err := ds.GetBudgetsAwaitingAllocation(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("scan budgets awaiting allocation: %w", err)
	}
	for _, b := range budgets {
		p.process(ctx, attempted, model.StageAllocation, b.BudgetID)
	}
	return nil
}

// process runs one stage for one item. Failures are classified and counted; they
// never stop the batch.
func (p *Processor) process(ctx context.Context, attempted map[string]struct{}, stage model.Stage, id string) {
	if ctx.Err() != nil {
		return
	}
	key := string(stage) + ":" + id
	if _, ok := attempted[key]; ok {
		return
	}
	attempted[key] = struct{}{}

	err := p.runStage(ctx, stage, id)

	p.statsMu.Lock()
	p.stats.ItemsProcessed++
	if err == nil {
		p.stats.ItemsSucceeded++
	}
	p.statsMu.Unlock()

	if err == nil {
		return
	}

	class := ClassifyError(err)
	p.statsMu.Lock()
	p.stats.Failures[class]++
	p.statsMu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"stage": stage,
		"id":    id,
		"class": class,
	})
	switch class {
	case ErrorClassQuota:
		log.Warn("model quota exhausted, retrying next cycle")
	case ErrorClassTransient:
		log.Infof("model unavailable, retrying next cycle: %v", err)
	case ErrorClassAuth:
		log.Errorf("model rejected credentials: %v", err)
		p.raise(fmt.Errorf("%s %s: %w", stage, id, err))
	default:
		log.Errorf("stage failed: %v", err)
	}
}

// runStage turns a panicking stage into a failure of that item alone.
func (p *Processor) runStage(ctx context.Context, stage model.Stage, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %s panicked: %v", stage, id, r)
		}
	}()
	_, err = p.labsync.RunStage(ctx, stage, id)
	return err
}

func (p *Processor) publish(ctx context.Context) {
	if p.publisher == nil {
		return
	}
	// Published once the cycle's work is done.
	stats := p.Stats()
	stats.CycleInProgress = false
	if err := p.publisher.Publish(context.WithoutCancel(ctx), stats); err != nil {
		logrus.Warnf("failed to publish pipeline stats: %v", err)
	}
}

func (p *Processor) raise(err error) {
	if p.alert != nil {
		p.alert(err)
	}
}

func (p *Processor) recordSkip() {
	p.statsMu.Lock()
	p.stats.CyclesSkipped++
	p.statsMu.Unlock()
}

// Stats returns a copy of the counters.
func (p *Processor) Stats() ProcessorStats {
	p.statsMu.Lock()
	s := p.stats
	s.Failures = make(map[ErrorClass]int64, len(p.stats.Failures))
	for k, v := range p.stats.Failures {
		s.Failures[k] = v
	}
	p.statsMu.Unlock()

	s.Running = p.IsRunning()
	s.CycleInProgress = p.inCycle.Load()
	s.Interval = p.interval.String()
	s.BatchSize = p.batchSize
	s.Source = StatsSourceLocal
	return s
}
