/*
 * Copyright (c) 2022 Huawei Device Co., Ltd.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler matches modules to devices and supervises driver runs.
package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/aggregator"
	"github.com/openharmony/test-xdevice/pkg/driver"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
	"github.com/openharmony/test-xdevice/pkg/testkit"
)

const (
	defaultGracePeriod = 30 * time.Second
	defaultConcurrency = 1
)

// Config carries scheduler tunables that are not part of the task itself.
type Config struct {
	// GracePeriod bounds how long in-flight attempts may keep running
	// after cancellation before they are force-recorded as Unavailable.
	GracePeriod time.Duration
}

// queueItem is one pending dispatch of a module: its current pass and the
// attempt history accumulated within that pass.
type queueItem struct {
	module   models.Module
	attempt  int
	pass     int
	attempts []models.Attempt
	files    []string
}

// settled carries a finished driver run back into the scheduler loop.
type settled struct {
	item *queueItem
	dev  *models.Device
	res  driver.Result
}

// Scheduler owns the pending-module queue and the concurrency budget. One
// goroutine runs per in-flight attempt; the main loop blocks on settle and
// idle-device events, never busy-polling.
type Scheduler struct {
	cfg      Config
	registry DeviceRegistry
	provider testkit.Provider
	logger   logger.Logger

	// rebooting counts devices mid reboot-per-module cycle; while any are
	// pending the pool can still grow, so starvation must not be declared.
	// rebootWG tracks the same goroutines so Run does not return while one
	// is still touching the registry.
	rebooting atomic.Int32
	rebootWG  sync.WaitGroup
}

// New creates a scheduler over an already-discovered registry.
func New(reg DeviceRegistry, provider testkit.Provider, cfg Config, log logger.Logger) *Scheduler {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}

	return &Scheduler{
		cfg:      cfg,
		registry: reg,
		provider: provider,
		logger:   log,
	}
}

// Run executes the task to completion and returns the finalized report. Per-
// module failures never surface as errors; the task always completes with a
// report.
func (s *Scheduler) Run(ctx context.Context, task *models.Task) *models.Report {
	agg := aggregator.New(task, s.logger)
	drv := driver.New(s.provider, s.logger)

	budget := task.Concurrency
	if budget <= 0 {
		budget = defaultConcurrency
	}

	// Buffered so a driver goroutine can always hand off its result, even
	// after the loop stopped receiving during cancellation.
	settledCh := make(chan settled, budget)

	var queue []*queueItem
	for _, m := range task.Modules {
		queue = append(queue, &queueItem{module: m, attempt: 1, pass: 1})
	}

	s.logger.Info().
		Str("task", task.ID).
		Int("modules", len(queue)).
		Int("concurrency", budget).
		Bool("dry_run", task.DryRun).
		Msg("Task started")

	inFlight := 0
	canceled := false

	for len(queue) > 0 || inFlight > 0 {
		if !canceled && ctx.Err() != nil {
			canceled = true

			s.logger.Warn().Str("task", task.ID).Msg("Stop requested, draining in-flight attempts")
		}

		if canceled {
			queue = s.drain(agg, settledCh, queue, &inFlight)
			break
		}

		var progress bool

		queue, progress = s.dispatch(ctx, task, agg, drv, settledCh, queue, &inFlight, budget)

		// A full pass with nothing dispatched, nothing in flight and no
		// reboot pending can never unblock: the registry only changes
		// through our own completions. Finalize what is left instead of
		// deadlocking.
		if !progress && inFlight == 0 && s.rebooting.Load() == 0 && len(queue) > 0 {
			for _, item := range queue {
				s.finalizeUnavailable(agg, item)
			}

			queue = nil

			continue
		}

		if inFlight == 0 && len(queue) == 0 {
			break
		}

		select {
		case msg := <-settledCh:
			queue = s.settle(ctx, task, agg, msg, queue)
			inFlight--
		case <-s.registry.IdleEvents():
		case <-ctx.Done():
		}
	}

	// Anything still pending after cancellation settles as Unavailable.
	for _, item := range queue {
		if !agg.HasRecord(item.module.Name) {
			agg.Record(item.module.Name, item.attempts, models.OutcomeUnavailable, item.files)
		}
	}

	// An attempt that outlived the grace period leaves its module with no
	// record at all; sweep so the report stays complete.
	for _, m := range task.Modules {
		if !agg.HasRecord(m.Name) {
			agg.Record(m.Name, nil, models.OutcomeUnavailable, nil)
		}
	}

	// Reboot cycles started for the last settled modules must finish before
	// the registry is handed back to the caller.
	s.rebootWG.Wait()

	report := agg.Finalize()

	s.logger.Info().
		Str("task", task.ID).
		Int("records", len(report.Records)).
		Dur("elapsed", report.EndTime.Sub(report.StartTime)).
		Msg("Task finished")

	return report
}

// dispatch makes one scheduling pass: every queued module is tried at most
// once, in order, while budget remains. Modules whose label can never be
// served again settle as Unavailable immediately.
func (s *Scheduler) dispatch(
	ctx context.Context,
	task *models.Task,
	agg *aggregator.Aggregator,
	drv *driver.Driver,
	settledCh chan<- settled,
	queue []*queueItem,
	inFlight *int,
	budget int,
) (remaining []*queueItem, progress bool) {
	passSize := len(queue)

	for i := 0; i < passSize && *inFlight < budget; i++ {
		item := queue[0]
		queue = queue[1:]

		s.logger.Info().
			Str("module", item.module.Name).
			Int("attempt", item.attempt).
			Int("pass", item.pass).
			Int("remaining", len(queue)).
			Msg("Dispatching module")

		if task.DryRun {
			// Dry runs never allocate a device or touch an adapter.
			s.start(ctx, task, drv, settledCh, item, nil, nil, inFlight)

			progress = true

			continue
		}

		if !s.registry.HasCandidate(item.module.Label) {
			s.finalizeUnavailable(agg, item)

			progress = true

			continue
		}

		dev, conn, ok := s.registry.Allocate(item.module.Label)
		if !ok {
			// No idle match right now; rotate to the back and let the next
			// settle or idle event retry it.
			queue = append(queue, item)

			continue
		}

		if task.CheckDevice && !conn.IsAlive(ctx) {
			s.registry.MarkOffline(dev.Serial)

			queue = append(queue, item)

			progress = true

			continue
		}

		s.start(ctx, task, drv, settledCh, item, dev, conn, inFlight)

		progress = true
	}

	return queue, progress
}

// start launches one driver goroutine for an allocated (module, device) pair.
func (s *Scheduler) start(
	ctx context.Context,
	task *models.Task,
	drv *driver.Driver,
	settledCh chan<- settled,
	item *queueItem,
	dev *models.Device,
	conn adapter.Adapter,
	inFlight *int,
) {
	req := &driver.Request{
		Module:      item.module,
		Device:      dev,
		Conn:        conn,
		Number:      item.attempt,
		Pass:        item.pass,
		Timeout:     time.Duration(task.ModuleTimeout),
		DryRun:      task.DryRun,
		ArtifactDir: filepath.Join(task.ReportPath, "log", item.module.Name),
	}

	if dev != nil {
		if err := s.registry.MarkBusy(dev.Serial); err != nil {
			s.logger.Error().Err(err).Str("device", dev.Serial).Msg("Failed to mark device busy")
		}
	}

	*inFlight++

	go func() {
		settledCh <- settled{item: item, dev: dev, res: drv.Run(ctx, req)}
	}()
}

// settle folds one finished attempt back into the queue: release or retire
// the device, then either re-queue the module for a retry, seed the next
// repeat pass, or record the final result.
func (s *Scheduler) settle(
	ctx context.Context,
	task *models.Task,
	agg *aggregator.Aggregator,
	msg settled,
	queue []*queueItem,
) []*queueItem {
	item := msg.item
	item.attempts = append(item.attempts, msg.res.Attempt)
	item.files = append(item.files, msg.res.Artifacts...)

	s.releaseDevice(ctx, task, msg)

	outcome := msg.res.Attempt.Outcome

	if outcome == models.OutcomeFail && item.attempt <= task.Retry {
		// Failed -> Prepared: same module, next attempt, freshly allocated
		// device on the next dispatch pass.
		retry := &queueItem{
			module:   item.module,
			attempt:  item.attempt + 1,
			pass:     item.pass,
			attempts: item.attempts,
			files:    item.files,
		}

		s.logger.Info().
			Str("module", item.module.Name).
			Int("next_attempt", retry.attempt).
			Msg("Re-queueing failed module")

		return append(queue, retry)
	}

	agg.Record(item.module.Name, item.attempts, outcome, item.files)

	if item.pass < task.Repeat {
		next := &queueItem{module: item.module, attempt: 1, pass: item.pass + 1}

		return append(queue, next)
	}

	return queue
}

// releaseDevice returns the attempt's device to the pool, retires it when it
// stopped answering, and power-cycles it when reboot-per-module is set.
func (s *Scheduler) releaseDevice(ctx context.Context, task *models.Task, msg settled) {
	if msg.dev == nil {
		return
	}

	if msg.res.DeviceLost {
		s.registry.MarkOffline(msg.dev.Serial)

		return
	}

	if task.RebootPerModule {
		// The registry re-adds the device as Idle once it answers again;
		// run it off the loop so other modules keep dispatching meanwhile.
		s.rebooting.Add(1)
		s.rebootWG.Add(1)

		go func(sn string) {
			defer s.rebooting.Add(-1)
			defer s.rebootWG.Done()

			if err := s.registry.RebootAndReacquire(ctx, sn); err != nil {
				s.logger.Warn().Err(err).Str("device", sn).Msg("Device not reacquired after reboot")
			}
		}(msg.dev.Serial)

		return
	}

	s.registry.Release(msg.dev.Serial)
}

// drain waits out in-flight attempts for the grace period after a stop
// request, recording the ones that make it.
func (s *Scheduler) drain(
	agg *aggregator.Aggregator,
	settledCh <-chan settled,
	queue []*queueItem,
	inFlight *int,
) []*queueItem {
	deadline := time.NewTimer(s.cfg.GracePeriod)
	defer deadline.Stop()

	for *inFlight > 0 {
		select {
		case msg := <-settledCh:
			*inFlight--

			item := msg.item
			item.attempts = append(item.attempts, msg.res.Attempt)
			item.files = append(item.files, msg.res.Artifacts...)

			if msg.dev != nil {
				if msg.res.DeviceLost {
					s.registry.MarkOffline(msg.dev.Serial)
				} else {
					s.registry.Release(msg.dev.Serial)
				}
			}

			agg.Record(item.module.Name, item.attempts, msg.res.Attempt.Outcome, item.files)
		case <-deadline.C:
			s.logger.Warn().
				Int("in_flight", *inFlight).
				Msg("Grace period expired with attempts still running")

			return queue
		}
	}

	return queue
}

func (s *Scheduler) finalizeUnavailable(agg *aggregator.Aggregator, item *queueItem) {
	s.logger.Warn().
		Str("module", item.module.Name).
		Str("label", string(item.module.Label)).
		Msg("No device can serve module, finalizing as unavailable")

	agg.Record(item.module.Name, item.attempts, models.OutcomeUnavailable, item.files)
}
