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

// Package driver executes one module attempt on one allocated device.
package driver

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
	"github.com/openharmony/test-xdevice/pkg/testkit"
)

// attemptState is one stage of the per-attempt state machine. Retry is not a
// state here: the scheduler drives the Failed -> Prepared edge by
// re-dispatching the module while attempts remain.
type attemptState string

const (
	statePrepared     attemptState = "prepared"
	stateDistributing attemptState = "distributing"
	stateExecuting    attemptState = "executing"
	stateCollecting   attemptState = "collecting"
	stateCleanup      attemptState = "cleanup"
	stateDone         attemptState = "done"
	stateFailed       attemptState = "failed"
)

const defaultModuleTimeout = 10 * time.Minute

// errDeviceUnresponsive marks an attempt that lost its device, as opposed to
// a test failure on a healthy device.
var errDeviceUnresponsive = errors.New("device unresponsive")

// Request describes one attempt: the module, the already-allocated device,
// its connection, and the attempt coordinates within the task.
type Request struct {
	Module  models.Module
	Device  *models.Device
	Conn    adapter.Adapter
	Number  int
	Pass    int
	Timeout time.Duration
	DryRun  bool

	// ArtifactDir is the local directory result files are pulled into.
	ArtifactDir string
}

// Result is the settled output of one attempt.
type Result struct {
	Attempt   models.Attempt
	Artifacts []string

	// DeviceLost is set when the device stopped answering; the scheduler
	// marks it offline and retries on another device if attempts remain.
	DeviceLost bool
}

// Driver owns the prepare -> distribute -> execute -> collect -> cleanup
// lifecycle of module attempts.
type Driver struct {
	provider testkit.Provider
	logger   logger.Logger
}

// New creates a driver backed by the given test-kit provider.
func New(provider testkit.Provider, log logger.Logger) *Driver {
	return &Driver{
		provider: provider,
		logger:   log,
	}
}

// Run executes one full attempt and always returns a settled result; errors
// never escape as Go errors, they become the attempt's outcome.
func (d *Driver) Run(ctx context.Context, req *Request) Result {
	att := models.Attempt{
		ID:        uuid.New().String(),
		Module:    req.Module.Name,
		Number:    req.Number,
		Pass:      req.Pass,
		StartTime: time.Now(),
	}

	if req.Device != nil {
		att.DeviceSN = req.Device.Serial
		att.DeviceID = req.Device.DeviceID
	}

	res := d.run(ctx, req, att)
	res.Attempt.EndTime = time.Now()

	d.logger.Info().
		Str("module", req.Module.Name).
		Int("attempt", req.Number).
		Str("outcome", string(res.Attempt.Outcome)).
		Dur("elapsed", res.Attempt.EndTime.Sub(res.Attempt.StartTime)).
		Msg("Attempt settled")

	return res
}

func (d *Driver) run(ctx context.Context, req *Request, att models.Attempt) Result {
	state := statePrepared

	kit, err := d.provider.Resolve(ctx, req.Module)
	if err != nil {
		d.logger.Error().Err(err).Str("module", req.Module.Name).Msg("Failed to resolve test kit")

		att.Outcome = models.OutcomeBlocked
		att.Error = err.Error()

		return Result{Attempt: att}
	}

	if req.DryRun {
		// The state machine short-circuits after Prepared; the device and
		// adapter are never touched.
		att.Outcome = models.OutcomeDone

		return Result{Attempt: att}
	}

	if !req.Conn.IsAlive(ctx) {
		return d.failed(att, state, errDeviceUnresponsive, true)
	}

	if err := req.Conn.Connect(ctx); err != nil {
		return d.failed(att, state, err, false)
	}
	defer func() { _ = req.Conn.Disconnect() }()

	state = stateDistributing

	if err := d.distribute(ctx, req, kit); err != nil {
		d.cleanup(ctx, req, kit)

		return d.failed(att, state, err, !req.Conn.IsAlive(ctx))
	}

	state = stateExecuting

	execOutcome, execErr := d.execute(ctx, req, kit)
	if execErr != nil && errors.Is(execErr, context.DeadlineExceeded) {
		// Timed-out execution is a plain Fail for this attempt; go straight
		// to cleanup, the device may still be draining output.
		d.cleanup(ctx, req, kit)

		att.Outcome = models.OutcomeFail
		att.Error = execErr.Error()

		return Result{Attempt: att, DeviceLost: !req.Conn.IsAlive(ctx)}
	}

	state = stateCollecting

	artifacts, collectErr := d.collect(ctx, req, kit)

	state = stateCleanup

	d.cleanup(ctx, req, kit)

	if collectErr != nil {
		res := d.failed(att, state, collectErr, !req.Conn.IsAlive(ctx))
		res.Artifacts = artifacts

		return res
	}

	state = stateDone

	att.Outcome = execOutcome
	if execErr != nil {
		att.Error = execErr.Error()
	}

	d.logger.Debug().Str("module", req.Module.Name).Str("state", string(state)).Msg("Attempt finished")

	return Result{
		Attempt:    att,
		Artifacts:  artifacts,
		DeviceLost: !req.Conn.IsAlive(ctx),
	}
}

func (d *Driver) distribute(ctx context.Context, req *Request, kit *testkit.Kit) error {
	for _, artifact := range kit.Artifacts {
		remote := path.Join(kit.RemoteDir, filepath.Base(artifact))

		d.logger.Debug().
			Str("module", req.Module.Name).
			Str("artifact", artifact).
			Str("remote", remote).
			Msg("Pushing artifact")

		if err := req.Conn.PushFile(ctx, artifact, remote); err != nil {
			return err
		}
	}

	return nil
}

// execute issues the run command bounded by the per-module timeout. A
// command error on a live device is a test failure, not a transport error.
func (d *Driver) execute(ctx context.Context, req *Request, kit *testkit.Kit) (models.Outcome, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultModuleTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := req.Conn.SendCommand(execCtx, kit.RunCommand)
	if err != nil {
		if execCtx.Err() != nil {
			return models.OutcomeFail, context.DeadlineExceeded
		}

		return models.OutcomeFail, err
	}

	d.logger.Trace().Str("module", req.Module.Name).Str("output", out).Msg("Run command output")

	return models.OutcomePass, nil
}

func (d *Driver) collect(ctx context.Context, req *Request, kit *testkit.Kit) ([]string, error) {
	var artifacts []string

	for _, remote := range kit.Results {
		local := filepath.Join(req.ArtifactDir, filepath.Base(remote))

		if err := req.Conn.PullFile(ctx, remote, local); err != nil {
			return artifacts, err
		}

		artifacts = append(artifacts, local)
	}

	return artifacts, nil
}

// cleanup removes distributed artifacts best-effort; failures are logged and
// never escalate or block reporting.
func (d *Driver) cleanup(ctx context.Context, req *Request, kit *testkit.Kit) {
	if len(kit.Artifacts) == 0 {
		return
	}

	if _, err := req.Conn.SendCommand(ctx, "rm -rf "+kit.RemoteDir); err != nil {
		d.logger.Warn().
			Err(err).
			Str("module", req.Module.Name).
			Str("remote", kit.RemoteDir).
			Msg("Cleanup failed")
	}
}

func (d *Driver) failed(att models.Attempt, state attemptState, err error, deviceLost bool) Result {
	d.logger.Warn().
		Err(err).
		Str("module", att.Module).
		Str("state", string(state)).
		Bool("device_lost", deviceLost).
		Msg("Attempt failed")

	att.Outcome = models.OutcomeFail
	att.Error = err.Error()

	return Result{Attempt: att, DeviceLost: deviceLost}
}
