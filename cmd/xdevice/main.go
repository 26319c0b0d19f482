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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openharmony/test-xdevice/pkg/config"
	"github.com/openharmony/test-xdevice/pkg/lifecycle"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
	"github.com/openharmony/test-xdevice/pkg/registry"
	"github.com/openharmony/test-xdevice/pkg/scheduler"
	"github.com/openharmony/test-xdevice/pkg/testkit"
	"github.com/openharmony/test-xdevice/pkg/version"
)

var (
	errFailedToLoadEnv  = errors.New("failed to load environment config")
	errFailedToLoadTask = errors.New("failed to load task file")
	errNoDevices        = errors.New("environment config lists no devices")
	errTaskHadFailures  = errors.New("task finished with failed modules")
)

// envConfig is the user environment file: the device pool and logging setup.
type envConfig struct {
	Devices       []models.DeviceDescriptor `json:"devices"`
	RebootWait    models.Duration           `json:"reboot_wait,omitempty"`
	ProbeInterval models.Duration           `json:"probe_interval,omitempty"`
	Logging       *logger.Config            `json:"logging,omitempty"`
}

func (c *envConfig) Validate() error {
	if len(c.Devices) == 0 {
		return errNoDevices
	}

	for i, d := range c.Devices {
		if d.Serial == "" {
			return fmt.Errorf("device at index %d has no sn", i)
		}
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	envPath := flag.String("env", "/etc/xdevice/env.json", "Path to environment config file")
	taskPath := flag.String("task", "", "Path to task file")
	reportPath := flag.String("report", "", "Report directory, overrides the task file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("xdevice " + version.GetFullVersion())

		return nil
	}

	if *taskPath == "" {
		return errors.New("a task file is required, see -task")
	}

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var env envConfig

	if err := cfgLoader.LoadAndValidate(ctx, *envPath, &env); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadEnv, err)
	}

	var task models.Task

	if err := cfgLoader.LoadAndValidate(ctx, *taskPath, &task); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadTask, err)
	}

	applyTaskDefaults(&task, *reportPath)

	logConfig := env.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	xdeviceLogger, err := lifecycle.InitializeLogger(ctx, "xdevice", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	xdeviceLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("task", *taskPath).
		Msg("Starting xdevice")

	reg, err := registry.New(env.Devices, registry.Options{
		DeviceFilter:  task.DeviceFilter,
		RebootWait:    time.Duration(env.RebootWait),
		ProbeInterval: time.Duration(env.ProbeInterval),
	}, xdeviceLogger)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !task.DryRun {
		reg.Discover(runCtx)
	}

	provider := testkit.NewFileProvider(task.TestCasesPath)
	sched := scheduler.New(reg, provider, scheduler.Config{}, xdeviceLogger)

	report := sched.Run(runCtx, &task)

	if err := writeReport(&task, report); err != nil {
		return err
	}

	return summarize(xdeviceLogger, report)
}

func applyTaskDefaults(task *models.Task, reportOverride string) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	if reportOverride != "" {
		task.ReportPath = reportOverride
	}

	if task.ReportPath == "" {
		task.ReportPath = filepath.Join("reports", time.Now().Format("2006-01-02-15-04-05"))
	}

	if task.TestCasesPath == "" {
		task.TestCasesPath = "testcases"
	}
}

func writeReport(task *models.Task, report *models.Report) error {
	if err := os.MkdirAll(task.ReportPath, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(task.ReportPath, "summary_report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// summarize logs the per-outcome counts and maps them to the exit status.
func summarize(log logger.Logger, report *models.Report) error {
	counts := map[models.Outcome]int{}
	for _, rec := range report.Records {
		counts[rec.Outcome]++
	}

	log.Info().
		Int("total", len(report.Records)).
		Int("passed", counts[models.OutcomePass]+counts[models.OutcomeDone]).
		Int("failed", counts[models.OutcomeFail]).
		Int("blocked", counts[models.OutcomeBlocked]).
		Int("unavailable", counts[models.OutcomeUnavailable]).
		Msg("Task summary")

	if counts[models.OutcomeFail] > 0 || counts[models.OutcomeBlocked] > 0 || counts[models.OutcomeUnavailable] > 0 {
		return errTaskHadFailures
	}

	return nil
}
