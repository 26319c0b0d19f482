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

// Package aggregator collects per-module outcomes into one ordered report.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

// Aggregator serializes concurrent result records and produces the final
// report in task-declared module order, independent of completion order.
//
// A record for a module outside the task list, or a Finalize call with a
// module still missing, is a broken scheduler contract and panics.
type Aggregator struct {
	mu        sync.Mutex
	taskID    string
	order     []string
	known     map[string]bool
	records   map[string]*models.ResultRecord
	startTime time.Time
	finalized bool

	logger logger.Logger
}

// New seeds the aggregator with the task's module list.
func New(task *models.Task, log logger.Logger) *Aggregator {
	a := &Aggregator{
		taskID:    task.ID,
		known:     make(map[string]bool, len(task.Modules)),
		records:   make(map[string]*models.ResultRecord, len(task.Modules)),
		startTime: time.Now(),
		logger:    log,
	}

	for _, m := range task.Modules {
		if !a.known[m.Name] {
			a.known[m.Name] = true
			a.order = append(a.order, m.Name)
		}
	}

	return a
}

// Record inserts or updates a module's result. A later call for the same
// module (repeat pass or retry) appends to the attempt history; the latest
// attempt's outcome is authoritative, the full history stays for diagnosis.
func (a *Aggregator) Record(module string, attempts []models.Attempt, outcome models.Outcome, artifacts []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.known[module] {
		panic(fmt.Sprintf("aggregator: record for unknown module %q", module))
	}

	if a.finalized {
		panic(fmt.Sprintf("aggregator: record for %q after finalize", module))
	}

	rec, ok := a.records[module]
	if !ok {
		rec = &models.ResultRecord{Module: module}
		a.records[module] = rec
	}

	rec.Attempts = append(rec.Attempts, attempts...)
	rec.Artifacts = append(rec.Artifacts, artifacts...)
	rec.Outcome = outcome

	a.logger.Debug().
		Str("module", module).
		Str("outcome", string(outcome)).
		Int("attempts", len(rec.Attempts)).
		Msg("Result recorded")
}

// HasRecord reports whether the module already settled at least once.
func (a *Aggregator) HasRecord(module string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.records[module]

	return ok
}

// Finalize seals the report. Exactly one result record must exist per
// module of the original task list.
func (a *Aggregator) Finalize() *models.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		panic("aggregator: finalize called twice")
	}

	report := &models.Report{
		TaskID:    a.taskID,
		StartTime: a.startTime,
		EndTime:   time.Now(),
		Records:   make([]*models.ResultRecord, 0, len(a.order)),
	}

	for _, module := range a.order {
		rec, ok := a.records[module]
		if !ok {
			panic(fmt.Sprintf("aggregator: no result record for module %q", module))
		}

		report.Records = append(report.Records, rec)
	}

	a.finalized = true

	return report
}
