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

package models

import "time"

// Outcome is the terminal classification of an attempt or module.
type Outcome string

const (
	OutcomePass        Outcome = "pass"
	OutcomeFail        Outcome = "fail"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeUnavailable Outcome = "unavailable"

	// OutcomeDone is recorded for dry-run attempts that never touch a device.
	OutcomeDone Outcome = "done"
)

// Attempt is one execution of a module on a device. It is owned by the
// driver while running and read-only once the outcome is recorded.
type Attempt struct {
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	DeviceSN  string    `json:"device_sn,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Number    int       `json:"number"`
	Pass      int       `json:"pass"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// ResultRecord is the per-module final outcome with the full attempt history
// and the log artifacts pulled from the device.
type ResultRecord struct {
	Module    string    `json:"module"`
	Outcome   Outcome   `json:"outcome"`
	Attempts  []Attempt `json:"attempts"`
	Artifacts []string  `json:"artifacts,omitempty"`
}

// Report is the task's complete, ordered collection of result records, keyed
// by module name. It is finalized exactly once and immutable afterwards.
type Report struct {
	TaskID    string          `json:"task_id"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Records   []*ResultRecord `json:"records"`
}

// Record returns the result record for a module, or nil.
func (r *Report) Record(module string) *ResultRecord {
	for _, rec := range r.Records {
		if rec.Module == module {
			return rec
		}
	}

	return nil
}
