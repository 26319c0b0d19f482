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

import (
	"errors"
	"fmt"
)

var (
	errNoModules     = errors.New("task has no modules")
	errUnnamedModule = errors.New("module has no name")
)

// Module is a named, schedulable unit of test work requiring a device of a
// given label. TestCases are opaque to the scheduler; they are resolved by
// the test-kit provider at prepare time.
type Module struct {
	Name      string      `json:"name"`
	Label     DeviceLabel `json:"label"`
	TestCases []string    `json:"test_cases,omitempty"`
}

// Task is one user-requested run of one or more modules with its policy
// options. It is built once by the command layer and immutable afterwards.
type Task struct {
	ID      string   `json:"id"`
	Modules []Module `json:"modules"`

	Concurrency     int      `json:"concurrency"`
	Retry           int      `json:"retry"`
	Repeat          int      `json:"repeat"`
	RebootPerModule bool     `json:"reboot_per_module"`
	DryRun          bool     `json:"dry_run"`
	CheckDevice     bool     `json:"check_device"`
	DeviceFilter    []string `json:"device_sn,omitempty"`
	ModuleTimeout   Duration `json:"module_timeout"`

	ReportPath    string `json:"report_path,omitempty"`
	ResourcePath  string `json:"resource_path,omitempty"`
	TestCasesPath string `json:"testcases_path,omitempty"`
}

// Validate checks the task is runnable as loaded.
func (t *Task) Validate() error {
	if len(t.Modules) == 0 {
		return errNoModules
	}

	for i, m := range t.Modules {
		if m.Name == "" {
			return fmt.Errorf("%w: index %d", errUnnamedModule, i)
		}
	}

	if t.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", t.Concurrency)
	}

	if t.Retry < 0 {
		return fmt.Errorf("retry must not be negative, got %d", t.Retry)
	}

	if t.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative, got %d", t.Repeat)
	}

	return nil
}
