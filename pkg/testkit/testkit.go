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

// Package testkit resolves module names to runnable test artifacts.
package testkit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/openharmony/test-xdevice/pkg/models"
)

const defaultRemoteRoot = "/data/local/tmp"

// Kit is the resolved execution material of one module: the artifacts to
// distribute, the command that runs them, and the result files to collect.
type Kit struct {
	Module     string
	Artifacts  []string
	RemoteDir  string
	RunCommand string
	Results    []string
}

// Provider supplies the kit for a module. The driver calls it exactly once
// per prepared attempt.
type Provider interface {
	Resolve(ctx context.Context, module models.Module) (*Kit, error)
}

// FileProvider resolves kits from a test-cases directory on disk. Each
// module owns the subdirectory named after it; every regular file in it is
// an artifact, and the module's binary is the run command. A module without
// a subdirectory runs image-resident cases with an empty artifact set.
type FileProvider struct {
	root string
}

// NewFileProvider creates a provider rooted at the task's test-cases path.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

func (p *FileProvider) Resolve(_ context.Context, module models.Module) (*Kit, error) {
	remoteDir := path.Join(defaultRemoteRoot, module.Name)

	kit := &Kit{
		Module:     module.Name,
		RemoteDir:  remoteDir,
		RunCommand: path.Join(remoteDir, module.Name),
		Results:    []string{path.Join(remoteDir, module.Name+".xml")},
	}

	moduleDir := filepath.Join(p.root, module.Name)

	info, err := os.Stat(moduleDir)
	if os.IsNotExist(err) {
		// Image-resident module: the run command is issued on the device
		// console without distributing anything first.
		kit.RunCommand = module.Name
		kit.Results = nil

		return kit, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to resolve module %s: %w", module.Name, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("module path %s is not a directory", moduleDir)
	}

	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list module %s: %w", module.Name, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		kit.Artifacts = append(kit.Artifacts, filepath.Join(moduleDir, entry.Name()))
	}

	return kit, nil
}
