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

//go:generate mockgen -destination=mock_scheduler.go -package=scheduler github.com/openharmony/test-xdevice/pkg/scheduler DeviceRegistry

package scheduler

import (
	"context"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/models"
)

// DeviceRegistry is the slice of the registry the scheduler depends on.
type DeviceRegistry interface {
	Allocate(label models.DeviceLabel) (*models.Device, adapter.Adapter, bool)
	MarkBusy(sn string) error
	Release(sn string)
	MarkOffline(sn string)
	RebootAndReacquire(ctx context.Context, sn string) error
	IdleEvents() <-chan struct{}
	HasCandidate(label models.DeviceLabel) bool
}
