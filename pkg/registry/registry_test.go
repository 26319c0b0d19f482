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

package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

func phoneDescriptors(n int) []models.DeviceDescriptor {
	out := make([]models.DeviceDescriptor, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.DeviceDescriptor{
			Serial: fmt.Sprintf("dev-%d", i),
			Kind:   models.TransportNetwork,
			Label:  models.LabelPhone,
		})
	}

	return out
}

func mockFactory(ctrl *gomock.Controller, behave func(sn string, m *adapter.MockAdapter)) ConnFactory {
	return func(desc *models.DeviceDescriptor, _ logger.Logger) (adapter.Adapter, error) {
		m := adapter.NewMockAdapter(ctrl)
		behave(desc.Serial, m)

		return m, nil
	}
}

func alive(_ string, m *adapter.MockAdapter) {
	m.EXPECT().IsAlive(gomock.Any()).Return(true).AnyTimes()
	m.EXPECT().Reboot(gomock.Any()).Return(nil).AnyTimes()
}

func TestNewRejectsDuplicateSerial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	descriptors := phoneDescriptors(1)
	descriptors = append(descriptors, descriptors[0])

	_, err := New(descriptors, Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate device sn")
}

func TestDiscoverSettlesIdleAndOffline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	factory := mockFactory(ctrl, func(sn string, m *adapter.MockAdapter) {
		m.EXPECT().IsAlive(gomock.Any()).Return(sn != "dev-2").AnyTimes()
	})

	reg, err := New(phoneDescriptors(3), Options{ConnFactory: factory}, logger.NewTestLogger())
	require.NoError(t, err)

	reg.Discover(context.Background())

	states := map[string]models.DeviceState{}
	for _, dev := range reg.Devices() {
		states[dev.Serial] = dev.State
	}

	assert.Equal(t, models.DeviceIdle, states["dev-1"])
	assert.Equal(t, models.DeviceOffline, states["dev-2"])
	assert.Equal(t, models.DeviceIdle, states["dev-3"])
}

func TestAllocateAssignsStableDeviceID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(2), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	dev1, conn1, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	require.NotNil(t, conn1)
	assert.Equal(t, "Phone1", dev1.DeviceID)

	dev2, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	assert.Equal(t, "Phone2", dev2.DeviceID)

	// The pool is exhausted.
	_, _, ok = reg.Allocate(models.LabelPhone)
	assert.False(t, ok)

	// An id sticks to its device across release and re-allocation.
	reg.Release(dev1.Serial)

	again, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	assert.Equal(t, dev1.Serial, again.Serial)
	assert.Equal(t, "Phone1", again.DeviceID)
}

func TestAllocateHonorsLabel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	descriptors := []models.DeviceDescriptor{
		{Serial: "phone-1", Kind: models.TransportUSB, Label: models.LabelPhone},
		{Serial: "watch-1", Kind: models.TransportUSB, Label: models.LabelWatch},
	}

	reg, err := New(descriptors, Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	dev, _, ok := reg.Allocate(models.LabelWatch)
	require.True(t, ok)
	assert.Equal(t, "watch-1", dev.Serial)
	assert.Equal(t, "Watch1", dev.DeviceID)

	_, _, ok = reg.Allocate(models.LabelWatch)
	assert.False(t, ok)
}

func TestAllocateNeverDoubleClaims(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(4), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	// Many goroutines fight over four devices; every successful claim must
	// be unique until released.
	var mu sync.Mutex
	claimed := map[string]int{}

	var wg sync.WaitGroup

	for g := 0; g < 16; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				dev, _, ok := reg.Allocate(models.LabelPhone)
				if !ok {
					continue
				}

				mu.Lock()
				claimed[dev.Serial]++
				over := claimed[dev.Serial] > 1
				mu.Unlock()

				if over {
					t.Error("device claimed twice")
				}

				time.Sleep(time.Millisecond)

				mu.Lock()
				claimed[dev.Serial]--
				mu.Unlock()

				reg.Release(dev.Serial)
			}
		}()
	}

	wg.Wait()
}

func TestDeviceFilterIgnoresUnlistedDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(3), Options{
		DeviceFilter: []string{"dev-2"},
		ConnFactory:  mockFactory(ctrl, alive),
	}, logger.NewTestLogger())
	require.NoError(t, err)

	dev, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	assert.Equal(t, "dev-2", dev.Serial)

	_, _, ok = reg.Allocate(models.LabelPhone)
	assert.False(t, ok)

	// Ignored devices stay ignored even through Release.
	reg.Release("dev-1")

	_, _, ok = reg.Allocate(models.LabelPhone)
	assert.False(t, ok)

	for _, d := range reg.Devices() {
		if d.Serial != "dev-2" {
			assert.Equal(t, models.DeviceIgnored, d.State)
		}
	}
}

func TestMarkBusyRequiresAllocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(1), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	require.Error(t, reg.MarkBusy("dev-1"))
	require.Error(t, reg.MarkBusy("no-such-device"))

	_, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)

	require.NoError(t, reg.MarkBusy("dev-1"))
}

func TestReleaseKeepsOfflineDeviceOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(1), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	reg.MarkOffline("dev-1")
	reg.Release("dev-1")

	_, _, ok := reg.Allocate(models.LabelPhone)
	assert.False(t, ok)
	assert.False(t, reg.HasCandidate(models.LabelPhone))
}

func TestReleaseSignalsIdleEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(1), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	dev, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)

	reg.Release(dev.Serial)

	select {
	case <-reg.IdleEvents():
	case <-time.After(time.Second):
		t.Fatal("no idle event after release")
	}
}

func TestHasCandidateCountsBusyDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(1), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	assert.True(t, reg.HasCandidate(models.LabelPhone))
	assert.False(t, reg.HasCandidate(models.LabelWatch))

	dev, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	require.NoError(t, reg.MarkBusy(dev.Serial))

	// Busy still counts: the device may come back after the attempt.
	assert.True(t, reg.HasCandidate(models.LabelPhone))

	reg.MarkOffline(dev.Serial)
	assert.False(t, reg.HasCandidate(models.LabelPhone))
}

func TestRebootAndReacquireRestoresIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	factory := mockFactory(ctrl, func(_ string, m *adapter.MockAdapter) {
		m.EXPECT().Reboot(gomock.Any()).Return(nil)
		m.EXPECT().IsAlive(gomock.Any()).Return(true).AnyTimes()
	})

	reg, err := New(phoneDescriptors(1), Options{
		RebootWait:    time.Second,
		ProbeInterval: 10 * time.Millisecond,
		ConnFactory:   factory,
	}, logger.NewTestLogger())
	require.NoError(t, err)

	dev, _, ok := reg.Allocate(models.LabelPhone)
	require.True(t, ok)
	require.NoError(t, reg.MarkBusy(dev.Serial))

	require.NoError(t, reg.RebootAndReacquire(context.Background(), dev.Serial))

	assert.Equal(t, models.DeviceIdle, reg.Devices()[0].State)

	select {
	case <-reg.IdleEvents():
	case <-time.After(time.Second):
		t.Fatal("no idle event after reacquire")
	}
}

func TestRebootAndReacquireTimesOutToOffline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	factory := mockFactory(ctrl, func(_ string, m *adapter.MockAdapter) {
		m.EXPECT().Reboot(gomock.Any()).Return(nil)
		m.EXPECT().IsAlive(gomock.Any()).Return(false).AnyTimes()
	})

	reg, err := New(phoneDescriptors(1), Options{
		RebootWait:    50 * time.Millisecond,
		ProbeInterval: 10 * time.Millisecond,
		ConnFactory:   factory,
	}, logger.NewTestLogger())
	require.NoError(t, err)

	err = reg.RebootAndReacquire(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not come back")
	assert.Equal(t, models.DeviceOffline, reg.Devices()[0].State)
}

func TestConnReturnsBoundAdapter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg, err := New(phoneDescriptors(1), Options{ConnFactory: mockFactory(ctrl, alive)}, logger.NewTestLogger())
	require.NoError(t, err)

	conn, err := reg.Conn("dev-1")
	require.NoError(t, err)
	assert.NotNil(t, conn)

	_, err = reg.Conn("no-such-device")
	require.Error(t, err)
}
