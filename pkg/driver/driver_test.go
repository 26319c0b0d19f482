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

package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
	"github.com/openharmony/test-xdevice/pkg/testkit"
)

type stubProvider struct {
	kit *testkit.Kit
	err error
}

func (p *stubProvider) Resolve(context.Context, models.Module) (*testkit.Kit, error) {
	return p.kit, p.err
}

func fullKit() *testkit.Kit {
	return &testkit.Kit{
		Module:     "CalcTest",
		Artifacts:  []string{"/testcases/CalcTest/CalcTest"},
		RemoteDir:  "/data/local/tmp/CalcTest",
		RunCommand: "/data/local/tmp/CalcTest/CalcTest",
		Results:    []string{"/data/local/tmp/CalcTest/CalcTest.xml"},
	}
}

func newRequest(conn adapter.Adapter) *Request {
	return &Request{
		Module:      models.Module{Name: "CalcTest", Label: models.LabelPhone},
		Device:      &models.Device{Serial: "dev-1", Label: models.LabelPhone, DeviceID: "Phone1"},
		Conn:        conn,
		Number:      1,
		Pass:        1,
		Timeout:     5 * time.Second,
		ArtifactDir: "/tmp/report/log/CalcTest",
	}
}

func TestRunHappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	gomock.InOrder(
		conn.EXPECT().IsAlive(gomock.Any()).Return(true),
		conn.EXPECT().Connect(gomock.Any()).Return(nil),
		conn.EXPECT().PushFile(gomock.Any(), "/testcases/CalcTest/CalcTest", "/data/local/tmp/CalcTest/CalcTest").Return(nil),
		conn.EXPECT().SendCommand(gomock.Any(), "/data/local/tmp/CalcTest/CalcTest").Return("12 tests passed", nil),
		conn.EXPECT().PullFile(gomock.Any(), "/data/local/tmp/CalcTest/CalcTest.xml", "/tmp/report/log/CalcTest/CalcTest.xml").Return(nil),
		conn.EXPECT().SendCommand(gomock.Any(), "rm -rf /data/local/tmp/CalcTest").Return("", nil),
		conn.EXPECT().IsAlive(gomock.Any()).Return(true),
		conn.EXPECT().Disconnect().Return(nil),
	)

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomePass, res.Attempt.Outcome)
	assert.False(t, res.DeviceLost)
	assert.Equal(t, []string{"/tmp/report/log/CalcTest/CalcTest.xml"}, res.Artifacts)

	assert.NotEmpty(t, res.Attempt.ID)
	assert.Equal(t, "CalcTest", res.Attempt.Module)
	assert.Equal(t, "dev-1", res.Attempt.DeviceSN)
	assert.Equal(t, "Phone1", res.Attempt.DeviceID)
	assert.False(t, res.Attempt.EndTime.Before(res.Attempt.StartTime))
}

func TestRunDryRunNeverTouchesAdapter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations registered: any adapter call fails the test.
	conn := adapter.NewMockAdapter(ctrl)

	req := newRequest(conn)
	req.DryRun = true

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), req)

	assert.Equal(t, models.OutcomeDone, res.Attempt.Outcome)
	assert.Empty(t, res.Artifacts)
}

func TestRunKitResolveFailureBlocks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	drv := New(&stubProvider{err: errors.New("testcases dir unreadable")}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomeBlocked, res.Attempt.Outcome)
	assert.Contains(t, res.Attempt.Error, "testcases dir unreadable")
	assert.False(t, res.DeviceLost)
}

func TestRunUnresponsiveDeviceFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)
	conn.EXPECT().IsAlive(gomock.Any()).Return(false)

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomeFail, res.Attempt.Outcome)
	assert.True(t, res.DeviceLost)
}

func TestRunPushFailureCleansUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Connect(gomock.Any()).Return(nil)
	conn.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("sftp: no space left"))
	conn.EXPECT().SendCommand(gomock.Any(), "rm -rf /data/local/tmp/CalcTest").Return("", nil)
	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Disconnect().Return(nil)

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomeFail, res.Attempt.Outcome)
	assert.Contains(t, res.Attempt.Error, "no space left")
	assert.False(t, res.DeviceLost)
	assert.Empty(t, res.Artifacts)
}

func TestRunCommandErrorStillCollectsResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Connect(gomock.Any()).Return(nil)
	conn.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().SendCommand(gomock.Any(), "/data/local/tmp/CalcTest/CalcTest").Return("", errors.New("2 tests failed"))
	conn.EXPECT().PullFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().SendCommand(gomock.Any(), "rm -rf /data/local/tmp/CalcTest").Return("", nil)
	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Disconnect().Return(nil)

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomeFail, res.Attempt.Outcome)
	assert.Contains(t, res.Attempt.Error, "2 tests failed")

	// The result file still came back for diagnosis.
	assert.Equal(t, []string{"/tmp/report/log/CalcTest/CalcTest.xml"}, res.Artifacts)
}

func TestRunTimeoutSkipsCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Connect(gomock.Any()).Return(nil)
	conn.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().SendCommand(gomock.Any(), "/data/local/tmp/CalcTest/CalcTest").DoAndReturn(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()

			return "", ctx.Err()
		})
	conn.EXPECT().SendCommand(gomock.Any(), "rm -rf /data/local/tmp/CalcTest").Return("", nil)
	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Disconnect().Return(nil)

	req := newRequest(conn)
	req.Timeout = 20 * time.Millisecond

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), req)

	assert.Equal(t, models.OutcomeFail, res.Attempt.Outcome)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Attempt.Error)

	// No PullFile expectation: a timed-out module is never collected.
	assert.Empty(t, res.Artifacts)
	assert.False(t, res.DeviceLost)
}

func TestRunCollectFailureFailsAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := adapter.NewMockAdapter(ctrl)

	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Connect(gomock.Any()).Return(nil)
	conn.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().SendCommand(gomock.Any(), "/data/local/tmp/CalcTest/CalcTest").Return("ok", nil)
	conn.EXPECT().PullFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("sftp: file does not exist"))
	conn.EXPECT().SendCommand(gomock.Any(), "rm -rf /data/local/tmp/CalcTest").Return("", nil)
	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Disconnect().Return(nil)

	drv := New(&stubProvider{kit: fullKit()}, logger.NewTestLogger())
	res := drv.Run(context.Background(), newRequest(conn))

	assert.Equal(t, models.OutcomeFail, res.Attempt.Outcome)
	assert.Contains(t, res.Attempt.Error, "file does not exist")
}

func TestRunImageResidentKitSkipsTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No artifacts and no result files: only the run command is issued.
	kit := &testkit.Kit{Module: "WifiIotSuite", RunCommand: "WifiIotSuite"}

	conn := adapter.NewMockAdapter(ctrl)

	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Connect(gomock.Any()).Return(nil)
	conn.EXPECT().SendCommand(gomock.Any(), "WifiIotSuite").Return("all cases passed", nil)
	conn.EXPECT().IsAlive(gomock.Any()).Return(true)
	conn.EXPECT().Disconnect().Return(nil)

	req := newRequest(conn)
	req.Module = models.Module{Name: "WifiIotSuite", Label: models.LabelWifiIot}

	drv := New(&stubProvider{kit: kit}, logger.NewTestLogger())
	res := drv.Run(context.Background(), req)

	assert.Equal(t, models.OutcomePass, res.Attempt.Outcome)
	assert.Empty(t, res.Artifacts)
}
