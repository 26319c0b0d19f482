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

package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

const (
	serialReadChunk   = 512
	serialIdleWindow  = 500 * time.Millisecond
	serialRebootDelay = 2 * time.Second
)

// serialAdapter drives a lite device over its serial console. File transfer
// is not part of the serial capability; lite modules carry their test
// binaries in the device image and run with an empty artifact set.
type serialAdapter struct {
	deviceSN string
	params   *models.SerialParams
	logger   logger.Logger

	mu   sync.Mutex
	port serial.Port
}

func newSerialAdapter(deviceSN string, params *models.SerialParams, log logger.Logger) *serialAdapter {
	return &serialAdapter{
		deviceSN: deviceSN,
		params:   params,
		logger:   log,
	}
}

func (a *serialAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: a.params.BaudRate,
		DataBits: a.params.DataBits,
		StopBits: stopBits(a.params.StopBits),
		Parity:   serial.NoParity,
	}

	port, err := serial.Open(a.params.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", a.params.Port, err)
	}

	if err := port.SetReadTimeout(serialIdleWindow); err != nil {
		_ = port.Close()

		return fmt.Errorf("failed to set read timeout on %s: %w", a.params.Port, err)
	}

	a.port = port

	a.logger.Debug().
		Str("device", a.deviceSN).
		Str("port", a.params.Port).
		Int("baud", a.params.BaudRate).
		Msg("Serial port opened")

	return nil
}

func (a *serialAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil
	}

	err := a.port.Close()
	a.port = nil

	return err
}

// SendCommand writes one console command and drains the output until the
// line goes idle or the context expires.
func (a *serialAdapter) SendCommand(ctx context.Context, command string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return "", errNotConnected
	}

	if _, err := a.port.Write([]byte(command + "\r\n")); err != nil {
		return "", fmt.Errorf("failed to write command to %s: %w", a.params.Port, err)
	}

	var out strings.Builder

	buf := make([]byte, serialReadChunk)

	for {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}

		n, err := a.port.Read(buf)
		if err != nil {
			return out.String(), fmt.Errorf("failed to read from %s: %w", a.params.Port, err)
		}

		if n == 0 {
			// Read timeout hit with no data: the console is idle.
			return out.String(), nil
		}

		out.Write(buf[:n])
	}
}

func (*serialAdapter) PushFile(_ context.Context, _, _ string) error {
	return fmt.Errorf("%w: serial push-file", ErrCapabilityNotAvail)
}

func (*serialAdapter) PullFile(_ context.Context, _, _ string) error {
	return fmt.Errorf("%w: serial pull-file", ErrCapabilityNotAvail)
}

func (a *serialAdapter) IsAlive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	if err := a.Connect(probeCtx); err != nil {
		return false
	}

	_, err := a.SendCommand(probeCtx, "")

	return err == nil
}

func (a *serialAdapter) Reboot(ctx context.Context) error {
	if _, err := a.SendCommand(ctx, "reset"); err != nil {
		return err
	}

	time.Sleep(serialRebootDelay)

	return a.Disconnect()
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}

	return serial.OneStopBit
}
