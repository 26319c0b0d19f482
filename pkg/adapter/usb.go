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
	"os/exec"
	"strings"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

const hdcBinary = "hdc"

// usbAdapter drives a usb-hdc connected device through the hdc connector
// binary. The connector owns the wire protocol; this adapter only shells
// out to it, so Connect/Disconnect are session no-ops.
type usbAdapter struct {
	deviceSN string
	params   *models.USBParams
	logger   logger.Logger
}

func newUSBAdapter(deviceSN string, params *models.USBParams, log logger.Logger) *usbAdapter {
	if params == nil {
		params = &models.USBParams{}
	}

	return &usbAdapter{
		deviceSN: deviceSN,
		params:   params,
		logger:   log,
	}
}

func (*usbAdapter) Connect(_ context.Context) error { return nil }

func (*usbAdapter) Disconnect() error { return nil }

func (a *usbAdapter) SendCommand(ctx context.Context, command string) (string, error) {
	return a.hdc(ctx, "shell", command)
}

func (a *usbAdapter) PushFile(ctx context.Context, local, remote string) error {
	_, err := a.hdc(ctx, "file", "send", local, remote)

	return err
}

func (a *usbAdapter) PullFile(ctx context.Context, remote, local string) error {
	_, err := a.hdc(ctx, "file", "recv", remote, local)

	return err
}

func (a *usbAdapter) IsAlive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	out, err := a.hdcGlobal(probeCtx, "list", "targets")
	if err != nil {
		return false
	}

	return strings.Contains(out, a.deviceSN)
}

func (a *usbAdapter) Reboot(ctx context.Context) error {
	_, err := a.hdc(ctx, "shell", "reboot")

	return err
}

// hdc runs a connector command scoped to this device.
func (a *usbAdapter) hdc(ctx context.Context, args ...string) (string, error) {
	full := append(a.connectorArgs(), "-t", a.deviceSN)
	full = append(full, args...)

	return runHdc(ctx, a.deviceSN, full)
}

// hdcGlobal runs a connector command that is not scoped to one device.
func (a *usbAdapter) hdcGlobal(ctx context.Context, args ...string) (string, error) {
	full := append(a.connectorArgs(), args...)

	return runHdc(ctx, a.deviceSN, full)
}

func (a *usbAdapter) connectorArgs() []string {
	if a.params.ConnectorAddress != "" {
		return []string{"-s", a.params.ConnectorAddress}
	}

	return nil
}

func runHdc(ctx context.Context, deviceSN string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, hdcBinary, args...) // #nosec G204 - args are built from config, not user text

	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("hdc %s failed for %s: %w", strings.Join(args, " "), deviceSN, err)
	}

	return string(out), nil
}
