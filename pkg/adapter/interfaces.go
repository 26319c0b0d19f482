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

//go:generate mockgen -destination=mock_adapter.go -package=adapter github.com/openharmony/test-xdevice/pkg/adapter Adapter

package adapter

import "context"

// Adapter presents one capability set over every supported transport.
// Implementations hide the transport's handshake and framing; callers may
// retry a failed call, but a partial PushFile leaves the remote side in an
// unknown state and the whole attempt must be retried.
type Adapter interface {
	// Connect establishes the transport session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect() error

	// SendCommand runs one command on the device and returns its output.
	SendCommand(ctx context.Context, command string) (string, error)

	// PushFile transfers a local file to the device.
	PushFile(ctx context.Context, local, remote string) error

	// PullFile transfers a remote file from the device.
	PullFile(ctx context.Context, remote, local string) error

	// IsAlive is a bounded-timeout liveness probe.
	IsAlive(ctx context.Context) bool

	// Reboot power-cycles the device. The session is invalid afterwards.
	Reboot(ctx context.Context) error
}
