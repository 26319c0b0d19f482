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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

func TestNewSelectsTransport(t *testing.T) {
	log := logger.NewTestLogger()

	tests := []struct {
		name    string
		desc    models.DeviceDescriptor
		wantErr bool
	}{
		{
			name: "network device",
			desc: models.DeviceDescriptor{
				Serial:  "net-1",
				Kind:    models.TransportNetwork,
				Label:   models.LabelIPCamera,
				Network: &models.NetworkParams{Address: "192.168.1.20", Port: 22, Username: "root"},
			},
		},
		{
			name: "serial device",
			desc: models.DeviceDescriptor{
				Serial:  "com-1",
				Kind:    models.TransportSerial,
				Label:   models.LabelWifiIot,
				SerialP: &models.SerialParams{Port: "/dev/ttyUSB0", BaudRate: 115200},
			},
		},
		{
			name: "usb device needs no params",
			desc: models.DeviceDescriptor{
				Serial: "usb-1",
				Kind:   models.TransportUSB,
				Label:  models.LabelPhone,
			},
		},
		{
			name:    "network device without params",
			desc:    models.DeviceDescriptor{Serial: "net-2", Kind: models.TransportNetwork},
			wantErr: true,
		},
		{
			name:    "serial device without params",
			desc:    models.DeviceDescriptor{Serial: "com-2", Kind: models.TransportSerial},
			wantErr: true,
		},
		{
			name:    "unknown transport",
			desc:    models.DeviceDescriptor{Serial: "x-1", Kind: "bluetooth"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := New(&tt.desc, log)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, conn)
		})
	}
}

func TestSerialAdapterHasNoFileTransfer(t *testing.T) {
	conn := newSerialAdapter("com-1", &models.SerialParams{Port: "/dev/ttyUSB0", BaudRate: 115200}, logger.NewTestLogger())

	err := conn.PushFile(context.Background(), "local.bin", "/remote.bin")
	require.ErrorIs(t, err, ErrCapabilityNotAvail)

	err = conn.PullFile(context.Background(), "/remote.xml", "local.xml")
	require.ErrorIs(t, err, ErrCapabilityNotAvail)
}

func TestDisconnectedSendCommandFails(t *testing.T) {
	conn := newNetworkAdapter("net-1", &models.NetworkParams{Address: "192.168.1.20", Port: 22}, logger.NewTestLogger())

	_, err := conn.SendCommand(context.Background(), "echo hi")
	require.ErrorIs(t, err, errNotConnected)
}

func TestTimeoutOrDefault(t *testing.T) {
	assert.Equal(t, 3*time.Second, timeoutOrDefault(models.Duration(3*time.Second), time.Minute))
	assert.Equal(t, time.Minute, timeoutOrDefault(0, time.Minute))
}
