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

// TransportKind identifies the transport a device is reachable over.
type TransportKind string

const (
	TransportNetwork TransportKind = "network"
	TransportSerial  TransportKind = "serial"
	TransportUSB     TransportKind = "usb"
)

// DeviceLabel is the device-type tag used to match modules to compatible
// devices.
type DeviceLabel string

const (
	LabelPhone    DeviceLabel = "phone"
	LabelWatch    DeviceLabel = "watch"
	LabelWifiIot  DeviceLabel = "wifiiot"
	LabelIPCamera DeviceLabel = "ipcamera"
)

// DeviceState tracks the allocation state of a device within one task run.
type DeviceState string

const (
	DeviceIdle      DeviceState = "idle"
	DeviceAllocated DeviceState = "allocated"
	DeviceBusy      DeviceState = "busy"
	DeviceOffline   DeviceState = "offline"
	DeviceIgnored   DeviceState = "ignored"
)

// NetworkParams are the connection parameters of a network-bridge device.
type NetworkParams struct {
	Address  string   `json:"address"`
	Port     int      `json:"port"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// SerialParams are the connection parameters of a serial device.
type SerialParams struct {
	Port     string   `json:"port"`
	BaudRate int      `json:"baud_rate"`
	DataBits int      `json:"data_bits"`
	StopBits int      `json:"stop_bits"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// USBParams are the connection parameters of a usb-connected device.
type USBParams struct {
	ConnectorAddress string   `json:"connector_address,omitempty"`
	Timeout          Duration `json:"timeout,omitempty"`
}

// DeviceDescriptor is one entry of the environment configuration consumed at
// discovery time. Exactly one of the params blocks is set, matching Kind.
type DeviceDescriptor struct {
	Serial  string         `json:"sn"`
	Kind    TransportKind  `json:"type"`
	Label   DeviceLabel    `json:"label"`
	Network *NetworkParams `json:"network,omitempty"`
	SerialP *SerialParams  `json:"serial,omitempty"`
	USB     *USBParams     `json:"usb,omitempty"`
}

// Device is one addressable test target tracked by the registry.
type Device struct {
	Serial string        `json:"sn"`
	Kind   TransportKind `json:"type"`
	Label  DeviceLabel   `json:"label"`
	State  DeviceState   `json:"state"`

	// DeviceID is the human-readable id assigned on allocation, e.g. "Phone1".
	DeviceID string `json:"device_id,omitempty"`
}
