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

// Package adapter abstracts device transports behind one capability set.
package adapter

import (
	"errors"
	"fmt"
	"time"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultProbeTimeout   = 5 * time.Second
)

var (
	errUnknownTransport   = errors.New("unknown transport kind")
	errMissingParams      = errors.New("missing transport parameters")
	errNotConnected       = errors.New("adapter is not connected")
	ErrCapabilityNotAvail = errors.New("capability not available on this transport")
)

// New returns the adapter variant matching the descriptor's transport kind.
func New(desc *models.DeviceDescriptor, log logger.Logger) (Adapter, error) {
	switch desc.Kind {
	case models.TransportNetwork:
		if desc.Network == nil {
			return nil, fmt.Errorf("%w: network device %s", errMissingParams, desc.Serial)
		}

		return newNetworkAdapter(desc.Serial, desc.Network, log), nil
	case models.TransportSerial:
		if desc.SerialP == nil {
			return nil, fmt.Errorf("%w: serial device %s", errMissingParams, desc.Serial)
		}

		return newSerialAdapter(desc.Serial, desc.SerialP, log), nil
	case models.TransportUSB:
		return newUSBAdapter(desc.Serial, desc.USB, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTransport, desc.Kind)
	}
}

func timeoutOrDefault(d models.Duration, fallback time.Duration) time.Duration {
	if d > 0 {
		return time.Duration(d)
	}

	return fallback
}
