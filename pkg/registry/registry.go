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

// Package registry tracks device identity and allocation state for one task run.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/openharmony/test-xdevice/pkg/adapter"
	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

const (
	defaultRebootWait    = 2 * time.Minute
	defaultProbeInterval = 5 * time.Second
)

var (
	errUnknownDevice = errors.New("device not registered")
	errNoAdapter     = errors.New("no adapter for device")
)

// ConnFactory builds the connection adapter for one device descriptor.
// Tests inject a factory returning mock adapters.
type ConnFactory func(desc *models.DeviceDescriptor, log logger.Logger) (adapter.Adapter, error)

// Options tune discovery and reboot behavior.
type Options struct {
	// DeviceFilter restricts the run to the listed serial numbers; devices
	// outside the filter are marked Ignored and never allocated.
	DeviceFilter []string

	// RebootWait bounds how long RebootAndReacquire probes for the device
	// to come back before marking it Offline.
	RebootWait time.Duration

	// ProbeInterval is the pause between liveness probes while waiting for
	// a rebooted device.
	ProbeInterval time.Duration

	// ConnFactory overrides adapter construction; nil means adapter.New.
	ConnFactory ConnFactory
}

type deviceEntry struct {
	device *models.Device
	conn   adapter.Adapter
}

// Registry owns every device record of one task run. All state transitions
// go through its methods under one mutex; no caller ever observes a device
// record mid-transition.
type Registry struct {
	mu       sync.Mutex
	devices  map[string]*deviceEntry
	order    []string
	labelSeq map[models.DeviceLabel]int

	rebootWait    time.Duration
	probeInterval time.Duration

	// idleCh carries "a device became idle" wakeups to the scheduler.
	idleCh chan struct{}

	logger logger.Logger
}

// New builds the device table from the environment configuration. A
// descriptor whose adapter cannot be constructed is a configuration error
// and fails the whole registry.
func New(descriptors []models.DeviceDescriptor, opts Options, log logger.Logger) (*Registry, error) {
	factory := opts.ConnFactory
	if factory == nil {
		factory = func(desc *models.DeviceDescriptor, l logger.Logger) (adapter.Adapter, error) {
			return adapter.New(desc, l)
		}
	}

	rebootWait := opts.RebootWait
	if rebootWait <= 0 {
		rebootWait = defaultRebootWait
	}

	probeInterval := opts.ProbeInterval
	if probeInterval <= 0 {
		probeInterval = defaultProbeInterval
	}

	r := &Registry{
		devices:       make(map[string]*deviceEntry),
		labelSeq:      make(map[models.DeviceLabel]int),
		rebootWait:    rebootWait,
		probeInterval: probeInterval,
		idleCh:        make(chan struct{}, 1),
		logger:        log,
	}

	filter := make(map[string]bool, len(opts.DeviceFilter))
	for _, sn := range opts.DeviceFilter {
		filter[sn] = true
	}

	for i := range descriptors {
		desc := &descriptors[i]

		if _, ok := r.devices[desc.Serial]; ok {
			return nil, fmt.Errorf("duplicate device sn %q", desc.Serial)
		}

		conn, err := factory(desc, log)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter for %s: %w", desc.Serial, err)
		}

		state := models.DeviceIdle
		if len(filter) > 0 && !filter[desc.Serial] {
			state = models.DeviceIgnored

			log.Info().Str("device", desc.Serial).Msg("Device excluded by sn filter")
		}

		r.devices[desc.Serial] = &deviceEntry{
			device: &models.Device{
				Serial: desc.Serial,
				Kind:   desc.Kind,
				Label:  desc.Label,
				State:  state,
			},
			conn: conn,
		}

		r.order = append(r.order, desc.Serial)
	}

	return r, nil
}

// Discover probes every registered device and settles it as Idle or Offline.
// A device that cannot be probed yields no fatal error, only an Offline
// record.
func (r *Registry) Discover(ctx context.Context) {
	for _, sn := range r.snapshotOrder() {
		entry := r.entry(sn)
		if entry == nil || r.state(sn) == models.DeviceIgnored {
			continue
		}

		if entry.conn.IsAlive(ctx) {
			r.setState(sn, models.DeviceIdle)

			r.logger.Info().
				Str("device", sn).
				Str("label", string(entry.device.Label)).
				Str("transport", string(entry.device.Kind)).
				Msg("Device discovered")
		} else {
			r.setState(sn, models.DeviceOffline)

			r.logger.Warn().Str("device", sn).Msg("Device did not answer discovery probe")
		}
	}
}

// Allocate atomically claims one idle device matching the label. It never
// blocks; ok is false when nothing matches and the caller must re-queue.
func (r *Registry) Allocate(label models.DeviceLabel) (*models.Device, adapter.Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sn := range r.order {
		entry := r.devices[sn]

		if entry.device.State != models.DeviceIdle {
			continue
		}

		if label != "" && entry.device.Label != label {
			continue
		}

		entry.device.State = models.DeviceAllocated

		if entry.device.DeviceID == "" {
			r.labelSeq[entry.device.Label]++
			entry.device.DeviceID = deviceID(entry.device.Label, r.labelSeq[entry.device.Label])
		}

		dev := *entry.device

		r.logger.Debug().
			Str("device", sn).
			Str("device_id", dev.DeviceID).
			Msg("Device allocated")

		return &dev, entry.conn, true
	}

	return nil, nil, false
}

// MarkBusy transitions an allocated device to Busy on execution start.
func (r *Registry) MarkBusy(sn string) error {
	return r.transition(sn, models.DeviceAllocated, models.DeviceBusy)
}

// Release returns a device to the idle pool and wakes the scheduler. An
// Offline device stays Offline.
func (r *Registry) Release(sn string) {
	r.mu.Lock()

	entry, ok := r.devices[sn]
	if !ok || entry.device.State == models.DeviceOffline || entry.device.State == models.DeviceIgnored {
		r.mu.Unlock()
		return
	}

	entry.device.State = models.DeviceIdle
	r.mu.Unlock()

	r.logger.Debug().Str("device", sn).Msg("Device released")

	r.notifyIdle()
}

// MarkOffline forces a device out of the pool for the rest of the task.
func (r *Registry) MarkOffline(sn string) {
	r.mu.Lock()

	entry, ok := r.devices[sn]
	if ok {
		entry.device.State = models.DeviceOffline
	}
	r.mu.Unlock()

	if ok {
		r.logger.Warn().Str("device", sn).Msg("Device marked offline")
	}

	// The pool shrank; wake the scheduler so starvation detection can run.
	r.notifyIdle()
}

// RebootAndReacquire power-cycles a device and probes until it answers
// again, bounded by the configured reboot wait. On success the device is
// re-added as Idle; on failure it is Offline.
func (r *Registry) RebootAndReacquire(ctx context.Context, sn string) error {
	entry := r.entry(sn)
	if entry == nil {
		return fmt.Errorf("%w: %s", errUnknownDevice, sn)
	}

	if entry.conn == nil {
		return fmt.Errorf("%w: %s", errNoAdapter, sn)
	}

	r.logger.Info().Str("device", sn).Msg("Rebooting device")

	if err := entry.conn.Reboot(ctx); err != nil {
		r.logger.Warn().Err(err).Str("device", sn).Msg("Reboot command failed, probing anyway")
	}

	deadline := time.Now().Add(r.rebootWait)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			r.MarkOffline(sn)

			return ctx.Err()
		case <-time.After(r.probeInterval):
		}

		if entry.conn.IsAlive(ctx) {
			r.setState(sn, models.DeviceIdle)
			r.notifyIdle()

			r.logger.Info().Str("device", sn).Msg("Device back online after reboot")

			return nil
		}
	}

	r.MarkOffline(sn)

	return fmt.Errorf("device %s did not come back within %s", sn, r.rebootWait)
}

// IdleEvents returns the channel the scheduler selects on while waiting for
// a device to become available.
func (r *Registry) IdleEvents() <-chan struct{} {
	return r.idleCh
}

// HasCandidate reports whether any device with the label could still serve
// an allocation, now or after an in-flight attempt releases it.
func (r *Registry) HasCandidate(label models.DeviceLabel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.devices {
		if label != "" && entry.device.Label != label {
			continue
		}

		switch entry.device.State {
		case models.DeviceIdle, models.DeviceAllocated, models.DeviceBusy:
			return true
		case models.DeviceOffline, models.DeviceIgnored:
		}
	}

	return false
}

// Devices returns a snapshot of every device record.
func (r *Registry) Devices() []models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Device, 0, len(r.order))
	for _, sn := range r.order {
		out = append(out, *r.devices[sn].device)
	}

	return out
}

// Conn returns the adapter bound to a device.
func (r *Registry) Conn(sn string) (adapter.Adapter, error) {
	entry := r.entry(sn)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownDevice, sn)
	}

	return entry.conn, nil
}

func (r *Registry) transition(sn string, from, to models.DeviceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.devices[sn]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownDevice, sn)
	}

	if entry.device.State != from {
		return fmt.Errorf("device %s is %s, expected %s", sn, entry.device.State, from)
	}

	entry.device.State = to

	return nil
}

func (r *Registry) entry(sn string) *deviceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.devices[sn]
}

func (r *Registry) state(sn string) models.DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.devices[sn]; ok {
		return entry.device.State
	}

	return models.DeviceOffline
}

func (r *Registry) setState(sn string, state models.DeviceState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.devices[sn]; ok {
		entry.device.State = state
	}
}

func (r *Registry) snapshotOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

func (r *Registry) notifyIdle() {
	select {
	case r.idleCh <- struct{}{}:
	default:
	}
}

func deviceID(label models.DeviceLabel, seq int) string {
	name := "DUT"

	switch label {
	case models.LabelPhone:
		name = "Phone"
	case models.LabelWatch:
		name = "Watch"
	case models.LabelWifiIot:
		name = "WifiIot"
	case models.LabelIPCamera:
		name = "IpCamera"
	}

	return name + strconv.Itoa(seq)
}
