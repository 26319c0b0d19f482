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
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/openharmony/test-xdevice/pkg/logger"
	"github.com/openharmony/test-xdevice/pkg/models"
)

// networkAdapter reaches a device agent over an SSH bridge and moves
// artifacts with SFTP.
type networkAdapter struct {
	serial string
	params *models.NetworkParams
	logger logger.Logger

	mu     sync.Mutex
	client *ssh.Client
	sftpC  *sftp.Client
}

func newNetworkAdapter(serial string, params *models.NetworkParams, log logger.Logger) *networkAdapter {
	return &networkAdapter{
		serial: serial,
		params: params,
		logger: log,
	}
}

func (a *networkAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	cfg := &ssh.ClientConfig{
		User:            a.params.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 - lab devices have no stable host keys
		Timeout:         timeoutOrDefault(a.params.Timeout, defaultConnectTimeout),
	}

	if a.params.Password != "" {
		cfg.Auth = []ssh.AuthMethod{ssh.Password(a.params.Password)}
	}

	addr := net.JoinHostPort(a.params.Address, strconv.Itoa(a.params.Port))

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sftpC, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()

		return fmt.Errorf("failed to open sftp session to %s: %w", addr, err)
	}

	a.client = client
	a.sftpC = sftpC

	a.logger.Debug().Str("device", a.serial).Str("address", addr).Msg("Network bridge connected")

	return nil
}

func (a *networkAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sftpC != nil {
		_ = a.sftpC.Close()
		a.sftpC = nil
	}

	if a.client != nil {
		err := a.client.Close()
		a.client = nil

		return err
	}

	return nil
}

func (a *networkAdapter) SendCommand(ctx context.Context, command string) (string, error) {
	client, err := a.session()
	if err != nil {
		return "", err
	}

	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session on %s: %w", a.serial, err)
	}
	defer func() { _ = sess.Close() }()

	type result struct {
		out []byte
		err error
	}

	done := make(chan result, 1)

	go func() {
		out, cmdErr := sess.CombinedOutput(command)
		done <- result{out: out, err: cmdErr}
	}()

	select {
	case <-ctx.Done():
		// The session is closed by the deferred Close; the goroutine then
		// unblocks and its result is dropped.
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return string(res.out), fmt.Errorf("command failed on %s: %w", a.serial, res.err)
		}

		return string(res.out), nil
	}
}

func (a *networkAdapter) PushFile(ctx context.Context, local, remote string) error {
	sftpC, err := a.sftpSession()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(local) // #nosec G304 - artifact path comes from the test kit
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := sftpC.MkdirAll(path.Dir(remote)); err != nil {
		return fmt.Errorf("failed to create remote dir %s: %w", path.Dir(remote), err)
	}

	dst, err := sftpC.Create(remote)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remote, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", local, remote, err)
	}

	return nil
}

func (a *networkAdapter) PullFile(ctx context.Context, remote, local string) error {
	sftpC, err := a.sftpSession()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := sftpC.Open(remote)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remote, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(path.Dir(local), 0o755); err != nil {
		return fmt.Errorf("failed to create local dir: %w", err)
	}

	dst, err := os.Create(local) // #nosec G304 - destination is under the report path
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to pull %s to %s: %w", remote, local, err)
	}

	return nil
}

func (a *networkAdapter) IsAlive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	if err := a.Connect(probeCtx); err != nil {
		return false
	}

	_, err := a.SendCommand(probeCtx, "echo alive")

	return err == nil
}

func (a *networkAdapter) Reboot(ctx context.Context) error {
	// The connection drops as the device goes down; a command error after
	// the reboot has been issued is expected.
	_, _ = a.SendCommand(ctx, "reboot")

	return a.Disconnect()
}

func (a *networkAdapter) session() (*ssh.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil, errNotConnected
	}

	return a.client, nil
}

func (a *networkAdapter) sftpSession() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sftpC == nil {
		return nil, errNotConnected
	}

	return a.sftpC, nil
}
