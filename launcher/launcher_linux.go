// Copyright 2024 The daemond Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package launcher implements the one-shot bootstrap of the supervision
// chain: it prepares the runtime directory and the control queue,
// sanitises the environment, forks the watchdog and exits once the chain
// is confirmed alive.
package launcher

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"os/signal"

	"github.com/cenkalti/backoff"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/mqueue"
	"github.com/ponyinit/daemond/pkg/cleanup"
	"github.com/ponyinit/daemond/pkg/handshake"
	"github.com/ponyinit/daemond/pkg/procutil"
)

// keyAttempts bounds the draw-key/create-queue collision loop.
const keyAttempts = 64

// Run installs the supervision chain. It returns the process exit code:
// 0 once the chain has acknowledged startup, or the watchdog's propagated
// status if the chain died during bootstrap. A non-nil error carries the
// diagnostic for any failure before or during installation.
func Run(conf *config.Config) (int, error) {
	unix.Umask(0o022)

	if err := os.MkdirAll(conf.PkgRunDir(), 0o750); err != nil {
		return 1, fmt.Errorf("creating runtime directory: %w", err)
	}

	// The cleanup tears a newly-created queue (and its key file) back
	// down if the chain cannot be installed, so nothing kernel-resident
	// is orphaned. A pre-existing queue is left alone.
	var cu cleanup.Cleanup
	defer cu.Clean()

	if _, err := os.Stat(conf.QueueKeyPath()); os.IsNotExist(err) {
		q, key, err := allocateQueue()
		if err != nil {
			return 1, fmt.Errorf("creating control queue: %w", err)
		}
		cu.Add(func() {
			if err := q.Remove(); err != nil {
				logrus.Warningf("removing control queue: %v", err)
			}
		})
		if err := mqueue.WriteKeyFile(conf.QueueKeyPath(), key); err != nil {
			return 1, fmt.Errorf("publishing queue key: %w", err)
		}
		cu.Add(func() { os.Remove(conf.QueueKeyPath()) })
		logrus.Debugf("control queue created, key %d", key)
	} else if err != nil {
		return 1, fmt.Errorf("checking queue key file: %w", err)
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGCHLD)

	if err := sanitizeProcessEnviron(conf.EnvirontabPath()); err != nil {
		return 1, fmt.Errorf("sanitising environment: %w", err)
	}

	exe, err := procutil.ExePath()
	if err != nil {
		return 1, err
	}
	cmd := exec.Command(exe, append(conf.ToFlags(), "watchdog")...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("forking watchdog: %w", err)
	}

	// Block until the first signal from the child: either the chain-up
	// ack relayed by the watchdog, or the SIGCHLD of its early death.
	ws, alive, err := handshake.Await(sigCh, cmd.Process.Pid, nil)
	if err != nil {
		return 1, fmt.Errorf("awaiting watchdog: %w", err)
	}
	if !alive {
		return handshake.ExitCode(ws), fmt.Errorf("supervision chain died during bootstrap")
	}

	cu.Release()

	// Best effort: only meaningful when a systemd unit runs the launcher.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logrus.Debugf("sd_notify: %v", err)
	}
	logrus.Infof("supervision chain is up, watchdog pid %d", cmd.Process.Pid)
	return 0, nil
}

// allocateQueue draws random keys until one names a queue that does not
// exist yet, then creates it. The randomness only has to make clashes
// between concurrent launchers unlikely; it carries no secrecy.
func allocateQueue() (*mqueue.Queue, int, error) {
	var (
		q   *mqueue.Queue
		key int
	)
	op := func() error {
		key = 1 + rand.Intn(math.MaxInt32-1)
		var err error
		q, err = mqueue.Create(key, 0o750)
		if err == unix.EEXIST {
			return err // collision, redraw
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(0), keyAttempts))
	if err != nil {
		return nil, 0, err
	}
	return q, key, nil
}
