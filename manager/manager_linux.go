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

// Package manager implements the bottom tier of the supervision chain:
// it owns the life-lock and the control queue, reaps orphaned
// descendants as a child subreaper, daemonises requested services, and
// resurrects the watchdog above it.
package manager

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/daemonise"
	"github.com/ponyinit/daemond/mqueue"
	"github.com/ponyinit/daemond/pkg/handshake"
	"github.com/ponyinit/daemond/pkg/procutil"
)

// Manager is the management tier. Its fields are touched only by the
// single supervision loop; signals reach it through a channel, so no
// handler-context sharing exists.
type Manager struct {
	conf    *config.Config
	lock    *flock.Flock
	queue   *mqueue.Queue
	signals chan os.Signal
	msgs    chan []byte
	recvErr chan error

	// watchdog is the PID the immortality-disable forward targets: the
	// original parent, or the most recently resurrected replacement.
	watchdog int

	// resurrected is the PID of a watchdog this manager spawned itself.
	// Reaping it means the parent tier died again.
	resurrected int

	immortal     bool
	forwarded    bool // SIGUSR2 relayed to the watchdog, sent at most once
	reexecWanted bool
	parentDied   bool
	disableEdge  bool
}

// Run initialises the manager and services the control queue. It returns
// only when initialisation, a queue receive or the reap sweep fails; no
// control message ends it. reexecing marks a re-executed image resuming
// in place. The returned int is the process exit code.
func Run(conf *config.Config, reexecing bool) (int, error) {
	m := &Manager{
		conf:     conf,
		immortal: true,
		signals:  make(chan os.Signal, 8),
		msgs:     make(chan []byte, 1),
		recvErr:  make(chan error, 1),
	}

	m.lock = flock.New(conf.LifelinePath())
	locked, err := m.lock.TryLock()
	if err != nil {
		return 1, fmt.Errorf("locking lifeline: %w", err)
	}
	if !locked {
		logrus.Error("daemond is already running")
		return 1, nil
	}

	signal.Notify(m.signals, unix.SIGCHLD, unix.SIGUSR1, unix.SIGUSR2, procutil.ParentDeathSignal)

	// The parent-death signal itself is requested by the watchdog when
	// it forks us, and survives our own re-exec.
	if err := procutil.SetChildSubreaper(true); err != nil {
		return 1, fmt.Errorf("becoming child subreaper: %w", err)
	}

	key, err := mqueue.ReadKeyFile(conf.QueueKeyPath())
	if err != nil {
		return 1, err
	}
	m.queue, err = mqueue.Open(key)
	if err != nil {
		return 1, fmt.Errorf("attaching control queue (key %d): %w", key, err)
	}

	m.watchdog = unix.Getppid()
	if reexecing {
		logrus.Info("re-executed, immortality re-enabled")
	} else if err := handshake.NotifyParent(); err != nil {
		logrus.Warningf("acknowledging watchdog: %v", err)
	}

	go m.receive()
	return m.loop()
}

// receive blocks in the type-1 queue receive and feeds the loop. EINTR
// restarts the receive; anything else ends the manager.
func (m *Manager) receive() {
	for {
		payload, err := m.queue.Receive(mqueue.ControlType, mqueue.MaxMessageSize)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			m.recvErr <- err
			return
		}
		m.msgs <- payload
	}
}

// loop is the main loop: flags carried over from the previous wakeup are
// resolved first, then the manager sleeps on the queue and the signal
// channel. Every signal wakeup is first treated as "possibly a child
// died" and reaped non-blockingly.
func (m *Manager) loop() (int, error) {
	for {
		m.handleInterruption()
		select {
		case err := <-m.recvErr:
			return 1, fmt.Errorf("receiving control message: %w", err)
		case payload := <-m.msgs:
			m.dispatch(payload)
		case sig := <-m.signals:
			m.note(sig)
			if err := m.reap(); err != nil {
				return 1, err
			}
		}
	}
}

// note records the meaning of a signal.
func (m *Manager) note(sig os.Signal) {
	switch sig {
	case unix.SIGUSR1:
		m.reexecWanted = true
	case unix.SIGUSR2:
		if m.immortal {
			m.immortal = false
			m.disableEdge = true
		}
	case procutil.ParentDeathSignal:
		m.parentDied = true
	}
}

// reap sweeps dead descendants without blocking. Reaping the watchdog
// this manager itself resurrected counts as a fresh parent death, so
// immortality keeps working past the first resurrection.
func (m *Manager) reap() error {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return nil
		case err != nil:
			return fmt.Errorf("reaping children: %w", err)
		case pid == 0:
			return nil
		}
		if ws.Signaled() {
			logrus.Infof("reaped pid %d, killed by signal %d", pid, ws.Signal())
		} else {
			logrus.Infof("reaped pid %d, exit status %d", pid, ws.ExitStatus())
		}
		if pid == m.resurrected {
			m.resurrected = 0
			m.parentDied = true
		}
	}
}

// handleInterruption resolves signal flags in their documented priority
// order: re-exec first, then parent death, then the immortality-disabled
// edge.
func (m *Manager) handleInterruption() {
	if m.reexecWanted {
		m.reexecWanted = false
		logrus.Info("re-executing")
		if !m.immortal {
			logrus.Info("immortality will be re-enabled")
		}
		m.execSelf()
	}
	if m.parentDied {
		m.parentDied = false
		if m.immortal {
			m.resurrectWatchdog()
		}
	}
	if m.disableEdge {
		m.disableEdge = false
		if !m.forwarded {
			m.forwarded = true
			if err := unix.Kill(m.watchdog, unix.SIGUSR2); err != nil {
				logrus.Warningf("forwarding immortality disable to watchdog: %v", err)
			}
		}
	}
}

// execSelf replaces the process image. The exec closes the life-lock
// descriptor, releasing the lock for the window until the new image
// re-acquires it. On success it does not return.
func (m *Manager) execSelf() {
	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("re-exec: %v", err)
		return
	}
	args := append([]string{exe}, m.conf.ToFlags()...)
	args = append(args, "manager", "--reexecing")
	if err := unix.Exec(exe, args, os.Environ()); err != nil {
		logrus.Errorf("re-exec failed: %v", err)
	}
}

// resurrectWatchdog replaces a dead parent watchdog. The life-lock is
// released around the window and re-acquired blocking afterwards; every
// failure here is tolerated, since a manager re-parented to PID 1 keeps
// running.
func (m *Manager) resurrectWatchdog() {
	logrus.Warning("watchdog died, resurrecting")
	if err := m.lock.Unlock(); err != nil {
		logrus.Warningf("releasing lifeline: %v", err)
	}
	defer func() {
		if err := m.lock.Lock(); err != nil {
			logrus.Errorf("re-acquiring lifeline: %v", err)
		}
	}()

	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("resurrecting watchdog: %v", err)
		return
	}
	args := append(m.conf.ToFlags(), "watchdog", strconv.Itoa(os.Getpid()))
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		logrus.Errorf("forking watchdog: %v", err)
		return
	}

	ws, alive, err := handshake.Await(m.signals, cmd.Process.Pid, m.note)
	switch {
	case err != nil:
		logrus.Errorf("awaiting watchdog: %v", err)
	case !alive:
		logrus.Errorf("resurrected watchdog died, status %d", handshake.ExitCode(ws))
	default:
		m.watchdog = cmd.Process.Pid
		m.resurrected = cmd.Process.Pid
		logrus.Infof("watchdog resurrected, pid %d", m.watchdog)
	}
}

// parseRequest splits a decoded vector into verb and arguments. Clients
// send an empty leading slot; the verb is the first non-empty element.
func parseRequest(argv []string) (verb string, rest []string, ok bool) {
	i := 0
	for i < len(argv) && argv[i] == "" {
		i++
	}
	if i == len(argv) {
		return "", nil, false
	}
	return argv[i], argv[i+1:], true
}

// dispatch validates a control message and acts on its verb.
func (m *Manager) dispatch(payload []byte) {
	argv, err := mqueue.DecodeArgv(payload)
	if err != nil {
		logrus.Warningf("dropping control message: %v", err)
		return
	}
	verb, rest, ok := parseRequest(argv)
	if !ok {
		logrus.Warning("dropping control message with no verb")
		return
	}
	switch verb {
	case "start":
		if len(rest) == 0 {
			logrus.Warning("dropping start request without a daemon name")
			return
		}
		m.startDaemon(verb, rest[0], rest[1:])
	default:
		logrus.Warningf("dropping control message with unknown verb %q", verb)
	}
}

// startDaemon hands a start request to the daemonise helper. The helper's
// exit status — the daemonised service's startup status — surfaces
// through the reap sweep.
func (m *Manager) startDaemon(verb, name string, extra []string) {
	if err := daemonise.ValidateName(name); err != nil {
		logrus.Warningf("rejecting start request: %v", err)
		return
	}
	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return
	}
	args := append(m.conf.ToFlags(), "daemonise", verb, name)
	args = append(args, extra...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return
	}
	logrus.Infof("daemonising %q, helper pid %d", name, cmd.Process.Pid)
}
