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

// Package watchdog implements the middle tier of the supervision chain:
// it sleeps until the manager exits and re-forks it, rate-limiting crash
// loops, and replaces its own image on request without losing the manager.
package watchdog

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/pkg/handshake"
	"github.com/ponyinit/daemond/pkg/procutil"
)

const (
	// tooFastWindow is the minimum acceptable manager lifetime. A death
	// within it of the recorded birth triggers the cooldown.
	tooFastWindow = time.Second

	// cooldown delays the respawn of a too-fast-crashing manager,
	// measured as an absolute deadline from the death instant.
	cooldown = 5 * time.Minute
)

// Watchdog supervises a single manager process.
type Watchdog struct {
	conf    *config.Config
	signals chan os.Signal

	// manager is the PID of the supervised manager.
	manager int

	// adopted is set when the manager is this watchdog's parent rather
	// than its child: the watchdog was spawned by the manager to replace
	// a dead predecessor. Death is then observed through the
	// parent-death signal and carries no exit status.
	adopted bool

	// birth is the monotonic reading of the manager's most recent
	// (re)spawn, or of its previous death when deaths come fast.
	birth time.Time

	immortal     bool
	forwarded    bool // SIGUSR2 relayed to the manager, sent at most once
	reexecWanted bool
	parentDied   bool // adopted mode only
}

// Run supervises the manager until shutdown. resumePID is the optional
// resume argument: 0 forks a fresh manager; a PID names the
// already-existing manager, either this process's child (after re-exec)
// or its parent (after resurrection). The returned int is the process
// exit code.
func Run(conf *config.Config, resumePID int) (int, error) {
	w := &Watchdog{
		conf:     conf,
		immortal: true,
		signals:  make(chan os.Signal, 8),
	}
	signal.Notify(w.signals, unix.SIGCHLD, unix.SIGUSR1, unix.SIGUSR2, procutil.ParentDeathSignal)

	switch {
	case resumePID == 0:
		pid, err := w.spawnManager()
		if err != nil {
			return 1, err
		}
		ws, alive, err := handshake.Await(w.signals, pid, w.note)
		if err != nil {
			return 1, fmt.Errorf("awaiting manager: %w", err)
		}
		if !alive {
			// The manager never acknowledged; its status is ours, so
			// the launcher can report why the chain did not come up.
			return handshake.ExitCode(ws), fmt.Errorf("manager died during bootstrap")
		}
		w.manager = pid
		w.birth = time.Now()
		if err := handshake.NotifyParent(); err != nil {
			logrus.Warningf("acknowledging launcher: %v", err)
		}

	case unix.Getppid() == resumePID:
		// Resurrection: the manager forked us to replace its dead
		// parent. It stays where it is; we watch it from below.
		w.adopted = true
		w.manager = resumePID
		w.birth = time.Now()
		if err := procutil.SetChildSubreaper(false); err != nil {
			logrus.Warningf("clearing subreaper status: %v", err)
		}
		if err := procutil.SetParentDeathSignal(procutil.ParentDeathSignal); err != nil {
			logrus.Warningf("requesting parent-death signal: %v", err)
		}
		if unix.Getppid() != resumePID {
			// The manager died in the window before the request took
			// effect.
			w.parentDied = true
		}
		if err := handshake.NotifyParent(); err != nil {
			logrus.Warningf("acknowledging manager: %v", err)
		}

	default:
		// Re-exec: the manager survived the exec as our child.
		w.manager = resumePID
		w.birth = time.Now()
	}

	return w.supervise()
}

// supervise is the WAITING loop: check flags and the manager's state,
// then sleep until the next signal.
func (w *Watchdog) supervise() (int, error) {
	for {
		w.maybeReexec()
		w.maybeForwardDisable()

		died, ws, known := w.checkManager()
		if died {
			if known && ws.Exited() && ws.ExitStatus() == 0 {
				logrus.Info("manager exited cleanly, shutting down")
				return 0, nil
			}
			switch {
			case !known:
				logrus.Warning("manager died")
			case ws.Signaled():
				logrus.Warningf("manager died by signal %d", ws.Signal())
			default:
				logrus.Warningf("manager exited with status %d", ws.ExitStatus())
			}
			if !w.immortal {
				logrus.Info("immortality disabled, not respawning")
				return 0, nil
			}
			if stop, code, err := w.respawn(); stop {
				return code, err
			}
			continue
		}

		w.note(<-w.signals)
	}
}

// note records the meaning of a signal. It is safe against spurious and
// repeated deliveries.
func (w *Watchdog) note(sig os.Signal) {
	switch sig {
	case unix.SIGUSR1:
		w.reexecWanted = true
	case unix.SIGUSR2:
		w.immortal = false
	case procutil.ParentDeathSignal:
		if w.adopted {
			w.parentDied = true
		}
	}
}

// maybeReexec replaces the process image with a fresh copy of this
// program, passing the manager PID as the resume argument. On success it
// does not return.
func (w *Watchdog) maybeReexec() {
	if !w.reexecWanted {
		return
	}
	w.reexecWanted = false
	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("re-exec: %v", err)
		return
	}
	logrus.Info("re-executing")
	args := append([]string{exe}, w.conf.ToFlags()...)
	args = append(args, "watchdog", strconv.Itoa(w.manager))
	if err := unix.Exec(exe, args, os.Environ()); err != nil {
		logrus.Errorf("re-exec failed: %v", err)
	}
}

// maybeForwardDisable relays the immortality-disable request to the
// manager, exactly once.
func (w *Watchdog) maybeForwardDisable() {
	if w.immortal || w.forwarded {
		return
	}
	w.forwarded = true
	if err := unix.Kill(w.manager, unix.SIGUSR2); err != nil {
		logrus.Warningf("forwarding immortality disable to manager: %v", err)
		return
	}
	logrus.Info("immortality disabled, forwarded to manager")
}

// checkManager reports whether the manager has died, with its wait status
// when one is observable (known=false for an adopted manager: a process
// cannot wait on its parent).
func (w *Watchdog) checkManager() (died bool, ws unix.WaitStatus, known bool) {
	if w.adopted {
		if !w.parentDied {
			return false, 0, false
		}
		w.parentDied = false
		return true, 0, false
	}
	for {
		pid, err := unix.Wait4(w.manager, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return true, 0, false
		case err != nil:
			logrus.Warningf("polling manager: %v", err)
			return false, 0, false
		case pid == 0:
			return false, 0, false
		}
		return true, ws, true
	}
}

// respawnDelay applies the crash-rate limit: a manager that died within
// the too-fast window of its recorded birth is only respawned after the
// cooldown.
func respawnDelay(birth, death time.Time) time.Duration {
	if death.Sub(birth) < tooFastWindow {
		return cooldown
	}
	return 0
}

// respawn re-forks the manager, applying the crash-rate limit. stop is
// set when supervision must end instead.
func (w *Watchdog) respawn() (stop bool, code int, err error) {
	death := time.Now()
	tooFast := respawnDelay(w.birth, death) > 0
	if tooFast {
		logrus.Warning("dying too fast, respawning in 5 minutes")
		w.runHook("resurrect-paused")
		// Measure the limiter between consecutive deaths while deaths
		// come fast.
		w.birth = death
		if !w.sleepUntil(death.Add(cooldown)) {
			logrus.Info("immortality disabled, not respawning")
			return true, 0, nil
		}
		w.runHook("resurrect-resumed")
	}

	pid, err := w.spawnManager()
	if err != nil {
		return true, 1, err
	}
	w.manager = pid
	w.adopted = false
	if !tooFast {
		w.birth = time.Now()
	}
	return false, 0, nil
}

// sleepUntil blocks until the absolute deadline, restarting the sleep on
// every interruption. It returns false when immortality was disabled
// while waiting; re-exec requests stay pending until the manager is back.
func (w *Watchdog) sleepUntil(deadline time.Time) bool {
	for {
		d := time.Until(deadline)
		if d <= 0 {
			return true
		}
		t := time.NewTimer(d)
		select {
		case <-t.C:
			return true
		case sig := <-w.signals:
			t.Stop()
			w.note(sig)
			if !w.immortal {
				w.maybeForwardDisable()
				return false
			}
		}
	}
}

// spawnManager forks a fresh manager, which will observe this process's
// death through the parent-death signal requested at spawn.
func (w *Watchdog) spawnManager() (int, error) {
	exe, err := procutil.ExePath()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(exe, append(w.conf.ToFlags(), "manager")...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: procutil.ParentDeathSignal}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("forking manager: %w", err)
	}
	return cmd.Process.Pid, nil
}

// runHook fires an operator hook script and forgets about it; its exit is
// reaped in the background.
func (w *Watchdog) runHook(name string) {
	path := w.conf.HookPath(name)
	cmd := exec.Command(path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		logrus.Warningf("hook %s: %v", name, err)
		return
	}
	go func() { _ = cmd.Wait() }()
}
