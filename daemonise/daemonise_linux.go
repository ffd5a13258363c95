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

// Package daemonise turns a start request into a detached, session-leading
// daemon with a PID file.
//
// The original double fork becomes three exec levels of this binary, since
// a forked Go process cannot keep running its parent's code:
//
//   - level 0 is the manager's child: it prepares the process-wide state,
//     spawns level 1 in a new session, waits for the two "child up" /
//     "grandchild up" signals, and exits with the grandchild's status;
//   - level 1 exists only to orphan the grandchild: it spawns level 2 and
//     exits on the grandchild's wake-up signal;
//   - level 2 is the daemon: it detaches its standard streams, writes the
//     PID file and execs the site's daemon-base script.
//
// The synchronous signal handshakes are how the ancestors learn that the
// grandchild is alive without pipes or shared memory; removing one
// silently breaks PID-file availability.
package daemonise

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/pkg/handshake"
	"github.com/ponyinit/daemond/pkg/procutil"
)

// nameRegexp admits daemon names that cannot escape the runtime
// directory.
var nameRegexp = regexp.MustCompile(`^[\w+.-]+$`)

// ValidateName rejects daemon names unusable as a PID-file stem.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid daemon name %q", name)
	}
	return nil
}

// ReshapeArgv builds the argument vector handed to the daemon-base
// script: the verb as argv[0], the daemon name as argv[1], then any
// trailing user arguments.
func ReshapeArgv(verb, name string, extra []string) []string {
	return append([]string{verb, name}, extra...)
}

// Run is level 0. It returns the process exit code: the grandchild's exit
// status (or signal number) once it has come up, 0 if it is still
// running.
func Run(conf *config.Config, verb, name string, extra []string) int {
	pidPath := conf.PIDFilePath(name)

	// A fresh exec already reset dispositions; this drops anything the
	// manager asked the signal package to ignore. The spawned levels get
	// an empty signal mask from the runtime.
	signal.Reset()

	if err := os.Setenv(config.DaemonNameTag, name); err != nil {
		logrus.Errorf("tagging daemon %q: %v", name, err)
		return 1
	}

	// Subreaper status makes the orphaned grandchild ours, so its exit
	// status is observable below.
	if err := procutil.SetChildSubreaper(true); err != nil {
		logrus.Errorf("becoming child subreaper: %v", err)
		return 1
	}
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGCHLD)

	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return 1
	}
	args := append(conf.ToFlags(), "daemonise-session", verb, name)
	args = append(args, extra...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return 1
	}

	// Child up, then grandchild up.
	<-sigCh
	<-sigCh

	child := readPID(pidPath)
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(child, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			logrus.Errorf("polling daemon %q: %v", name, err)
			return 1
		}
		if pid == 0 {
			return 0
		}
		return handshake.ExitCode(ws)
	}
}

// RunSession is level 1. Session leadership was established by the Setsid
// spawn; its sole remaining duty is to die so the grandchild is orphaned.
// It exits 1 on wake: if it is still alive when its parent polls, the
// grandchild never came up.
func RunSession(conf *config.Config, verb, name string, extra []string) int {
	if err := procutil.SetChildSubreaper(false); err != nil {
		logrus.Warningf("clearing subreaper status: %v", err)
	}
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGCHLD)

	exe, err := procutil.ExePath()
	if err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return 1
	}
	args := append(conf.ToFlags(), "daemonise-exec", verb, name)
	args = append(args, extra...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGCHLD}
	if err := cmd.Start(); err != nil {
		logrus.Errorf("daemonising %q: %v", name, err)
		return 1
	}

	<-sigCh
	return 1
}

// RunExec is level 2, the daemon itself. It synchronises with level 1,
// detaches, registers its PID and execs the daemon-base script. It only
// returns on failure.
func RunExec(conf *config.Config, verb, name string, extra []string) int {
	pidPath := conf.PIDFilePath(name)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGCHLD)

	// Wake level 1; its death comes back as our parent-death signal and
	// tells level 0, indirectly, that we are up.
	if err := handshake.NotifyParent(); err != nil {
		logrus.Errorf("signalling session leader: %v", err)
		return 1
	}
	<-sigCh
	signal.Reset(unix.SIGCHLD)

	// Nothing below needs the runtime's descriptors any more; drop
	// everything a caller may have leaked before the daemon inherits it.
	procutil.CloseNonStdFDs(config.SelfFD)

	// Replace stdin and stdout, but not stderr, with the null device.
	null, err := os.OpenFile(config.DevNull, os.O_RDWR, 0)
	if err != nil {
		logrus.Errorf("opening %s: %v", config.DevNull, err)
		return 1
	}
	if err := unix.Dup3(int(null.Fd()), 0, 0); err != nil {
		logrus.Errorf("detaching stdin: %v", err)
		return 1
	}
	if err := unix.Dup3(0, 1, 0); err != nil {
		logrus.Errorf("detaching stdout: %v", err)
		return 1
	}
	null.Close()

	unix.Umask(0)

	if err := WritePIDFile(pidPath, os.Getpid()); err != nil {
		logrus.Errorf("registering daemon %q: %v", name, err)
		return 1
	}

	if strings.HasPrefix(conf.SysconfDir, "/") {
		if err := os.Chdir("/"); err != nil {
			logrus.Warningf("changing directory to /: %v", err)
		}
	}

	if err := unix.Exec(conf.DaemonBasePath(), ReshapeArgv(verb, name, extra), os.Environ()); err != nil {
		logrus.Errorf("executing %s: %v", conf.DaemonBasePath(), err)
		os.Remove(pidPath)
		return 1
	}
	return 0 // unreachable
}

// WritePIDFile registers pid: decimal plus newline, truncating any stale
// file. A short write removes the file so no reader ever observes a
// partial value.
func WritePIDFile(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// readPID returns the PID registered at path, or -1 on any error; -1
// makes the caller's wait match any child, mirroring the degraded mode of
// the original.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return -1
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return pid
}
