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

// Package handshake implements the bootstrap acknowledgement protocol of
// the supervision chain: a child tier confirms it is up by sending its
// parent a bare SIGCHLD, and the parent distinguishes the ack from an
// early death by polling the child without blocking after the first
// signal arrives.
package handshake

import (
	"os"

	"golang.org/x/sys/unix"
)

// NotifyParent signals the parent process that this tier is running.
func NotifyParent() error {
	return unix.Kill(unix.Getppid(), unix.SIGCHLD)
}

// Await blocks until a signal arrives on sig, then polls child without
// blocking. It returns alive=true if the child is still running, in which
// case the wakeup was the ack. Otherwise ws holds the child's wait status.
// Any signal wakes the wait; note, when non-nil, is invoked with the
// signal so the caller can record flags it would otherwise lose.
func Await(sig <-chan os.Signal, child int, note func(os.Signal)) (ws unix.WaitStatus, alive bool, err error) {
	s := <-sig
	if note != nil {
		note(s)
	}
	for {
		var pid int
		pid, err = unix.Wait4(child, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, err
		}
		return ws, pid == 0, nil
	}
}

// ExitCode flattens a wait status into an exit code: the exit status of a
// normal exit, or the signal number of a signalled death.
func ExitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return int(ws.Signal())
	}
	return ws.ExitStatus()
}
