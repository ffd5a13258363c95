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

// Package procutil provides small wrappers around the process-control
// surface the supervision chain depends on.
package procutil

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ParentDeathSignal is the signal a tier requests on the death of its
// parent. It is the lowest real-time signal as seen by C library users;
// the Go runtime owns signals 32 and 33.
const ParentDeathSignal = unix.Signal(34)

// ExePath returns the path to the current binary, used when a tier
// re-executes or spawns a copy of itself.
func ExePath() (string, error) {
	return os.Executable()
}

// SetChildSubreaper toggles child-subreaper status: orphaned descendants
// reparent to this process in preference to PID 1.
func SetChildSubreaper(on bool) error {
	var v uintptr
	if on {
		v = 1
	}
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, v, 0, 0, 0)
}

// SetParentDeathSignal requests sig on the death of the parent process.
func SetParentDeathSignal(sig unix.Signal) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(sig), 0, 0, 0)
}

// CloseNonStdFDs closes every open file descriptor except stdin, stdout
// and stderr, by enumerating the per-process fd directory at selfFD. The
// directory iterator's own descriptor appears in the listing and is
// skipped; it is closed by the final Close. Errors are ignored: a
// descriptor that cannot be closed was not open.
//
// This must only be called when the process is about to exec: it may
// close descriptors the Go runtime still considers its own.
func CloseNonStdFDs(selfFD string) {
	dir, err := os.Open(selfFD)
	if err != nil {
		return
	}
	defer dir.Close()
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return
	}
	self := int(dir.Fd())
	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if fd == 0 || fd == 1 || fd == 2 || fd == self {
			continue
		}
		unix.Close(fd)
	}
}
