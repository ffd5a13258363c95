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

package watchdog

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ponyinit/daemond/pkg/procutil"
)

func TestRespawnDelay(t *testing.T) {
	birth := time.Now()
	for _, tc := range []struct {
		name  string
		death time.Time
		want  time.Duration
	}{
		{name: "instant death", death: birth, want: cooldown},
		{name: "just inside the window", death: birth.Add(999 * time.Millisecond), want: cooldown},
		{name: "exactly the window", death: birth.Add(time.Second), want: 0},
		{name: "long-lived manager", death: birth.Add(time.Hour), want: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := respawnDelay(birth, tc.death); got != tc.want {
				t.Errorf("respawnDelay = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNoteFlags(t *testing.T) {
	w := &Watchdog{immortal: true}

	w.note(unix.SIGCHLD)
	if w.reexecWanted || !w.immortal || w.parentDied {
		t.Error("SIGCHLD must not change any flag")
	}

	w.note(unix.SIGUSR1)
	if !w.reexecWanted {
		t.Error("SIGUSR1 must request re-exec")
	}

	w.note(unix.SIGUSR2)
	if w.immortal {
		t.Error("SIGUSR2 must disable immortality")
	}
	w.note(unix.SIGUSR2)
	if w.immortal {
		t.Error("repeated SIGUSR2 must keep immortality disabled")
	}
}

func TestNoteParentDeathOnlyWhenAdopted(t *testing.T) {
	w := &Watchdog{immortal: true}
	w.note(procutil.ParentDeathSignal)
	if w.parentDied {
		t.Error("parent-death signal must be ignored for a child manager")
	}

	w.adopted = true
	w.note(procutil.ParentDeathSignal)
	if !w.parentDied {
		t.Error("parent-death signal must be recorded for an adopted manager")
	}
}
