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

package daemonise

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"mydaemon", "my-daemon", "my.daemon", "my_daemon", "d1"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "my daemon", "../escape", "a/b", "dae\x00mon"} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestReshapeArgv(t *testing.T) {
	got := ReshapeArgv("start", "mydaemon", []string{"-p", "8080"})
	want := []string{"start", "mydaemon", "-p", "8080"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReshapeArgv mismatch (-want +got):\n%s", diff)
	}

	if got := ReshapeArgv("start", "mydaemon", nil); len(got) != 2 {
		t.Errorf("ReshapeArgv without extras = %q, want verb and name only", got)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mydaemon.pid")
	if err := WritePIDFile(path, 4321); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "4321\n"; got != want {
		t.Errorf("PID file contents = %q, want %q", got, want)
	}

	if got := readPID(path); got != 4321 {
		t.Errorf("readPID = %d, want 4321", got)
	}
}

func TestPIDFileTruncatesStaleContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mydaemon.pid")
	if err := os.WriteFile(path, []byte("99999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritePIDFile(path, 7); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "7\n"; got != want {
		t.Errorf("PID file contents = %q, want %q", got, want)
	}
}

func TestReadPIDDegradesToAnyChild(t *testing.T) {
	dir := t.TempDir()
	if got := readPID(filepath.Join(dir, "absent.pid")); got != -1 {
		t.Errorf("readPID(absent) = %d, want -1", got)
	}

	garbage := filepath.Join(dir, "garbage.pid")
	if err := os.WriteFile(garbage, []byte("not a pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPID(garbage); got != -1 {
		t.Errorf("readPID(garbage) = %d, want -1", got)
	}
}
