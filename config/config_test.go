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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T) *flag.FlagSet {
	t.Helper()
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(f)
	return f
}

func TestNewFromFlagsDefaults(t *testing.T) {
	f := newFlagSet(t)
	if err := f.Parse(nil); err != nil {
		t.Fatal(err)
	}
	c, err := NewFromFlags(f)
	if err != nil {
		t.Fatal(err)
	}
	if c.RunDir != defaultRunDir || c.SysconfDir != defaultSysconfDir || c.Debug {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

func TestNewFromFlagsOverrideFile(t *testing.T) {
	sysconf := t.TempDir()
	confDir := filepath.Join(sysconf, PkgName+".d")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	contents := "run_dir = \"/var/run\"\ndebug = true\n"
	if err := os.WriteFile(filepath.Join(confDir, "config.toml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newFlagSet(t)
	if err := f.Parse([]string{"-sysconf-dir=" + sysconf}); err != nil {
		t.Fatal(err)
	}
	c, err := NewFromFlags(f)
	if err != nil {
		t.Fatal(err)
	}
	if c.RunDir != "/var/run" {
		t.Errorf("RunDir = %q, want the file's /var/run", c.RunDir)
	}
	if !c.Debug {
		t.Error("Debug must be taken from the file")
	}
	if c.SysconfDir != sysconf {
		t.Errorf("SysconfDir = %q, want the explicit flag %q", c.SysconfDir, sysconf)
	}
}

func TestNewFromFlagsExplicitFlagWins(t *testing.T) {
	sysconf := t.TempDir()
	confDir := filepath.Join(sysconf, PkgName+".d")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "config.toml"), []byte("run_dir = \"/var/run\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newFlagSet(t)
	if err := f.Parse([]string{"-sysconf-dir=" + sysconf, "-run-dir=/tmp/rt"}); err != nil {
		t.Fatal(err)
	}
	c, err := NewFromFlags(f)
	if err != nil {
		t.Fatal(err)
	}
	if c.RunDir != "/tmp/rt" {
		t.Errorf("RunDir = %q, want the explicit flag /tmp/rt", c.RunDir)
	}
}

func TestToFlagsRoundTrip(t *testing.T) {
	c := &Config{RunDir: "/tmp/rt", SysconfDir: "/tmp/etc", Debug: true}

	f := newFlagSet(t)
	if err := f.Parse(c.ToFlags()); err != nil {
		t.Fatal(err)
	}
	got, err := NewFromFlags(f)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPaths(t *testing.T) {
	c := &Config{RunDir: "/run", SysconfDir: "/etc"}
	for _, tc := range []struct {
		got, want string
	}{
		{c.PkgRunDir(), "/run/daemond"},
		{c.LifelinePath(), "/run/daemond/lifeline"},
		{c.QueueKeyPath(), "/run/daemond/mqueue.key"},
		{c.PIDFilePath("mydaemon"), "/run/mydaemon.pid"},
		{c.ConfDir(), "/etc/daemond.d"},
		{c.DaemonBasePath(), "/etc/daemond.d/daemon-base"},
		{c.HookPath("resurrect-paused"), "/etc/daemond.d/resurrect-paused"},
		{c.EnvirontabPath(), "/etc/daemond.d/environtab"},
	} {
		if tc.got != tc.want {
			t.Errorf("path = %q, want %q", tc.got, tc.want)
		}
	}
}
