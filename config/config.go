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

// Package config holds the directory layout and constants of the system.
//
// The layout can be changed with top-level flags or with an optional TOML
// file in the package configuration directory. Explicit flags win over the
// file, the file wins over the built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// PkgName is the package name of the software. It names the runtime
	// subdirectory and the configuration directory.
	PkgName = "daemond"

	// SelfFD is the pathname of the per-process fd directory.
	SelfFD = "/proc/self/fd"

	// DevNull is the pathname of the null device.
	DevNull = "/dev/null"

	// DaemonNameTag is the environment variable exported into every
	// daemonised service, holding the service's name.
	DaemonNameTag = "DAEMOND_NAME"

	defaultRunDir     = "/run"
	defaultSysconfDir = "/etc"
)

// Config holds the resolved directory layout. It is built once in the cli
// package and handed to every subcommand.
type Config struct {
	// RunDir is the system directory for runtime data. PID files live
	// directly underneath it; the life-lock and queue-key file live in the
	// PkgName subdirectory.
	RunDir string

	// SysconfDir is the system directory for local configuration.
	SysconfDir string

	// Debug enables debug logging.
	Debug bool
}

// fileConfig mirrors Config in the optional override file.
type fileConfig struct {
	RunDir     string `toml:"run_dir"`
	SysconfDir string `toml:"sysconf_dir"`
	Debug      *bool  `toml:"debug"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(f *flag.FlagSet) {
	f.String("run-dir", defaultRunDir, "directory for runtime data: PID files and the package runtime directory.")
	f.String("sysconf-dir", defaultSysconfDir, "directory for local configuration: the package configuration directory lives underneath it.")
	f.String("config-file", "", "TOML file overriding the directory layout. Defaults to config.toml in the package configuration directory when present.")
	f.Bool("debug", false, "enable debug logging.")
}

// NewFromFlags builds a Config from the registered flags, applying the
// override file where flags were left at their defaults.
func NewFromFlags(f *flag.FlagSet) (*Config, error) {
	c := &Config{
		RunDir:     f.Lookup("run-dir").Value.String(),
		SysconfDir: f.Lookup("sysconf-dir").Value.String(),
		Debug:      f.Lookup("debug").Value.String() == "true",
	}

	explicit := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { explicit[fl.Name] = true })

	path := f.Lookup("config-file").Value.String()
	if path == "" {
		def := filepath.Join(c.ConfDir(), "config.toml")
		if _, err := os.Stat(def); err == nil {
			path = def
		}
	}
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
		if fc.RunDir != "" && !explicit["run-dir"] {
			c.RunDir = fc.RunDir
		}
		if fc.SysconfDir != "" && !explicit["sysconf-dir"] {
			c.SysconfDir = fc.SysconfDir
		}
		if fc.Debug != nil && !explicit["debug"] {
			c.Debug = *fc.Debug
		}
	}

	if c.RunDir == "" || c.SysconfDir == "" {
		return nil, fmt.Errorf("run-dir and sysconf-dir must not be empty")
	}
	return c, nil
}

// ToFlags serialises the configuration for handing to a re-executed or
// spawned copy of the binary.
func (c *Config) ToFlags() []string {
	flags := []string{
		"-run-dir=" + c.RunDir,
		"-sysconf-dir=" + c.SysconfDir,
	}
	if c.Debug {
		flags = append(flags, "-debug=true")
	}
	return flags
}

// PkgRunDir returns the package runtime directory.
func (c *Config) PkgRunDir() string {
	return filepath.Join(c.RunDir, PkgName)
}

// LifelinePath returns the pathname of the life-lock file. Holding its
// exclusive advisory lock means the manager is running.
func (c *Config) LifelinePath() string {
	return filepath.Join(c.PkgRunDir(), "lifeline")
}

// QueueKeyPath returns the pathname of the file holding the control
// queue's key.
func (c *Config) QueueKeyPath() string {
	return filepath.Join(c.PkgRunDir(), "mqueue.key")
}

// PIDFilePath returns the pathname of a daemonised service's PID file.
func (c *Config) PIDFilePath(name string) string {
	return filepath.Join(c.RunDir, name+".pid")
}

// ConfDir returns the package configuration directory.
func (c *Config) ConfDir() string {
	return filepath.Join(c.SysconfDir, PkgName+".d")
}

// DaemonBasePath returns the pathname of the site's service base script,
// the exec target of every daemonised service.
func (c *Config) DaemonBasePath() string {
	return filepath.Join(c.ConfDir(), "daemon-base")
}

// HookPath returns the pathname of an operator hook script.
func (c *Config) HookPath(name string) string {
	return filepath.Join(c.ConfDir(), name)
}

// EnvirontabPath returns the pathname of the environment table.
func (c *Config) EnvirontabPath() string {
	return filepath.Join(c.ConfDir(), "environtab")
}
