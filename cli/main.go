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

// Package cli is the main entrypoint for daemond.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/ponyinit/daemond/cmd"
	"github.com/ponyinit/daemond/cmd/util"
	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/version"
)

// versionFlagName is the name of a flag that triggers printing the
// version.
const versionFlagName = "version"

// Main is the main entrypoint.
func Main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	// User-facing commands.
	subcommands.Register(new(cmd.Launch), "")
	subcommands.Register(new(cmd.Start), "")
	subcommands.Register(new(cmd.Teardown), "")

	// Internal commands: the tiers of the supervision chain and the
	// levels of the daemonisation sequence, entered only through
	// self-exec.
	const internalGroup = "internal use only"
	subcommands.Register(new(cmd.Watchdog), internalGroup)
	subcommands.Register(new(cmd.Manager), internalGroup)
	subcommands.Register(new(cmd.Daemonise), internalGroup)
	subcommands.Register(new(cmd.DaemoniseSession), internalGroup)
	subcommands.Register(new(cmd.DaemoniseExec), internalGroup)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// Register version flag if it is not already defined.
	if flag.Lookup(versionFlagName) == nil {
		flag.Bool(versionFlagName, false, "show version and exit.")
	}

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Are we showing the version?
	if flag.Lookup(versionFlagName).Value.String() == "true" {
		fmt.Fprintf(os.Stdout, "daemond version %s\n", version.Version())
		os.Exit(0)
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	// All diagnostics go to stderr; stdout belongs to command output.
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	if conf.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}
