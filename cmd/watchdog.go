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

package cmd

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/watchdog"
)

// Watchdog implements subcommands.Command for the "watchdog" command.
type Watchdog struct{}

// Name implements subcommands.Command.Name.
func (*Watchdog) Name() string {
	return "watchdog"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Watchdog) Synopsis() string {
	return "supervise the manager, respawning it when it dies"
}

// Usage implements subcommands.Command.Usage.
func (*Watchdog) Usage() string {
	return `watchdog [manager-pid] - supervise the manager. With an argument, resume
supervision of the given already-existing manager instead of forking one.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Watchdog) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Watchdog) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	resumePID := 0
	if f.NArg() == 1 {
		var err error
		resumePID, err = strconv.Atoi(f.Arg(0))
		if err != nil || resumePID <= 0 {
			f.Usage()
			return subcommands.ExitUsageError
		}
	}

	code, err := watchdog.Run(conf, resumePID)
	if err != nil {
		logrus.Errorf("watchdog: %v", err)
	}
	os.Exit(code)
	panic("unreachable")
}
