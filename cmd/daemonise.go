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

	"github.com/google/subcommands"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/daemonise"
)

// The three daemonise commands are the exec levels of the daemonisation
// sequence. They share an argument convention: the verb first, the daemon
// name second, then optional script-dependent arguments.

// daemoniseArgs validates the shared argument convention.
func daemoniseArgs(f *flag.FlagSet) (verb, name string, extra []string, ok bool) {
	if f.NArg() < 2 {
		f.Usage()
		return "", "", nil, false
	}
	verb, name = f.Arg(0), f.Arg(1)
	if err := daemonise.ValidateName(name); err != nil {
		f.Usage()
		return "", "", nil, false
	}
	return verb, name, f.Args()[2:], true
}

// Daemonise implements subcommands.Command for the "daemonise" command,
// the top level of the daemonisation sequence.
type Daemonise struct{}

// Name implements subcommands.Command.Name.
func (*Daemonise) Name() string {
	return "daemonise"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Daemonise) Synopsis() string {
	return "daemonise a service and report its startup status"
}

// Usage implements subcommands.Command.Usage.
func (*Daemonise) Usage() string {
	return `daemonise <verb> <name> [args...] - daemonise a service.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Daemonise) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Daemonise) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	verb, name, extra, ok := daemoniseArgs(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	os.Exit(daemonise.Run(conf, verb, name, extra))
	panic("unreachable")
}

// DaemoniseSession implements subcommands.Command for the
// "daemonise-session" command, the intermediate session leader.
type DaemoniseSession struct{}

// Name implements subcommands.Command.Name.
func (*DaemoniseSession) Name() string {
	return "daemonise-session"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*DaemoniseSession) Synopsis() string {
	return "intermediate session leader of the daemonisation sequence"
}

// Usage implements subcommands.Command.Usage.
func (*DaemoniseSession) Usage() string {
	return `daemonise-session <verb> <name> [args...] - internal.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*DaemoniseSession) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*DaemoniseSession) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	verb, name, extra, ok := daemoniseArgs(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	os.Exit(daemonise.RunSession(conf, verb, name, extra))
	panic("unreachable")
}

// DaemoniseExec implements subcommands.Command for the "daemonise-exec"
// command, the daemon-to-be.
type DaemoniseExec struct{}

// Name implements subcommands.Command.Name.
func (*DaemoniseExec) Name() string {
	return "daemonise-exec"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*DaemoniseExec) Synopsis() string {
	return "final level of the daemonisation sequence"
}

// Usage implements subcommands.Command.Usage.
func (*DaemoniseExec) Usage() string {
	return `daemonise-exec <verb> <name> [args...] - internal.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*DaemoniseExec) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*DaemoniseExec) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	verb, name, extra, ok := daemoniseArgs(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	os.Exit(daemonise.RunExec(conf, verb, name, extra))
	panic("unreachable")
}
