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
	"github.com/sirupsen/logrus"

	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/launcher"
)

// Launch implements subcommands.Command for the "launch" command.
type Launch struct{}

// Name implements subcommands.Command.Name.
func (*Launch) Name() string {
	return "launch"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Launch) Synopsis() string {
	return "prepare the runtime directory and start the supervision chain"
}

// Usage implements subcommands.Command.Usage.
func (*Launch) Usage() string {
	return `launch - prepare the runtime directory, allocate the control queue and start the supervision chain.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Launch) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Launch) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	code, err := launcher.Run(conf)
	if err != nil {
		logrus.Errorf("launch: %v", err)
	}
	os.Exit(code)
	panic("unreachable")
}
