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
	"github.com/ponyinit/daemond/manager"
)

// Manager implements subcommands.Command for the "manager" command.
type Manager struct {
	reexecing bool
}

// Name implements subcommands.Command.Name.
func (*Manager) Name() string {
	return "manager"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Manager) Synopsis() string {
	return "own the life-lock and the control queue, daemonise services"
}

// Usage implements subcommands.Command.Usage.
func (*Manager) Usage() string {
	return `manager [--reexecing] - run the management tier.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Manager) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.reexecing, "reexecing", false, "this image replaces a re-executed manager.")
}

// Execute implements subcommands.Command.Execute.
func (m *Manager) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	code, err := manager.Run(conf, m.reexecing)
	if err != nil {
		logrus.Errorf("manager: %v", err)
	}
	os.Exit(code)
	panic("unreachable")
}
