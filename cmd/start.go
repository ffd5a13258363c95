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

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/ponyinit/daemond/cmd/util"
	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/daemonise"
	"github.com/ponyinit/daemond/mqueue"
)

// Start implements subcommands.Command for the "start" command: it asks
// the running manager to daemonise a service.
type Start struct{}

// Name implements subcommands.Command.Name.
func (*Start) Name() string {
	return "start"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Start) Synopsis() string {
	return "ask the running manager to start a daemon"
}

// Usage implements subcommands.Command.Usage.
func (*Start) Usage() string {
	return `start <name> [args...] - publish a start request on the control queue.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Start) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Start) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	name := f.Arg(0)
	if err := daemonise.ValidateName(name); err != nil {
		util.Fatalf("%v", err)
	}

	key, err := mqueue.ReadKeyFile(conf.QueueKeyPath())
	if err != nil {
		util.Fatalf("reading queue key: %v", err)
	}
	q, err := mqueue.Open(key)
	if err != nil {
		util.Fatalf("attaching control queue: %v", err)
	}

	// The leading empty slot is the wire convention for requests.
	argv := append([]string{"", "start", name}, f.Args()[1:]...)
	payload, err := mqueue.EncodeArgv(argv)
	if err != nil {
		util.Fatalf("encoding request: %v", err)
	}
	if err := q.Send(mqueue.ControlType, payload); err != nil {
		util.Fatalf("publishing request: %v", err)
	}
	logrus.Debugf("start request for %q published", name)
	return subcommands.ExitSuccess
}
