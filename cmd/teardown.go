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

	"github.com/ponyinit/daemond/cmd/util"
	"github.com/ponyinit/daemond/config"
	"github.com/ponyinit/daemond/mqueue"
)

// Teardown implements subcommands.Command for the "teardown" command: the
// operator-side destruction of the control queue.
type Teardown struct{}

// Name implements subcommands.Command.Name.
func (*Teardown) Name() string {
	return "teardown"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Teardown) Synopsis() string {
	return "destroy the control queue and its key file"
}

// Usage implements subcommands.Command.Usage.
func (*Teardown) Usage() string {
	return `teardown - destroy the control queue and remove the queue-key file.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Teardown) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Teardown) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	key, err := mqueue.ReadKeyFile(conf.QueueKeyPath())
	if err != nil {
		util.Fatalf("reading queue key: %v", err)
	}
	q, err := mqueue.Open(key)
	if err != nil {
		util.Fatalf("attaching control queue: %v", err)
	}
	if err := q.Remove(); err != nil {
		util.Fatalf("removing control queue: %v", err)
	}
	if err := os.Remove(conf.QueueKeyPath()); err != nil {
		util.Fatalf("removing queue key file: %v", err)
	}
	return subcommands.ExitSuccess
}
