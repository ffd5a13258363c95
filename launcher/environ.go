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

package launcher

import (
	"fmt"
	"os"
	"strings"
)

// The environment table lists what survives into the chain: a line naming
// a variable copies it through from the inherited environment, a line
// containing '=' sets that value literally. Everything else is discarded.

// defaultTable applies when no environment table exists.
var defaultTable = []string{"PATH"}

// SanitizedEnviron computes the environment resulting from applying table
// to inherited. A nil table stands for a missing file and admits only the
// defaults. Blank lines are ignored; plain names absent from the
// inherited environment are dropped.
func SanitizedEnviron(table []string, inherited []string) []string {
	if table == nil {
		table = defaultTable
	}
	values := make(map[string]string, len(inherited))
	for _, kv := range inherited {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			values[kv[:i]] = kv[i+1:]
		}
	}
	var env []string
	for _, line := range table {
		if line == "" {
			continue
		}
		if strings.ContainsRune(line, '=') {
			env = append(env, line)
			continue
		}
		if v, ok := values[line]; ok {
			env = append(env, line+"="+v)
		}
	}
	return env
}

// ReadEnvironTable reads the table file. A missing file returns a nil
// table, which SanitizedEnviron treats as the defaults.
func ReadEnvironTable(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

// sanitizeProcessEnviron replaces the process environment with the
// sanitised one, so every descendant of the chain inherits it.
func sanitizeProcessEnviron(tablePath string) error {
	table, err := ReadEnvironTable(tablePath)
	if err != nil {
		return err
	}
	env := SanitizedEnviron(table, os.Environ())
	os.Clearenv()
	for _, kv := range env {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		if err := os.Setenv(kv[:i], kv[i+1:]); err != nil {
			return fmt.Errorf("restoring %q: %w", kv[:i], err)
		}
	}
	return nil
}
