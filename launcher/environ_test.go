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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizedEnviron(t *testing.T) {
	inherited := []string{
		"PATH=/usr/bin:/bin",
		"HOME=/root",
		"TERM=xterm",
		"SECRET=hunter2",
	}
	for _, tc := range []struct {
		name  string
		table []string
		want  []string
	}{
		{
			name:  "missing table admits only PATH",
			table: nil,
			want:  []string{"PATH=/usr/bin:/bin"},
		},
		{
			name:  "plain names copy through",
			table: []string{"PATH", "HOME"},
			want:  []string{"PATH=/usr/bin:/bin", "HOME=/root"},
		},
		{
			name:  "absent names are dropped",
			table: []string{"PATH", "NO_SUCH_VARIABLE"},
			want:  []string{"PATH=/usr/bin:/bin"},
		},
		{
			name:  "literal overrides win over inherited values",
			table: []string{"PATH", "TERM=dumb"},
			want:  []string{"PATH=/usr/bin:/bin", "TERM=dumb"},
		},
		{
			name:  "blank lines are ignored",
			table: []string{"", "PATH", ""},
			want:  []string{"PATH=/usr/bin:/bin"},
		},
		{
			name:  "empty table admits nothing",
			table: []string{},
			want:  nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizedEnviron(tc.table, inherited)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("SanitizedEnviron mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadEnvironTable(t *testing.T) {
	dir := t.TempDir()

	if table, err := ReadEnvironTable(filepath.Join(dir, "absent")); err != nil || table != nil {
		t.Errorf("missing table = %v, %v; want nil, nil", table, err)
	}

	path := filepath.Join(dir, "environtab")
	if err := os.WriteFile(path, []byte("PATH\nLANG=C\nHOME\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := ReadEnvironTable(path)
	if err != nil {
		t.Fatalf("ReadEnvironTable: %v", err)
	}
	want := []string{"PATH", "LANG=C", "HOME"}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}
