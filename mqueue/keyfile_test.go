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

package mqueue

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mqueue.key")
	if err := WriteKeyFile(path, 123456789); err != nil {
		t.Fatalf("WriteKeyFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading key file: %v", err)
	}
	if got, want := string(data), "123456789\n"; got != want {
		t.Errorf("key file contents = %q, want %q", got, want)
	}

	key, err := ReadKeyFile(path)
	if err != nil {
		t.Fatalf("ReadKeyFile: %v", err)
	}
	if key != 123456789 {
		t.Errorf("ReadKeyFile = %d, want 123456789", key)
	}
}

func TestKeyFileIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mqueue.key")
	if err := WriteKeyFile(path, 7); err != nil {
		t.Fatalf("WriteKeyFile: %v", err)
	}
	if err := WriteKeyFile(path, 8); !os.IsExist(err) {
		t.Errorf("second WriteKeyFile = %v, want EEXIST", err)
	}
	if key, err := ReadKeyFile(path); err != nil || key != 7 {
		t.Errorf("ReadKeyFile = %d, %v; want 7, nil", key, err)
	}
}

func TestReadKeyFileRejectsMalformed(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{name: "empty", contents: ""},
		{name: "no newline", contents: "123"},
		{name: "blank line", contents: "\n"},
		{name: "extra newline", contents: "123\n\n"},
		{name: "trailing junk", contents: "123\nx"},
		{name: "not a number", contents: "abc\n"},
		{name: "zero", contents: "0\n"},
		{name: "negative", contents: "-5\n"},
		{name: "two values", contents: "12 34\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "mqueue.key")
			if err := os.WriteFile(path, []byte(tc.contents), 0o640); err != nil {
				t.Fatal(err)
			}
			if key, err := ReadKeyFile(path); err == nil {
				t.Errorf("ReadKeyFile(%q) = %d, want error", tc.contents, key)
			}
		})
	}
}
