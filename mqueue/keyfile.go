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
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WriteKeyFile publishes the queue key: one decimal integer followed by a
// newline, created exclusively so concurrent launchers cannot clobber each
// other.
func WriteKeyFile(path string, key int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", key); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ReadKeyFile reads back a key file, refusing anything that is not exactly
// one positive decimal integer terminated by exactly one newline.
func ReadKeyFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := string(data)
	if !strings.HasSuffix(s, "\n") {
		return 0, fmt.Errorf("queue key file %q: missing newline terminator", path)
	}
	s = s[:len(s)-1]
	if s == "" || strings.ContainsAny(s, "\n") {
		return 0, fmt.Errorf("queue key file %q: malformed contents", path)
	}
	key, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("queue key file %q: %w", path, err)
	}
	if key <= 0 {
		return 0, fmt.Errorf("queue key file %q: key must be positive, got %d", path, key)
	}
	return key, nil
}
