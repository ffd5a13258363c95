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
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		argv []string
	}{
		{name: "verb only", argv: []string{"start"}},
		{name: "request", argv: []string{"", "start", "mydaemon"}},
		{name: "trailing args", argv: []string{"", "start", "mydaemon", "-p", "8080"}},
		{name: "empty elements", argv: []string{"", "", "stop", ""}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := EncodeArgv(tc.argv)
			if err != nil {
				t.Fatalf("EncodeArgv(%q): %v", tc.argv, err)
			}
			if payload[len(payload)-1] != 0 {
				t.Errorf("payload does not end in NUL: %q", payload)
			}
			got, err := DecodeArgv(payload)
			if err != nil {
				t.Fatalf("DecodeArgv(%q): %v", payload, err)
			}
			if diff := cmp.Diff(tc.argv, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeElementCountMatchesNULCount(t *testing.T) {
	for _, payload := range [][]byte{
		[]byte("\x00start\x00mydaemon\x00"),
		[]byte("start\x00"),
		[]byte("\x00\x00\x00"),
		[]byte("a\x00b\x00c\x00d\x00"),
	} {
		argv, err := DecodeArgv(payload)
		if err != nil {
			t.Fatalf("DecodeArgv(%q): %v", payload, err)
		}
		if want := bytes.Count(payload, []byte{0}); len(argv) != want {
			t.Errorf("DecodeArgv(%q) = %d elements, want %d", payload, len(argv), want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := DecodeArgv(nil); err != ErrEmptyMessage {
		t.Errorf("DecodeArgv(nil) = %v, want ErrEmptyMessage", err)
	}
	if _, err := DecodeArgv([]byte{}); err != ErrEmptyMessage {
		t.Errorf("DecodeArgv(empty) = %v, want ErrEmptyMessage", err)
	}
	if _, err := DecodeArgv([]byte("start")); err != ErrMissingTerminator {
		t.Errorf("DecodeArgv(unterminated) = %v, want ErrMissingTerminator", err)
	}
}

func TestEncodeRejectsEmbeddedNUL(t *testing.T) {
	if _, err := EncodeArgv([]string{"st\x00art"}); err == nil {
		t.Error("EncodeArgv accepted an argument containing NUL")
	}
	if _, err := EncodeArgv(nil); err != ErrEmptyMessage {
		t.Errorf("EncodeArgv(nil) = %v, want ErrEmptyMessage", err)
	}
}
