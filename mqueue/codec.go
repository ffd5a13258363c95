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
	"errors"
	"fmt"
	"strings"
)

// Messages carry argument vectors as a flat buffer with a NUL after every
// element and no length prefix; the kernel delivers one receive per send.

var (
	// ErrEmptyMessage is returned for zero-length payloads.
	ErrEmptyMessage = errors.New("empty control message")

	// ErrMissingTerminator is returned when the final byte of a payload
	// is not NUL.
	ErrMissingTerminator = errors.New("control message not NUL-terminated")
)

// EncodeArgv flattens an argument vector into a message payload.
func EncodeArgv(argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyMessage
	}
	var b strings.Builder
	for _, arg := range argv {
		if strings.ContainsRune(arg, 0) {
			return nil, fmt.Errorf("argument %q contains NUL", arg)
		}
		b.WriteString(arg)
		b.WriteByte(0)
	}
	return []byte(b.String()), nil
}

// DecodeArgv reconstructs the argument vector from a payload. The vector
// has exactly as many elements as the payload has NUL bytes; a payload
// whose final byte is not NUL is rejected.
func DecodeArgv(payload []byte) ([]string, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyMessage
	}
	if payload[len(payload)-1] != 0 {
		return nil, ErrMissingTerminator
	}
	return strings.Split(string(payload[:len(payload)-1]), "\x00"), nil
}
