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

//go:build amd64 || arm64

// Package mqueue provides the control queue of the supervision chain: a
// kernel-resident System-V message queue addressed by a key published in a
// text file, carrying NUL-separated argument vectors as type-1 messages.
// The queue is many-producer, single-consumer; the manager is the only
// receiver.
package mqueue

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// ControlType is the message type carrying control requests. The
	// manager receives only this type.
	ControlType = 1

	// MaxMessageSize bounds the payload of a single message. It matches
	// the kernel's default per-message limit.
	MaxMessageSize = 8192

	// msgTypeSize is the size of the type word leading a message buffer.
	msgTypeSize = 8
)

// Queue is an attached System-V message queue.
type Queue struct {
	id int
}

// Create creates the queue addressed by key, failing if it already
// exists.
func Create(key int, perm uint32) (*Queue, error) {
	return get(key, int(perm)|unix.IPC_CREAT|unix.IPC_EXCL)
}

// Open attaches to the existing queue addressed by key.
func Open(key int) (*Queue, error) {
	return get(key, 0)
}

func get(key, flags int) (*Queue, error) {
	id, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(flags), 0)
	if errno != 0 {
		return nil, errno
	}
	return &Queue{id: int(id)}, nil
}

// ID returns the kernel identifier of the queue.
func (q *Queue) ID() int {
	return q.id
}

// Send enqueues one message of the given type. It blocks if the queue is
// full.
func (q *Queue) Send(mtype int64, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return unix.EMSGSIZE
	}
	buf := make([]byte, msgTypeSize+len(payload))
	*(*int64)(unsafe.Pointer(&buf[0])) = mtype
	copy(buf[msgTypeSize:], payload)
	for {
		_, _, errno := unix.Syscall6(unix.SYS_MSGSND,
			uintptr(q.id),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(payload)),
			0, 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

// Receive blocks until a message of the given type arrives and returns its
// payload. EINTR is surfaced to the caller so its loop can restart the
// receive after handling whatever interrupted it.
func (q *Queue) Receive(mtype int64, max int) ([]byte, error) {
	buf := make([]byte, msgTypeSize+max)
	n, _, errno := unix.Syscall6(unix.SYS_MSGRCV,
		uintptr(q.id),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(max),
		uintptr(mtype),
		0, 0)
	if errno != 0 {
		return nil, errno
	}
	return buf[msgTypeSize : msgTypeSize+int(n)], nil
}

// Remove destroys the queue. Pending messages are discarded by the kernel.
func (q *Queue) Remove() error {
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(q.id), unix.IPC_RMID, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// String implements fmt.Stringer.
func (q *Queue) String() string {
	return fmt.Sprintf("mqueue(%d)", q.id)
}
