// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package frame

import "sync"

// Buffer sizes handed out by the pool.
const (
	SmallBufferSize = 16
	FrameBufferSize = MaxFrameLen
)

var (
	smallPool = sync.Pool{New: func() any { b := make([]byte, SmallBufferSize); return &b }}
	framePool = sync.Pool{New: func() any { b := make([]byte, FrameBufferSize); return &b }}
)

// GetBuffer returns a buffer of length size. Buffers up to FrameBufferSize
// come from a pool and should be returned with PutBuffer.
func GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size < 0:
		return nil
	case size <= SmallBufferSize:
		pool = &smallPool
	case size <= FrameBufferSize:
		pool = &framePool
	default:
		return make([]byte, size)
	}
	if b, ok := pool.Get().(*[]byte); ok {
		return (*b)[:size]
	}
	return make([]byte, size)
}

// GetFrameBuffer returns a buffer large enough for any frame.
func GetFrameBuffer() []byte {
	return GetBuffer(FrameBufferSize)
}

// PutBuffer clears buf and returns it to its pool.
func PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	buf = buf[:cap(buf)]
	clear(buf)
	switch cap(buf) {
	case SmallBufferSize:
		smallPool.Put(&buf)
	case FrameBufferSize:
		framePool.Put(&buf)
	}
}
