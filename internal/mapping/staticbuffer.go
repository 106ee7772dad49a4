// Copyright 2018 The gVisor Authors.
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

package mapping

import "sync"

// StaticBufferWords is the capacity, in machine words, of the process-wide
// static counter buffer. Matches scudo's RegionPageMap::StaticBufferCount.
const StaticBufferWords = 2048

// WordSize is the size in bytes of one packed counter word.
const WordSize = 8

var (
	staticMu     sync.Mutex
	staticBuffer [StaticBufferWords]uint64
)

// TryAcquireStaticBuffer attempts to claim the process-wide static buffer
// for a PageMap whose packed counters fit within StaticBufferWords words.
// It returns the zero-filled buffer and true on success, or (nil, false)
// if the buffer is too small for neededWords or is already held by
// another in-flight release job. Acquisition never blocks: a single
// global mutex guarded by TryLock: a release job that can't get the
// static buffer falls back to a heap mapping instead of waiting.
func TryAcquireStaticBuffer(neededWords int) ([]uint64, bool) {
	if neededWords > StaticBufferWords {
		return nil, false
	}
	if !staticMu.TryLock() {
		return nil, false
	}
	buf := staticBuffer[:neededWords]
	for i := range buf {
		buf[i] = 0
	}
	return buf, true
}

// ReleaseStaticBuffer releases the lock acquired by a successful
// TryAcquireStaticBuffer call. Calling it without a matching successful
// acquisition is a programming error.
func ReleaseStaticBuffer() {
	staticMu.Unlock()
}
