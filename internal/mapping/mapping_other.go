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

//go:build !unix

package mapping

import "github.com/ngaut/pagerelease/internal/log"

const fallbackPageSize = 4096

func cachedPageSize() uintptr { return fallbackPageSize }

// Map falls back to a plain heap allocation when no anonymous-mapping
// syscall is available, mirroring mmfile's non-unix fallback of reading
// the whole file instead of mapping it: the counter array still works,
// it is simply GC-managed rather than OS-mapped.
func Map(size uintptr) ([]byte, error) {
	rounded := roundUpToPageSize(size)
	return make([]byte, rounded), nil
}

// Unmap is a no-op on the fallback path; the slice is left to the GC.
func Unmap(b []byte) error { return nil }

// ReleasePagesToOS is advisory only; without a real madvise there is
// nothing to do beyond logging that the hint was dropped.
func ReleasePagesToOS(base, offset, size uintptr) error {
	log.Debugf("mapping: release hint for %d bytes dropped (no OS primitive on this platform)", size)
	return nil
}

func roundUpToPageSize(size uintptr) uintptr {
	ps := cachedPageSize()
	return (size + ps - 1) &^ (ps - 1)
}
