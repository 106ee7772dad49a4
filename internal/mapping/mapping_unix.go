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

//go:build unix

package mapping

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ngaut/pagerelease/internal/log"
)

var (
	pageSizeOnce sync.Once
	pageSize     uintptr
)

func cachedPageSize() uintptr {
	pageSizeOnce.Do(func() {
		pageSize = uintptr(unix.Getpagesize())
	})
	return pageSize
}

// Map returns an anonymous, zero-filled, page-aligned mapping of at least
// size bytes. The returned slice's length and capacity equal the mapped
// size (rounded up to a page). The mapping is not backed by any file and
// has no associated platform data beyond what the OS needs to unmap it.
//
// Map mirrors memutil.MapSlice: a raw MAP_PRIVATE|MAP_ANONYMOUS mapping
// addressed through unsafe.Pointer rather than a *os.File.
func Map(size uintptr) ([]byte, error) {
	rounded := roundUpToPageSize(size)
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		0,
		rounded,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
		^uintptr(0),
		0)
	if errno != 0 {
		return nil, fmt.Errorf("mapping: mmap(%d bytes) failed: %w", rounded, errno)
	}
	var out []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&out))
	hdr.Data = addr
	hdr.Len = int(rounded)
	hdr.Cap = int(rounded)
	return out, nil
}

// Unmap releases a mapping previously returned by Map.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	_, _, errno := unix.RawSyscall6(unix.SYS_MUNMAP, uintptr(hdr.Data), uintptr(hdr.Cap), 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("mapping: munmap failed: %w", errno)
	}
	return nil
}

// ReleasePagesToOS advises the kernel that the page range
// [base+offset, base+offset+size) is no longer needed and may be
// reclaimed. This is advisory: the caller must not assume the pages are
// actually decommitted by the time this call returns on every platform.
//
// Uses MADV_DONTNEED (reliably zeroes-on-next-access on Linux). On
// failure it logs a warning and returns the error; ReleaseRecorder
// ignores that error, since the allocator treats release as a hint
// rather than a hard guarantee.
func ReleasePagesToOS(base, offset, size uintptr) error {
	addr := base + offset
	_, _, errno := unix.Syscall(unix.SYS_MADVISE, addr, size, unix.MADV_DONTNEED)
	if errno != 0 {
		log.Warningf("madvise(%#x, %d, MADV_DONTNEED) failed: %s", addr, size, errno)
		return fmt.Errorf("mapping: madvise failed: %w", errno)
	}
	return nil
}

func roundUpToPageSize(size uintptr) uintptr {
	ps := cachedPageSize()
	return (size + ps - 1) &^ (ps - 1)
}
