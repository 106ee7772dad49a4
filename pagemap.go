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

package pagerelease

import (
	"unsafe"

	"github.com/ngaut/pagerelease/internal/log"
	"github.com/ngaut/pagerelease/internal/mapping"
	"github.com/ngaut/pagerelease/internal/pagemath"
)

// debugAssertionsEnabled gates CHECK/DCHECK-style precondition
// assertions. It is a variable rather than a build tag and defaults to
// true in every build, so a violated precondition panics; when it is
// false every dcheck is a no-op.
var debugAssertionsEnabled = true

func dcheck(cond bool, msg string) {
	if debugAssertionsEnabled && !cond {
		panic("pagerelease: precondition violated: " + msg)
	}
}

const wordBits = mapping.WordSize * 8

// PageMap is a packed array of small unsigned counters, one per
// (region, page), used to track how many free blocks influence each
// page and whether a page has been marked fully free.
//
// None of PageMap's accessors validate Region/index arguments for
// performance; callers must uphold region < Regions and i < NumCounters.
// PageMap owns its backing buffer and must be closed with Close when
// the release job finishes.
type PageMap struct {
	regions     uint64
	numCounters uint64

	counterWidthLog uint64 // log2(bits per counter)
	counterMask     uint64
	packingRatioLog uint64 // log2(counters per word)
	bitOffsetMask   uint64

	sizePerRegion uint64 // words per region
	bufferSize    uint64 // bytes

	buffer       []uint64
	fromStatic   bool
	fromHeapSlab []byte // backing store when not using the static buffer
}

// Reset (re)configures the PageMap's geometry and allocates its backing
// buffer. Counter width is the smallest power-of-two bit width able to
// represent maxValue; the buffer is zero-filled. On success
// IsAllocated() returns true; on allocation failure it returns false
// and the caller must abort the release job.
func (m *PageMap) Reset(regions, numCounters, maxValue uint64) {
	dcheck(regions > 0, "Reset: regions must be > 0")
	dcheck(numCounters > 0, "Reset: numCounters must be > 0")
	dcheck(maxValue > 0, "Reset: maxValue must be > 0")

	m.closeBuffer()

	m.regions = regions
	m.numCounters = numCounters

	counterWidth := pagemath.RoundUpPowerOfTwo(pagemath.MostSignificantSetBitIndex(maxValue) + 1)
	dcheck(counterWidth <= wordBits, "Reset: counter width exceeds word size")
	m.counterWidthLog = pagemath.Log2(counterWidth)
	m.counterMask = ^uint64(0) >> (wordBits - counterWidth)

	packingRatio := wordBits >> m.counterWidthLog
	dcheck(packingRatio > 0, "Reset: packing ratio must be > 0")
	m.packingRatioLog = pagemath.Log2(uint64(packingRatio))
	m.bitOffsetMask = uint64(packingRatio) - 1

	m.sizePerRegion = pagemath.RoundUp(numCounters, uint64(1)<<m.packingRatioLog) >> m.packingRatioLog
	m.bufferSize = m.sizePerRegion * mapping.WordSize * regions

	if buf, ok := mapping.TryAcquireStaticBuffer(int(m.sizePerRegion * regions)); ok {
		log.Debugf("pagemap: acquired static buffer (%d words)", m.sizePerRegion*regions)
		m.buffer = buf
		m.fromStatic = true
		return
	}

	slab, err := mapping.Map(uintptr(m.bufferSize))
	if err != nil {
		log.Warningf("pagemap: falling back to heap mapping for %d bytes failed: %s", m.bufferSize, err)
		m.buffer = nil
		m.fromStatic = false
		return
	}
	m.fromHeapSlab = slab
	m.buffer = bytesToWords(slab)
}

// IsAllocated reports whether Reset successfully acquired a backing
// buffer. Every other method's behavior is undefined if this is false.
func (m *PageMap) IsAllocated() bool { return m.buffer != nil }

// GetCount returns the configured number of counters per region.
func (m *PageMap) GetCount() uint64 { return m.numCounters }

// GetBufferSize returns the size in bytes of the backing buffer.
func (m *PageMap) GetBufferSize() uint64 { return m.bufferSize }

func (m *PageMap) index(region, i uint64) (wordIndex, bitOffset uint64) {
	wordIndex = region*m.sizePerRegion + (i >> m.packingRatioLog)
	bitOffset = (i & m.bitOffsetMask) << m.counterWidthLog
	return
}

// Get returns the counter value at (region, i).
func (m *PageMap) Get(region, i uint64) uint64 {
	wi, bo := m.index(region, i)
	return (m.buffer[wi] >> bo) & m.counterMask
}

// Inc adds 1 to the counter at (region, i).
// Precondition: Get(region, i) < CounterMask and the page is not
// already marked fully free.
func (m *PageMap) Inc(region, i uint64) {
	dcheck(m.Get(region, i) < m.counterMask, "Inc: counter already at max")
	dcheck(!m.IsAllCounted(region, i), "Inc: page already marked all-counted")
	wi, bo := m.index(region, i)
	m.buffer[wi] += uint64(1) << bo
}

// IncN adds n to the counter at (region, i).
// Precondition: Get(region, i) <= CounterMask - n and the page is not
// already marked fully free.
func (m *PageMap) IncN(region, i, n uint64) {
	dcheck(n > 0, "IncN: n must be > 0")
	dcheck(n <= m.counterMask, "IncN: n exceeds counter mask")
	dcheck(m.Get(region, i) <= m.counterMask-n, "IncN: counter would overflow")
	dcheck(!m.IsAllCounted(region, i), "IncN: page already marked all-counted")
	wi, bo := m.index(region, i)
	m.buffer[wi] += n << bo
}

// IncRange increments each counter in [from, min(to+1, NumCounters)) by 1.
func (m *PageMap) IncRange(region, from, to uint64) {
	dcheck(from <= to, "IncRange: from must be <= to")
	top := to + 1
	if top > m.numCounters {
		top = m.numCounters
	}
	for i := from; i < top; i++ {
		m.Inc(region, i)
	}
}

// SetAsAllCounted force-marks the page at (region, i) as fully free,
// regardless of its current counter value.
func (m *PageMap) SetAsAllCounted(region, i uint64) {
	dcheck(m.Get(region, i) <= m.counterMask, "SetAsAllCounted: counter exceeds mask")
	wi, bo := m.index(region, i)
	m.buffer[wi] |= m.counterMask << bo
}

// SetAsAllCountedRange marks each page in [from, min(to+1, NumCounters))
// as fully free.
func (m *PageMap) SetAsAllCountedRange(region, from, to uint64) {
	dcheck(from <= to, "SetAsAllCountedRange: from must be <= to")
	top := to + 1
	if top > m.numCounters {
		top = m.numCounters
	}
	for i := from; i < top; i++ {
		m.SetAsAllCounted(region, i)
	}
}

// UpdateAsAllCountedIf is the release-time classifier: if the counter
// at (region, i) is already CounterMask, it returns true. If it equals
// expected, it sets the counter to CounterMask and returns true.
// Otherwise it returns false.
func (m *PageMap) UpdateAsAllCountedIf(region, i, expected uint64) bool {
	count := m.Get(region, i)
	if count == m.counterMask {
		return true
	}
	if count == expected {
		m.SetAsAllCounted(region, i)
		return true
	}
	return false
}

// IsAllCounted reports whether the counter at (region, i) equals
// CounterMask.
func (m *PageMap) IsAllCounted(region, i uint64) bool {
	return m.Get(region, i) == m.counterMask
}

// Close releases the PageMap's backing buffer: unlocking the
// process-wide static buffer if it was used, or unmapping the heap
// mapping otherwise. Close is idempotent.
func (m *PageMap) Close() {
	m.closeBuffer()
}

func (m *PageMap) closeBuffer() {
	if m.buffer == nil {
		return
	}
	if m.fromStatic {
		log.Debugf("pagemap: released static buffer")
		mapping.ReleaseStaticBuffer()
	} else {
		mapping.Unmap(m.fromHeapSlab)
		m.fromHeapSlab = nil
	}
	m.buffer = nil
	m.fromStatic = false
}

// bytesToWords reinterprets a zero-filled byte slab in place as a
// []uint64 view over the same backing memory, without copying. This
// matters: the slab may be an mmap mapping that ReleasePagesToOS later
// decommits out from under it, so the PageMap must operate on that
// memory directly rather than on a private copy. The slab is
// word-aligned because Map rounds its request up to the page size,
// which is always a multiple of WordSize.
func bytesToWords(b []byte) []uint64 {
	n := len(b) / mapping.WordSize
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
}
