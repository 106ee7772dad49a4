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
	"github.com/ngaut/pagerelease/internal/mapping"
	"github.com/ngaut/pagerelease/internal/pagemath"
)

// ReleaseContext computes the block/page geometry of a release job,
// owns its PageMap, and exposes the two ways of populating it: bulk
// range marking for known-empty regions, and free-list enumeration for
// individually freed blocks.
type ReleaseContext struct {
	BlockSize       uint64
	RegionSize      uint64
	NumberOfRegions uint64

	// ReleasePageOffset is the page offset of the release window within
	// region 0; nonzero only for single-region partial-window jobs.
	ReleasePageOffset uint64

	PageSize          uint64
	PagesCount        uint64
	PageSizeLog       uint64
	RoundedRegionSize uint64
	RoundedSize       uint64

	FullPagesBlockCountMax uint64
	SameBlockCountPerPage  bool

	PageMap PageMap
}

// NewReleaseContext classifies the block/page geometry for a job
// covering [ReleaseOffset, ReleaseOffset+ReleaseSize) of region 0 (or,
// when numberOfRegions > 1, the entirety of every region — partial
// windows are only supported for a single region).
func NewReleaseContext(blockSize, regionSize, numberOfRegions, releaseSize uint64, releaseOffset uint64) *ReleaseContext {
	c := &ReleaseContext{
		BlockSize:       blockSize,
		RegionSize:      regionSize,
		NumberOfRegions: numberOfRegions,
		PageSize:        uint64(mapping.PageSize()),
	}

	p := c.PageSize
	b := blockSize
	switch {
	case b <= p && p%b == 0:
		// Same number of chunks per page, no cross-overs.
		c.FullPagesBlockCountMax = p / b
		c.SameBlockCountPerPage = true
	case b <= p && b%(p%b) == 0:
		// Some chunks cross page boundaries, but every page still
		// contains the same number of chunks.
		c.FullPagesBlockCountMax = p/b + 1
		c.SameBlockCountPerPage = true
	case b <= p:
		// Some chunks cross page boundaries; pages vary in chunk count.
		c.FullPagesBlockCountMax = p/b + 2
		c.SameBlockCountPerPage = false
	case b%p == 0:
		// One chunk covers multiple pages, no cross-overs.
		c.FullPagesBlockCountMax = 1
		c.SameBlockCountPerPage = true
	default:
		// One chunk covers multiple pages and crosses page boundaries.
		c.FullPagesBlockCountMax = 2
		c.SameBlockCountPerPage = false
	}

	if numberOfRegions != 1 {
		dcheck(releaseSize == regionSize, "NewReleaseContext: multi-region jobs must release the full region")
		dcheck(releaseOffset == 0, "NewReleaseContext: multi-region jobs must not use a release offset")
	}

	c.PagesCount = pagemath.RoundUp(releaseSize, p) / p
	c.PageSizeLog = pagemath.Log2(p)
	c.RoundedRegionSize = pagemath.RoundUp(regionSize, p)
	c.RoundedSize = numberOfRegions * c.RoundedRegionSize
	c.ReleasePageOffset = releaseOffset >> c.PageSizeLog

	return c
}

// HasBlockMarked reports whether the PageMap has been allocated, i.e.
// whether at least one marking call has happened (or the map was
// eagerly allocated).
func (c *ReleaseContext) HasBlockMarked() bool { return c.PageMap.IsAllocated() }

// ensurePageMapAllocated lazily allocates the PageMap on first use by
// either marking entry point.
func (c *ReleaseContext) ensurePageMapAllocated() {
	if c.PageMap.IsAllocated() {
		return
	}
	c.PageMap.Reset(c.NumberOfRegions, c.PagesCount, c.FullPagesBlockCountMax)
	dcheck(c.PageMap.IsAllocated(), "ensurePageMapAllocated: PageMap allocation failed")
}

func (c *ReleaseContext) pageIndex(p uint64) uint64 {
	return (p >> c.PageSizeLog) - c.ReleasePageOffset
}

// MarkRangeAsAllCounted bulk-marks the page-aligned byte range
// [from, to) within a single region as fully free, without visiting
// every block in the range. from must be page-aligned; to must be
// page-aligned unless the range extends to the region end.
func (c *ReleaseContext) MarkRangeAsAllCounted(from, to, base uint64) {
	dcheck(from < to, "MarkRangeAsAllCounted: from must be < to")
	dcheck(from%c.PageSize == 0, "MarkRangeAsAllCounted: from must be page-aligned")

	c.ensurePageMapAllocated()

	fromOffset := from - base
	toOffset := to - base

	var regionIndex uint64
	if c.NumberOfRegions != 1 {
		regionIndex = fromOffset / c.RegionSize
	}
	if debugAssertionsEnabled && c.NumberOfRegions != 1 {
		toRegionIndex := (toOffset - 1) / c.RegionSize
		dcheck(regionIndex == toRegionIndex, "MarkRangeAsAllCounted: range must not cross regions")
	}

	fromInRegion := fromOffset - regionIndex*c.RegionSize
	toInRegion := toOffset - regionIndex*c.RegionSize
	firstBlockInRange := pagemath.RoundUp(fromInRegion, c.BlockSize)

	// A single straddling block covers the entire range.
	if firstBlockInRange >= toInRegion {
		return
	}

	// The first block may not start at the first page in the range;
	// move fromInRegion to that block's page.
	fromInRegion = pagemath.RoundDown(firstBlockInRange, c.PageSize)

	// A block straddles `from` when the first fully-starting block
	// isn't aligned to the page it begins in. We can't mark that first
	// page as all-counted outright; instead increment its counter by
	// however many blocks start inside it at or after firstBlockInRange
	// (including one that runs past its end), then advance past it.
	if firstBlockInRange != fromInRegion {
		dcheck(fromInRegion+c.PageSize > firstBlockInRange, "MarkRangeAsAllCounted: seam arithmetic invariant violated")
		numBlocksInFirstPage := pagemath.CeilDiv(fromInRegion+c.PageSize-firstBlockInRange, c.BlockSize)
		c.PageMap.IncN(regionIndex, c.pageIndex(fromInRegion), numBlocksInFirstPage)
		fromInRegion = pagemath.RoundUp(fromInRegion+1, c.PageSize)
	}

	lastBlockInRange := pagemath.RoundDown(toInRegion-1, c.BlockSize)
	if lastBlockInRange < fromInRegion {
		return
	}

	if lastBlockInRange+c.BlockSize != c.RegionSize {
		dcheck(toInRegion%c.PageSize == 0, "MarkRangeAsAllCounted: to must be page-aligned unless it reaches region end")
		// The last block straddles `to`: increment the counters of the
		// pages covered by the straddling bytes instead of marking them
		// all-counted outright.
		if lastBlockInRange+c.BlockSize != toInRegion {
			c.PageMap.IncRange(regionIndex, c.pageIndex(toInRegion), c.pageIndex(lastBlockInRange+c.BlockSize-1))
		}
	} else {
		// The last block is the region's terminal block: bytes past it
		// aren't accessible, so it's safe to extend the range to
		// RegionSize.
		toInRegion = c.RegionSize
	}

	if fromInRegion < toInRegion {
		c.PageMap.SetAsAllCountedRange(regionIndex, c.pageIndex(fromInRegion), c.pageIndex(toInRegion-1))
	}
}

// MarkFreeBlocks enumerates freeList and, for each free block, updates
// the PageMap to reflect that block's contribution to its page(s).
// decompactPtr reconstructs absolute addresses from the free list's
// compact representation; base is subtracted to get an in-window
// offset.
func (c *ReleaseContext) MarkFreeBlocks(freeList FreeList, decompactPtr DecompactPtr, base uint64) {
	c.ensurePageMapAllocated()

	lastBlockInRegion := (c.RegionSize/c.BlockSize - 1) * c.BlockSize

	// The last block in a region may not fill the remainder of the
	// region's last page(s); when it's free, synthesize phantom blocks
	// covering the rest of the rounded region so the "page is full of
	// free blocks" comparison is valid at the tail.
	markLastBlock := func(regionIndex uint64) {
		pInRegion := lastBlockInRegion + c.BlockSize
		for pInRegion < c.RoundedRegionSize {
			c.PageMap.IncRange(regionIndex, c.pageIndex(pInRegion), c.pageIndex(pInRegion+c.BlockSize-1))
			pInRegion += c.BlockSize
		}
	}

	fastPath := c.BlockSize <= c.PageSize && c.PageSize%c.BlockSize == 0

	freeList.ForEachBatch(func(batch Batch) bool {
		count := batch.GetCount()
		for i := uint16(0); i < count; i++ {
			p := decompactPtr(batch.Get(i)) - base
			if p >= c.RoundedSize {
				continue
			}
			var regionIndex uint64
			if c.NumberOfRegions != 1 {
				regionIndex = p / c.RegionSize
			}
			pInRegion := p - regionIndex*c.RegionSize

			if fastPath {
				// Each block lies entirely within one page.
				c.PageMap.Inc(regionIndex, c.pageIndex(pInRegion))
			} else {
				dcheck(c.RegionSize >= c.BlockSize, "MarkFreeBlocks: region smaller than block")
				c.PageMap.IncRange(regionIndex, c.pageIndex(pInRegion), c.pageIndex(pInRegion+c.BlockSize-1))
			}
			if pInRegion == lastBlockInRegion {
				markLastBlock(regionIndex)
			}
		}
		return true
	})
}
