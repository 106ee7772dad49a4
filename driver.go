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

import "github.com/ngaut/pagerelease/internal/pagemath"

// SkipRegion reports whether region i should be excluded from release
// entirely, e.g. because the caller's policy decided not to touch it
// this cycle.
type SkipRegion func(region uint64) bool

// ReleaseFreeMemoryToOS walks context's PageMap region-by-region,
// page-by-page, classifying each page as fully free or not and
// feeding the result to a RangeTracker wrapping recorder. The PageMap
// must already be populated via MarkRangeAsAllCounted and/or
// MarkFreeBlocks.
func ReleaseFreeMemoryToOS(ctx *ReleaseContext, recorder Recorder, skipRegion SkipRegion) {
	pageSize := ctx.PageSize
	blockSize := ctx.BlockSize
	pagesCount := ctx.PagesCount
	numberOfRegions := ctx.NumberOfRegions
	releasePageOffset := ctx.ReleasePageOffset
	fullPagesBlockCountMax := ctx.FullPagesBlockCountMax

	tracker := NewRangeTracker(recorder, ctx.PageSizeLog)

	if ctx.SameBlockCountPerPage {
		// Fast path: every page in a region has the same expected block
		// count, so releasability reduces to one comparison per page.
		for region := uint64(0); region < numberOfRegions; region++ {
			if skipRegion(region) {
				tracker.SkipPages(pagesCount)
				continue
			}
			for j := uint64(0); j < pagesCount; j++ {
				canRelease := ctx.PageMap.UpdateAsAllCountedIf(region, j, fullPagesBlockCountMax)
				tracker.ProcessNextPage(canRelease)
			}
		}
	} else {
		// Slow path: blocks cross pages irregularly, so the expected
		// count per page must be derived by walking block boundaries
		// alongside page boundaries.
		pn := pageSize / blockSize
		if blockSize >= pageSize {
			pn = 1
		}
		pnc := pn * blockSize

		for region := uint64(0); region < numberOfRegions; region++ {
			if skipRegion(region) {
				tracker.SkipPages(pagesCount)
				continue
			}

			var prevPageBoundary, currentBoundary uint64
			if releasePageOffset > 0 {
				prevPageBoundary = releasePageOffset * pageSize
				currentBoundary = pagemath.RoundUp(prevPageBoundary, blockSize)
			}

			for j := uint64(0); j < pagesCount; j++ {
				pageBoundary := prevPageBoundary + pageSize
				blocksPerPage := pn
				if currentBoundary < pageBoundary {
					if currentBoundary > prevPageBoundary {
						blocksPerPage++
					}
					currentBoundary += pnc
					if currentBoundary < pageBoundary {
						blocksPerPage++
						currentBoundary += blockSize
					}
				}
				prevPageBoundary = pageBoundary

				canRelease := ctx.PageMap.UpdateAsAllCountedIf(region, j, blocksPerPage)
				tracker.ProcessNextPage(canRelease)
			}
		}
	}

	tracker.Finish()
}

// ReleaseFreeMemoryToOSFromFreeList is the convenience overload that
// builds a full-window ReleaseContext, marks it from freeList, and
// drives the release in one call. It doesn't expose the populated
// PageMap back to the caller; use NewReleaseContext directly when the
// page usage information is needed afterwards.
func ReleaseFreeMemoryToOSFromFreeList(
	freeList FreeList,
	regionSize, numberOfRegions, blockSize uint64,
	recorder Recorder,
	decompactPtr DecompactPtr,
	skipRegion SkipRegion,
) {
	ctx := NewReleaseContext(blockSize, regionSize, numberOfRegions, regionSize, 0)
	ctx.MarkFreeBlocks(freeList, decompactPtr, recorder.GetBase())
	ReleaseFreeMemoryToOS(ctx, recorder, skipRegion)
}
