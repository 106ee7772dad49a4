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

// Package pagerelease implements the page-release engine of a
// multi-region size-class allocator: it decides which OS pages
// backing a region currently hold no live blocks and can be returned
// to the operating system.
//
// The engine reconciles two geometries — fixed-size allocator blocks
// and fixed-size OS pages whose sizes need not divide each other —
// across one or more regions, using a packed per-region page counter
// array (PageMap) to do so with minimal memory overhead.
//
// A typical release job:
//
//	ctx := pagerelease.NewReleaseContext(blockSize, regionSize, numberOfRegions, releaseSize, releaseOffset)
//	ctx.MarkFreeBlocks(freeList, decompactPtr, base)
//	// and/or:
//	ctx.MarkRangeAsAllCounted(from, to, base)
//
//	recorder := pagerelease.NewReleaseRecorder(base, nil)
//	pagerelease.ReleaseFreeMemoryToOS(ctx, recorder, skipRegion)
//
// Deciding *when* to release is the caller's responsibility; this
// package only computes *which* pages are safe to release and
// coalesces them into as few OS calls as possible.
package pagerelease
