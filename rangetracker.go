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

// RangeTracker is a small streaming state machine that consumes a
// sequence of per-page "is this page fully free?" booleans in
// ascending page order, and emits maximal runs of free pages as calls
// to Recorder.ReleasePageRangeToOS.
type RangeTracker struct {
	recorder    Recorder
	pageSizeLog uint64

	inRange        bool
	currentPage    uint64
	rangeStartPage uint64
}

// NewRangeTracker returns a RangeTracker that emits ranges to recorder,
// translating page indices to byte offsets using pageSizeLog
// (log2(PageSize)).
func NewRangeTracker(recorder Recorder, pageSizeLog uint64) *RangeTracker {
	return &RangeTracker{recorder: recorder, pageSizeLog: pageSizeLog}
}

// ProcessNextPage advances the tracker by one page, whose
// releasability is given by released.
func (t *RangeTracker) ProcessNextPage(released bool) {
	if released {
		if !t.inRange {
			t.rangeStartPage = t.currentPage
			t.inRange = true
		}
	} else {
		t.closeOpenRange()
	}
	t.currentPage++
}

// SkipPages closes any open run and advances n pages without emitting
// them, used when an entire region is skipped by the caller's
// SkipRegion predicate.
func (t *RangeTracker) SkipPages(n uint64) {
	t.closeOpenRange()
	t.currentPage += n
}

// Finish closes any still-open run. The tracker must not be used again
// afterwards.
func (t *RangeTracker) Finish() {
	t.closeOpenRange()
}

func (t *RangeTracker) closeOpenRange() {
	if t.inRange {
		t.recorder.ReleasePageRangeToOS(t.rangeStartPage<<t.pageSizeLog, t.currentPage<<t.pageSizeLog)
		t.inRange = false
	}
}
