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
	"github.com/ngaut/pagerelease/internal/telemetry"
)

// Recorder is the sink RangeTracker emits coalesced free-page ranges
// to. ReleaseRecorder is the engine's own implementation; callers may
// supply any type satisfying this interface (e.g. in tests, one that
// just records calls without touching the OS).
type Recorder interface {
	ReleasePageRangeToOS(from, to uint64)
	GetBase() uint64
}

// ReleaseRecorder invokes the OS page-release primitive for each range
// the RangeTracker emits and accumulates statistics. It does not
// deduplicate ranges; the tracker guarantees they are disjoint and
// emitted in ascending order.
type ReleaseRecorder struct {
	// Base is the absolute address of region 0.
	Base uint64

	metrics *telemetry.ReleaseMetrics

	releasedRangesCount uint64
	releasedBytes       uint64
}

// NewReleaseRecorder returns a ReleaseRecorder for a job whose region 0
// begins at base. metrics may be nil to skip telemetry.
func NewReleaseRecorder(base uint64, metrics *telemetry.ReleaseMetrics) *ReleaseRecorder {
	return &ReleaseRecorder{Base: base, metrics: metrics}
}

// ReleasePageRangeToOS releases [from, to) (offsets relative to Base)
// back to the OS and updates running totals.
func (r *ReleaseRecorder) ReleasePageRangeToOS(from, to uint64) {
	size := to - from
	if err := mapping.ReleasePagesToOS(uintptr(r.Base), uintptr(from), uintptr(size)); err != nil {
		// Advisory: the allocator treats release as a hint. The
		// OS primitive itself already logged the failure.
		_ = err
	}
	r.releasedRangesCount++
	r.releasedBytes += size
	r.metrics.ObserveRelease(size)
}

// GetReleasedRangesCount returns the number of releasePageRangeToOS
// calls made so far.
func (r *ReleaseRecorder) GetReleasedRangesCount() uint64 { return r.releasedRangesCount }

// GetReleasedBytes returns the total number of bytes released so far.
func (r *ReleaseRecorder) GetReleasedBytes() uint64 { return r.releasedBytes }

// GetBase returns the recorder's base address.
func (r *ReleaseRecorder) GetBase() uint64 { return r.Base }
