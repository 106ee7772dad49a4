// Package telemetry exposes Prometheus counters for the page-release
// engine's ReleaseRecorder so operators can track how much memory the
// engine is actually handing back to the OS over time.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReleaseMetrics groups the counters a single ReleaseRecorder updates.
// A nil *ReleaseMetrics is valid and every method on it is a no-op,
// so wiring telemetry into a recorder is opt-in.
type ReleaseMetrics struct {
	rangesTotal prometheus.Counter
	bytesTotal  prometheus.Counter
}

// NewReleaseMetrics registers and returns a ReleaseMetrics for the given
// allocator name (used as a Prometheus label-free metric prefix via name,
// mirroring the pack's per-subsystem promauto.New* call sites).
func NewReleaseMetrics(name string) *ReleaseMetrics {
	return &ReleaseMetrics{
		rangesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: name + "_released_ranges_total",
			Help: "Total number of contiguous page ranges released to the OS.",
		}),
		bytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: name + "_released_bytes_total",
			Help: "Total number of bytes released to the OS.",
		}),
	}
}

// ObserveRelease records one releasePageRangeToOS call of the given size.
func (m *ReleaseMetrics) ObserveRelease(bytes uint64) {
	if m == nil {
		return
	}
	m.rangesTotal.Inc()
	m.bytesTotal.Add(float64(bytes))
}
