package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/metrics"
)

func init() {
	metrics.RegisterDumpDirMetricsConstructor(NewDumpDirMetrics)
}

// dumpDirMetrics is the Prometheus implementation of dumpdir.Metrics.
type dumpDirMetrics struct {
	lockAttempts *prometheus.CounterVec
	lockWait     *prometheus.HistogramVec
	staleLocks   prometheus.Counter
	saves        *prometheus.CounterVec
	saveBytes    *prometheus.HistogramVec
	deletes      *prometheus.CounterVec
	archives     *prometheus.CounterVec
	archiveTime  *prometheus.HistogramVec
}

// The collectors can be registered only once per registry, so every caller
// shares one instance.
var (
	sharedOnce sync.Once
	shared     *dumpDirMetrics
)

// NewDumpDirMetrics returns the Prometheus-backed dumpdir.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDumpDirMetrics() dumpdir.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	sharedOnce.Do(func() {
		shared = newDumpDirMetrics(metrics.GetRegistry())
	})
	return shared
}

func newDumpDirMetrics(reg prometheus.Registerer) *dumpDirMetrics {
	return &dumpDirMetrics{
		lockAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdir_lock_attempts_total",
				Help: "Lock acquisitions by mode and outcome",
			},
			[]string{"mode", "outcome"}, // mode: "open", "create"
		),
		lockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "probdir_lock_wait_milliseconds",
				Help: "Time spent acquiring the lock of a problem directory",
				Buckets: []float64{
					0.1,  // uncontended
					1,    // 1ms
					10,   // symlink retry
					100,  // 100ms
					500,  // one open back-off
					1000, // 1s
					5000, // 5s - long holder
				},
			},
			[]string{"mode"},
		),
		staleLocks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "probdir_stale_locks_total",
				Help: "Locks reclaimed from processes that no longer exist",
			},
		),
		saves: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdir_element_saves_total",
				Help: "Element writes by kind",
			},
			[]string{"kind"}, // "text", "binary", "meta"
		),
		saveBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "probdir_element_save_bytes",
				Help: "Distribution of element sizes written",
				Buckets: []float64{
					64,        // numbers, short strings
					1024,      // 1KB
					16384,     // 16KB - backtraces
					262144,    // 256KB
					4194304,   // 4MB
					67108864,  // 64MB
					536870912, // 512MB - core dumps
				},
			},
			[]string{"kind"},
		),
		deletes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdir_deletes_total",
				Help: "Problem directory deletions by outcome",
			},
			[]string{"outcome"},
		),
		archives: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "probdir_archives_total",
				Help: "Archive exports by codec and outcome",
			},
			[]string{"codec", "outcome"},
		),
		archiveTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probdir_archive_duration_milliseconds",
				Help:    "Duration of archive exports in milliseconds",
				Buckets: []float64{10, 100, 1000, 10000, 60000},
			},
			[]string{"codec"},
		),
	}
}

func (m *dumpDirMetrics) ObserveLock(mode, outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockAttempts.WithLabelValues(mode, outcome).Inc()
	m.lockWait.WithLabelValues(mode).Observe(wait.Seconds() * 1000)
}

func (m *dumpDirMetrics) RecordStaleLock() {
	if m == nil {
		return
	}
	m.staleLocks.Inc()
}

func (m *dumpDirMetrics) RecordSave(kind string, bytes int) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(kind).Inc()
	m.saveBytes.WithLabelValues(kind).Observe(float64(bytes))
}

func (m *dumpDirMetrics) RecordDelete(outcome string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(outcome).Inc()
}

func (m *dumpDirMetrics) ObserveArchive(codec, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.archives.WithLabelValues(codec, outcome).Inc()
	m.archiveTime.WithLabelValues(codec).Observe(d.Seconds() * 1000)
}
