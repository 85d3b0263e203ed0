package metrics

import (
	"github.com/marmos91/probdir/pkg/dumpdir"
)

// NewDumpDirMetrics creates a Prometheus-backed dumpdir.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or no
// backend has been linked in. A nil Metrics in dumpdir.Config disables
// collection with zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	cfg := dumpdir.DefaultConfig()
//	cfg.Metrics = metrics.NewDumpDirMetrics()
func NewDumpDirMetrics() dumpdir.Metrics {
	if !IsEnabled() || newPrometheusDumpDirMetrics == nil {
		return nil
	}
	return newPrometheusDumpDirMetrics()
}

// newPrometheusDumpDirMetrics is set by pkg/metrics/prometheus. The
// indirection keeps this package free of the implementation.
var newPrometheusDumpDirMetrics func() dumpdir.Metrics

// RegisterDumpDirMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterDumpDirMetricsConstructor(constructor func() dumpdir.Metrics) {
	newPrometheusDumpDirMetrics = constructor
}
