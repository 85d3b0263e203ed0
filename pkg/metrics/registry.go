// Package metrics provides Prometheus metrics collection for the problem
// directory engine.
//
// All metrics are optional: if InitRegistry is never called, constructors
// return nil and the engine skips collection entirely.
//
// Usage:
//
//	metrics.InitRegistry()
//	cfg.Metrics = metrics.NewDumpDirMetrics()
//	store := dumpdir.New(cfg)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and only read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Subsequent calls
// are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
