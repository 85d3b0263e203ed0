package dumpdir

import "time"

// Metrics receives engine events. A nil Metrics disables collection.
//
// Implementations live in pkg/metrics/prometheus; this package only
// defines the interface so it has no dependency on a metrics backend.
type Metrics interface {
	// ObserveLock records one lock acquisition. mode is "open" or "create",
	// outcome one of "acquired", "reentered", "busy", "not_dump_dir", "error".
	ObserveLock(mode, outcome string, wait time.Duration)

	// RecordStaleLock counts locks reclaimed from dead processes.
	RecordStaleLock()

	// RecordSave records an element write of the given kind ("text", "binary",
	// "meta").
	RecordSave(kind string, bytes int)

	// RecordDelete records a Delete with outcome "ok" or "error".
	RecordDelete(outcome string)

	// ObserveArchive records an archive export.
	ObserveArchive(codec, outcome string, d time.Duration)
}

func (d *Dir) metrics() Metrics {
	return d.store.cfg.Metrics
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
