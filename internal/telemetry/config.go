package telemetry

// Config holds OpenTelemetry tracing configuration
type Config struct {
	// Enabled turns on span export
	Enabled bool

	// ServiceName is the name reported to the trace backend
	ServiceName string

	// ServiceVersion is the version of the binary
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS towards the endpoint
	Insecure bool

	// SampleRate is the fraction of traces kept, from 0.0 to 1.0
	SampleRate float64
}

// DefaultConfig returns a disabled configuration pointing at a local
// collector.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "probdir",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
