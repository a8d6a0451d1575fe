package config

const (
	// Server configuration
	Addr = ":8080"

	// Guard configuration file; defaults apply when it does not exist.
	DefaultConfigPath = "guard.yaml"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "sentinel-guard-example"
	ServiceVersion = "0.1.0"

	// Sweep interval for durable stores
	SweepIntervalMinutes = 60
)
