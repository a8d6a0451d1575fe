// Package config loads the guard configuration from a YAML document.
//
// Keys follow the section names operators already use for the limiter and
// telemetry settings. Every key is optional; missing keys keep the values
// of Default. List values accept either a YAML sequence or a single
// comma-separated string:
//
//	RateLimit:
//	  PermitLimit: 100
//	  WindowSeconds: 60
//	  StorageType: InMemory
//	  ExcludedPaths: /health,/swagger
//	Telemetry:
//	  LogDestination: Both
//	  SensitiveQueryParameters: [password, token, apikey, secret]
//	  FileLogging:
//	    LogDirectory: Logs
//	    RotateByDay: true
//
// The converters (RateLimitConfig, TelemetryConfig, FileLogConfig,
// HTTPSinkConfig) produce the component configurations, and OpenStore
// builds the configured rate limit store.
package config
