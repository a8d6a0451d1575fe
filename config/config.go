package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/sentinel-guard/filelog"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"sigs.k8s.io/yaml"
)

// Config is the root of the configuration document.
type Config struct {
	RateLimit RateLimit `json:"RateLimit"`
	Telemetry Telemetry `json:"Telemetry"`
}

// RateLimit holds the limiter settings.
type RateLimit struct {
	IsEnabled     bool        `json:"IsEnabled"`
	PermitLimit   int         `json:"PermitLimit"`
	WindowSeconds int         `json:"WindowSeconds"`
	StorageType   StorageType `json:"StorageType"`
	ExcludedPaths List        `json:"ExcludedPaths"`
	StatusCode    int         `json:"StatusCode"`
	Message       string      `json:"Message"`

	// SQL is used when StorageType is SqlServer.
	SQL SQL `json:"Sql"`

	// Redis is used when StorageType is Redis.
	Redis Redis `json:"Redis"`
}

// SQL configures the durable store.
type SQL struct {
	Driver           string `json:"Driver"`
	ConnectionString string `json:"ConnectionString"`
	TableName        string `json:"TableName"`
	AutoMigrate      bool   `json:"AutoMigrate"`
}

// Redis configures the Redis store.
type Redis struct {
	Addrs     List   `json:"Addrs"`
	Username  string `json:"Username"`
	Password  string `json:"Password"`
	DB        int    `json:"DB"`
	KeyPrefix string `json:"KeyPrefix"`
}

// Telemetry holds the telemetry middleware settings.
type Telemetry struct {
	IsEnabled                bool        `json:"IsEnabled"`
	LogRequests              bool        `json:"LogRequests"`
	LogResponses             bool        `json:"LogResponses"`
	LogExceptions            bool        `json:"LogExceptions"`
	LogBody                  bool        `json:"LogBody"`
	MaxRequestBodySize       int         `json:"MaxRequestBodySize"`
	MaxResponseBodySize      int         `json:"MaxResponseBodySize"`
	ExcludedPaths            List        `json:"ExcludedPaths"`
	ExcludedHTTPMethods      List        `json:"ExcludedHttpMethods"`
	IncludeRequestHeaders    bool        `json:"IncludeRequestHeaders"`
	IncludeResponseHeaders   bool        `json:"IncludeResponseHeaders"`
	SensitiveHeaders         List        `json:"SensitiveHeaders"`
	SensitiveQueryParameters List        `json:"SensitiveQueryParameters"`
	ExcludedContentTypes     List        `json:"ExcludedContentTypes"`
	LogDestination           string      `json:"LogDestination"`
	FileLogging              FileLogging `json:"FileLogging"`
	Remote                   Remote      `json:"Remote"`
}

// FileLogging holds the rotating file writer settings.
type FileLogging struct {
	IsEnabled        bool   `json:"IsEnabled"`
	LogDirectory     string `json:"LogDirectory"`
	LogFileName      string `json:"LogFileName"`
	LogFileExtension string `json:"LogFileExtension"`
	RotateByDay      bool   `json:"RotateByDay"`
	MaxFileSizeBytes int64  `json:"MaxFileSizeBytes"`
	MaxFilesToKeep   int    `json:"MaxFilesToKeep"`
}

// Remote configures the HTTP collector sink. An empty Endpoint disables it.
type Remote struct {
	Endpoint        string            `json:"Endpoint"`
	Headers         map[string]string `json:"Headers"`
	BatchSize       int               `json:"BatchSize"`
	QueueSize       int               `json:"QueueSize"`
	FlushIntervalMs int               `json:"FlushIntervalMs"`
	MaxRetries      uint              `json:"MaxRetries"`
}

// Default returns the configuration used when no document is given.
func Default() Config {
	return Config{
		RateLimit: RateLimit{
			IsEnabled:     true,
			PermitLimit:   100,
			WindowSeconds: 60,
			StorageType:   StorageInMemory,
			ExcludedPaths: List{"/health", "/swagger"},
			StatusCode:    429,
			Message:       "Rate limit exceeded. Please try again later.",
			SQL: SQL{
				Driver:    "postgres",
				TableName: ratelimit.DefaultTableName,
			},
			Redis: Redis{
				Addrs:     List{"localhost:6379"},
				KeyPrefix: ratelimit.DefaultRedisKeyPrefix,
			},
		},
		Telemetry: Telemetry{
			IsEnabled:                true,
			LogRequests:              true,
			LogResponses:             true,
			LogExceptions:            true,
			LogBody:                  true,
			MaxRequestBodySize:       10240,
			MaxResponseBodySize:      10240,
			ExcludedPaths:            List{"/health", "/swagger", "/ui"},
			SensitiveHeaders:         List{"Authorization", "Api-Key", "X-API-Key"},
			SensitiveQueryParameters: List{"password", "token", "apikey", "secret"},
			ExcludedContentTypes:     List{"application/octet-stream", "image/", "video/", "audio/"},
			LogDestination:           string(telemetry.DestinationBoth),
			FileLogging: FileLogging{
				IsEnabled:        true,
				LogDirectory:     "Logs",
				LogFileName:      "telemetry",
				LogFileExtension: ".log",
				RotateByDay:      true,
				MaxFileSizeBytes: 10 << 20,
				MaxFilesToKeep:   30,
			},
			Remote: Remote{
				BatchSize:       50,
				QueueSize:       1024,
				FlushIntervalMs: 2000,
				MaxRetries:      3,
			},
		},
	}
}

// Load reads the YAML document at path on top of Default.
func Load(path string) (Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: cannot read file: %w", err)
	}
	return Parse(blob)
}

// Parse decodes a YAML (or JSON) document on top of Default and validates it.
func Parse(blob []byte) (Config, error) {
	cfg := Default()

	blob, err := yaml.YAMLToJSON(blob)
	if err != nil {
		return Config{}, fmt.Errorf("config: cannot convert yaml to json: %w", err)
	}
	if len(blob) > 0 && string(blob) != "null" {
		if err := json.Unmarshal(blob, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: cannot decode document: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.RateLimit.StorageType, _ = ParseStorageType(string(cfg.RateLimit.StorageType))
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	rl := c.RateLimit
	if rl.PermitLimit <= 0 {
		errs = append(errs, fmt.Errorf("config: RateLimit.PermitLimit must be positive, got %d", rl.PermitLimit))
	}
	if rl.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("config: RateLimit.WindowSeconds must be positive, got %d", rl.WindowSeconds))
	}
	if rl.StatusCode < 400 || rl.StatusCode > 599 {
		errs = append(errs, fmt.Errorf("config: RateLimit.StatusCode must be an error status, got %d", rl.StatusCode))
	}
	if _, err := ParseStorageType(string(rl.StorageType)); err != nil {
		errs = append(errs, err)
	}

	t := c.Telemetry
	if _, err := telemetry.ParseDestination(t.LogDestination); err != nil {
		errs = append(errs, fmt.Errorf("config: Telemetry.LogDestination: %w", err))
	}
	if t.FileLogging.MaxFilesToKeep < 0 {
		errs = append(errs, errors.New("config: Telemetry.FileLogging.MaxFilesToKeep must not be negative"))
	}
	return errors.Join(errs...)
}

// RateLimitConfig converts the limiter settings. Store and Logger are left
// for the caller; see OpenStore.
func (c Config) RateLimitConfig() httpserver.RateLimitConfig {
	rl := c.RateLimit
	cfg := httpserver.DefaultRateLimitConfig()
	cfg.Enabled = rl.IsEnabled
	cfg.PermitLimit = rl.PermitLimit
	cfg.Window = time.Duration(rl.WindowSeconds) * time.Second
	cfg.ExcludedPaths = rl.ExcludedPaths
	cfg.StatusCode = rl.StatusCode
	cfg.Message = rl.Message
	return cfg
}

// TelemetryConfig converts the telemetry settings. Sink, Writer, Logger
// and Metrics are left for the caller.
func (c Config) TelemetryConfig() httpserver.TelemetryConfig {
	t := c.Telemetry
	cfg := httpserver.DefaultTelemetryConfig()
	cfg.Enabled = t.IsEnabled
	cfg.LogRequests = t.LogRequests
	cfg.LogResponses = t.LogResponses
	cfg.LogExceptions = t.LogExceptions
	cfg.LogBody = t.LogBody
	cfg.MaxRequestBodySize = t.MaxRequestBodySize
	cfg.MaxResponseBodySize = t.MaxResponseBodySize
	cfg.ExcludedPaths = t.ExcludedPaths
	cfg.ExcludedMethods = t.ExcludedHTTPMethods
	cfg.IncludeRequestHeaders = t.IncludeRequestHeaders
	cfg.IncludeResponseHeaders = t.IncludeResponseHeaders
	cfg.SensitiveHeaders = t.SensitiveHeaders
	cfg.SensitiveQueryParameters = t.SensitiveQueryParameters
	cfg.ExcludedContentTypes = t.ExcludedContentTypes
	// Validate has already rejected unknown destinations.
	cfg.Destination, _ = telemetry.ParseDestination(t.LogDestination)
	return cfg
}

// FileLogConfig converts the file writer settings.
func (c Config) FileLogConfig() filelog.Config {
	f := c.Telemetry.FileLogging
	cfg := filelog.DefaultConfig()
	cfg.Enabled = f.IsEnabled
	cfg.Directory = f.LogDirectory
	cfg.FileName = f.LogFileName
	cfg.Extension = f.LogFileExtension
	cfg.RotateByDay = f.RotateByDay
	cfg.MaxFileSizeBytes = f.MaxFileSizeBytes
	cfg.MaxFilesToKeep = f.MaxFilesToKeep
	return cfg
}

// HTTPSinkConfig converts the remote sink settings. ok is false when no
// endpoint is configured.
func (c Config) HTTPSinkConfig() (cfg telemetry.HTTPSinkConfig, ok bool) {
	r := c.Telemetry.Remote
	if strings.TrimSpace(r.Endpoint) == "" {
		return telemetry.HTTPSinkConfig{}, false
	}

	cfg = telemetry.DefaultHTTPSinkConfig(r.Endpoint)
	cfg.Headers = r.Headers
	if r.BatchSize > 0 {
		cfg.BatchSize = r.BatchSize
	}
	if r.QueueSize > 0 {
		cfg.QueueSize = r.QueueSize
	}
	if r.FlushIntervalMs > 0 {
		cfg.FlushInterval = time.Duration(r.FlushIntervalMs) * time.Millisecond
	}
	cfg.MaxRetries = r.MaxRetries
	return cfg, true
}

// List is a list of strings that decodes from a sequence or from one
// comma-separated string. Blank entries are dropped.
type List []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *List) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return fmt.Errorf("config: expected a list or a comma-separated string: %w", err)
		}
		items = strings.Split(joined, ",")
	}

	out := make(List, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*l = out
	return nil
}
