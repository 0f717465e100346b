// Package config loads the service configuration from environment variables.
// Every setting has a default except the ones a deployment must choose
// (buckets, project ids); Validate reports every problem at once.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	GCP       GCPConfig
	Templates TemplateConfig
	Mapping   MappingConfig
	Status    StatusConfig
	Upload    UploadConfig
	Artifacts ArtifactConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so event streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxBodyBytes bounds the case dataset accepted by POST /api/jobs.
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"1048576"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"json"`
}

// GCPConfig holds the project shared by Firestore, Workflows and signed URLs.
type GCPConfig struct {
	ProjectID string `env:"PROJECT_ID" envAlt:"GOOGLE_CLOUD_PROJECT"`
}

// TemplateConfig selects where templates are read from.
// Bucket takes precedence over Dir when both are set.
type TemplateConfig struct {
	Dir    string `env:"TEMPLATE_DIR" default:"./templates"`
	Bucket string `env:"TEMPLATE_BUCKET"`
	Prefix string `env:"TEMPLATE_PREFIX" default:"templates"`

	// SoftMaxBytes is logged as a warning when exceeded, never rejected.
	SoftMaxBytes int64 `env:"TEMPLATE_SOFT_MAX_BYTES" default:"10485760"`
}

// MappingConfig selects where field mapping configurations come from.
// Collection (Firestore) takes precedence over File when both are set.
type MappingConfig struct {
	File       string `env:"MAPPING_FILE" default:"./config/mappings.json"`
	Collection string `env:"MAPPING_COLLECTION"`
}

// StatusConfig holds job status tracker settings.
type StatusConfig struct {
	Backend           string        `env:"STATUS_BACKEND" default:"memory"`
	TTL               time.Duration `env:"STATUS_TTL" default:"15m"`
	SweepInterval     time.Duration `env:"STATUS_SWEEP_INTERVAL" default:"1m"`
	HeartbeatInterval time.Duration `env:"STATUS_HEARTBEAT_INTERVAL" default:"15s"`

	RedisAddr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`
	RedisPrefix   string `env:"REDIS_KEY_PREFIX" default:"casedocflow:status"`
}

// UploadConfig holds remote store settings.
type UploadConfig struct {
	Enabled    bool          `env:"UPLOAD_ENABLED" default:"false"`
	Bucket     string        `env:"UPLOAD_BUCKET"`
	Prefix     string        `env:"UPLOAD_PREFIX" default:"generated"`
	Timeout    time.Duration `env:"UPLOAD_TIMEOUT" default:"120s"`
	MaxRetries int           `env:"UPLOAD_MAX_RETRIES" default:"3"`
	Backoff    time.Duration `env:"UPLOAD_BACKOFF" default:"1s"`

	// TeamLinks reports whether the bucket is IAM-restricted to the team,
	// so an authenticated link is enough. Otherwise links are signed.
	TeamLinks  bool          `env:"UPLOAD_TEAM_LINKS" default:"true"`
	LinkExpiry time.Duration `env:"UPLOAD_LINK_EXPIRY" default:"168h"`

	// SignerEmail is the service account used for V4 signing when the
	// runtime credentials do not carry a private key.
	SignerEmail string `env:"UPLOAD_SIGNER_EMAIL"`
}

// ArtifactConfig holds the local save location for generated documents.
type ArtifactConfig struct {
	Dir string `env:"ARTIFACT_DIR" default:"./artifacts"`
}

// NotifyConfig holds the optional completion hand-off targets.
type NotifyConfig struct {
	SinkURL          string `env:"NOTIFY_SINK_URL"`
	Source           string `env:"NOTIFY_SOURCE" default:"casedocflow/generator"`
	WorkflowID       string `env:"NOTIFY_WORKFLOW"`
	WorkflowLocation string `env:"NOTIFY_WORKFLOW_LOCATION" default:"us-central1"`
}

// TelemetryConfig holds tracing and metrics settings.
type TelemetryConfig struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" default:"casedocflow"`
	CollectorAddr  string `env:"OTEL_COLLECTOR_ADDR"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" default:"true"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "SERVER_MAX_BODY_BYTES must be positive")
	}

	if c.Templates.Dir == "" && c.Templates.Bucket == "" {
		errs = append(errs, "one of TEMPLATE_DIR or TEMPLATE_BUCKET is required")
	}

	if c.Mapping.File == "" && c.Mapping.Collection == "" {
		errs = append(errs, "one of MAPPING_FILE or MAPPING_COLLECTION is required")
	}
	if c.Mapping.Collection != "" && c.GCP.ProjectID == "" {
		errs = append(errs, "PROJECT_ID is required when MAPPING_COLLECTION is set")
	}

	switch strings.ToLower(c.Status.Backend) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("STATUS_BACKEND (%q) must be one of: memory, redis", c.Status.Backend))
	}
	if c.Status.TTL <= 0 {
		errs = append(errs, "STATUS_TTL must be positive")
	}
	if c.Status.SweepInterval <= 0 {
		errs = append(errs, "STATUS_SWEEP_INTERVAL must be positive")
	}
	if c.Status.HeartbeatInterval <= 0 {
		errs = append(errs, "STATUS_HEARTBEAT_INTERVAL must be positive")
	}

	if c.Upload.Enabled && c.Upload.Bucket == "" {
		errs = append(errs, "UPLOAD_BUCKET is required when UPLOAD_ENABLED is true")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	if c.Upload.MaxRetries <= 0 {
		errs = append(errs, "UPLOAD_MAX_RETRIES must be positive")
	}

	if c.Notify.WorkflowID != "" && c.GCP.ProjectID == "" {
		errs = append(errs, "PROJECT_ID is required when NOTIFY_WORKFLOW is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a loggable summary. Secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Addr())
	fmt.Fprintf(&b, "Templates: {Dir: %q, Bucket: %q}, ", c.Templates.Dir, c.Templates.Bucket)
	fmt.Fprintf(&b, "Mapping: {File: %q, Collection: %q}, ", c.Mapping.File, c.Mapping.Collection)
	fmt.Fprintf(&b, "Status: {Backend: %q, TTL: %s}, ", c.Status.Backend, c.Status.TTL)
	if c.Status.RedisPassword != "" {
		b.WriteString("Redis: {Password: [MASKED]}, ")
	}
	fmt.Fprintf(&b, "Upload: {Enabled: %v, Bucket: %q, TeamLinks: %v}, ", c.Upload.Enabled, c.Upload.Bucket, c.Upload.TeamLinks)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
