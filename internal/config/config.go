package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects and configures the candidate store backend.
// The memory backend exists for local development; postgres is the
// production store and requires a connection URL.
type DatabaseConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=postgres memory"`
	URL     string `mapstructure:"url"     validate:"required_if=Backend postgres,omitempty,url"`
}

// LLMConfig contains the text-completion integration settings.
type LLMConfig struct {
	Provider          string `mapstructure:"provider"            validate:"required,oneof=gemini anthropic"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required_if=Provider gemini"`
	AnthropicAPIKey   string `mapstructure:"anthropic_api_key"   validate:"required_if=Provider anthropic"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// QueueConfig contains the candidate queue lifecycle settings. The stale
// threshold and pending TTL are deliberately configuration, not
// constants.
type QueueConfig struct {
	PendingTTLHours       int `mapstructure:"pending_ttl_hours"       validate:"required,gt=0"`
	StaleSelectionMinutes int `mapstructure:"stale_selection_minutes" validate:"required,gt=0"`
	SweepIntervalMinutes  int `mapstructure:"sweep_interval_minutes"  validate:"required,gt=0"`
}

// PipelineConfig contains the generation pipeline settings. WriterCount
// bounds the number of concurrent outstanding completion calls and is
// the only throughput knob the pipeline exposes.
type PipelineConfig struct {
	WriterCount int `mapstructure:"writer_count" validate:"required,gt=0,lte=32"`
}

// PendingTTL returns the pending-item time-to-live as a duration.
func (q QueueConfig) PendingTTL() time.Duration {
	return time.Duration(q.PendingTTLHours) * time.Hour
}

// StaleThreshold returns the stale-selection threshold as a duration.
func (q QueueConfig) StaleThreshold() time.Duration {
	return time.Duration(q.StaleSelectionMinutes) * time.Minute
}

// SweepInterval returns the background sweep interval as a duration.
func (q QueueConfig) SweepInterval() time.Duration {
	return time.Duration(q.SweepIntervalMinutes) * time.Minute
}
