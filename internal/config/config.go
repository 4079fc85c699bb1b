package config

import "time"

// Config holds all worker configuration, grouped by concern.
type Config struct {
	Log        LogConfig        `mapstructure:"log" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker" validate:"required"`
	Evaluation EvaluationConfig `mapstructure:"evaluation" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level   string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format  string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	Service string `mapstructure:"service"`
}

// DatabaseConfig contains the Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// WorkerConfig controls the poller and the worker pool.
type WorkerConfig struct {
	TaskType      string        `mapstructure:"task_type" validate:"required"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	StaleAfter    time.Duration `mapstructure:"stale_after" validate:"gte=0"`
	OutcomeBuffer int           `mapstructure:"outcome_buffer" validate:"gte=0"`

	// HeartbeatInterval is how often a running task is touched while an item
	// is evaluated. A non-zero StaleAfter must be at least twice as long.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
}

// EvaluationConfig sets the retry policy and timeout of each gateway call.
type EvaluationConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	Multiplier  float64       `mapstructure:"multiplier" validate:"gte=1"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
}

// LLMConfig contains the Gemini settings used for answers and embeddings.
type LLMConfig struct {
	GeminiAPIKey       string  `mapstructure:"gemini_api_key" validate:"required"`
	AnswerModel        string  `mapstructure:"answer_model" validate:"required"`
	EmbeddingModel     string  `mapstructure:"embedding_model" validate:"required"`
	PromptTemplatePath string  `mapstructure:"prompt_template_path" validate:"omitempty,file"`
	Temperature        float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// RedisConfig enables the progress mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
	Channel   string `mapstructure:"channel"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}
