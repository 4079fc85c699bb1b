package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// RAGBENCH_DATABASE_URL.
const EnvPrefix = "RAGBENCH"

// keys lists every configuration key so that viper binds each one to its
// environment variable even when no config file mentions it.
var keys = []string{
	"log.level", "log.format", "log.service",
	"database.url", "database.max_open_conns", "database.max_idle_conns", "database.conn_max_lifetime",
	"worker.task_type", "worker.poll_interval", "worker.stale_after", "worker.outcome_buffer",
	"worker.heartbeat_interval",
	"evaluation.max_attempts", "evaluation.base_delay", "evaluation.multiplier", "evaluation.call_timeout",
	"llm.gemini_api_key", "llm.answer_model", "llm.embedding_model", "llm.prompt_template_path", "llm.temperature",
	"redis.addr", "redis.password", "redis.db", "redis.key_prefix", "redis.channel",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service", "ragbench-worker")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("worker.task_type", "rag_evaluation")
	v.SetDefault("worker.poll_interval", "30s")
	v.SetDefault("worker.stale_after", "30m")
	v.SetDefault("worker.outcome_buffer", 16)
	v.SetDefault("worker.heartbeat_interval", "1m")

	v.SetDefault("evaluation.max_attempts", 3)
	v.SetDefault("evaluation.base_delay", "1s")
	v.SetDefault("evaluation.multiplier", 2.0)
	v.SetDefault("evaluation.call_timeout", "60s")

	v.SetDefault("llm.answer_model", "gemini-2.0-flash")
	v.SetDefault("llm.embedding_model", "text-embedding-004")
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("redis.key_prefix", "ragbench:task:")
	v.SetDefault("redis.channel", "ragbench:progress")
}

// Load reads configuration from an optional .env file, an optional
// config.yaml in the working directory, and RAGBENCH_ environment variables,
// in increasing order of precedence. The result is validated before it is
// returned.
func Load() (*Config, error) {
	return load(".")
}

func load(dir string) (*Config, error) {
	// .env only fills variables that are not already set.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	validate.RegisterStructValidation(validateWorker, WorkerConfig{})
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// validateWorker rejects a stale_after that the heartbeat of a live run could
// not stay ahead of.
func validateWorker(sl validator.StructLevel) {
	w := sl.Current().Interface().(WorkerConfig)
	if w.StaleAfter > 0 && w.StaleAfter < 2*w.HeartbeatInterval {
		sl.ReportError(w.StaleAfter, "StaleAfter", "stale_after", "twice_heartbeat", "")
	}
}
