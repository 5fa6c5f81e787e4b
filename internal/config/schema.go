package config

import "time"

// Config is the top-level YAML structure. Environment variables override
// file values; see Loader. Durations and the backoff multiplier left at 0
// take their defaults, so 0 cannot disable the retry delay or timeout.
type Config struct {
	APIKey     string     `yaml:"api_key"`
	Endpoint   string     `yaml:"endpoint"`
	TimeoutMs  int        `yaml:"timeout_ms"`
	DistinctID string     `yaml:"distinct_id"`
	Queue      QueueConf  `yaml:"queue"`
	Log        LogConf    `yaml:"log"`
	Server     ServerConf `yaml:"server"`
}

// QueueConf tunes buffering and the dispatch loop.
type QueueConf struct {
	RetryDelaySeconds    int     `yaml:"retry_delay_seconds"`
	IdleIntervalMs       int     `yaml:"idle_interval_ms"`
	MaxSize              int     `yaml:"max_size"`    // 0 = unbounded
	MaxRetries           int     `yaml:"max_retries"` // 0 = retry forever
	BackoffMultiplier    float64 `yaml:"backoff_multiplier"`
	MaxRetryDelaySeconds int     `yaml:"max_retry_delay_seconds"`
	FlushTimeoutMs       int     `yaml:"flush_timeout_ms"`
	LocalTime            bool    `yaml:"local_time"`
}

// LogConf is the only section applied on hot reload.
type LogConf struct {
	Level string `yaml:"level"`
}

// ServerConf configures the ingest sidecar.
type ServerConf struct {
	Addr string `yaml:"addr"`
}

func (c *Config) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

func (q *QueueConf) RetryDelay() time.Duration {
	return time.Duration(q.RetryDelaySeconds) * time.Second
}

func (q *QueueConf) IdleInterval() time.Duration {
	return time.Duration(q.IdleIntervalMs) * time.Millisecond
}

func (q *QueueConf) MaxRetryDelay() time.Duration {
	return time.Duration(q.MaxRetryDelaySeconds) * time.Second
}

func (q *QueueConf) FlushTimeout() time.Duration {
	return time.Duration(q.FlushTimeoutMs) * time.Millisecond
}
