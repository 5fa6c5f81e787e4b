package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint          = "https://app.posthog.com"
	DefaultTimeoutMs         = 10000
	DefaultRetryDelaySeconds = 4
	DefaultIdleIntervalMs    = 1000
	DefaultFlushTimeoutMs    = 5000
	DefaultBackoffMultiplier = 1
	DefaultLogLevel          = "info"
	DefaultServerAddr        = ":8080"
)

// Environment variables read by the loader.
const (
	EnvAPIKey     = "POSTHOG_API_KEY"
	EnvEndpoint   = "POSTHOG_API_ENDPOINT"
	EnvTimeout    = "POSTHOG_TIMEOUT"           // milliseconds
	EnvRetryDelay = "POSTHOG_QUEUE_RETRY_DELAY" // seconds
	EnvDistinctID = "POSTHOG_DISTINCT_ID"
	EnvLogLevel   = "POSTHOG_LOG_LEVEL"
)

// Loader builds a Config from an optional YAML file, an optional .env file
// and the process environment, in increasing order of precedence. The YAML
// file can be watched for changes.
type Loader struct {
	path     string
	envFile  string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// NewLoader creates a Loader and performs the initial load. Either path may
// be empty. A missing .env file is not an error; a missing YAML file is.
func NewLoader(path, envFile string) (*Loader, error) {
	l := &Loader{path: path, envFile: envFile}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// FromEnv loads and validates a Config from envFile and the environment only.
func FromEnv(envFile string) (*Config, error) {
	l, err := NewLoader("", envFile)
	if err != nil {
		return nil, err
	}
	cfg := l.Config()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that reloads the YAML file when it
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, errors.New("config watcher: no config file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read and notifies OnChange callbacks.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	}

	dotenv := map[string]string{}
	if l.envFile != "" {
		m, err := godotenv.Read(l.envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", l.envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIKey); ok {
		cfg.APIKey = v
	}
	if v, ok := lookup(EnvEndpoint); ok {
		cfg.Endpoint = v
	}
	if v, ok := lookup(EnvDistinctID); ok {
		cfg.DistinctID = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvTimeout); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrConfig, EnvTimeout, v, err)
		}
		cfg.TimeoutMs = n
	}
	if v, ok := lookup(EnvRetryDelay); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrConfig, EnvRetryDelay, v, err)
		}
		cfg.Queue.RetryDelaySeconds = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Queue.RetryDelaySeconds == 0 {
		cfg.Queue.RetryDelaySeconds = DefaultRetryDelaySeconds
	}
	if cfg.Queue.IdleIntervalMs == 0 {
		cfg.Queue.IdleIntervalMs = DefaultIdleIntervalMs
	}
	if cfg.Queue.FlushTimeoutMs == 0 {
		cfg.Queue.FlushTimeoutMs = DefaultFlushTimeoutMs
	}
	if cfg.Queue.BackoffMultiplier == 0 {
		cfg.Queue.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
}
