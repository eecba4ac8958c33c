package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/livepoll/go/internal/poll/gateway"
)

// fileConfig is the optional YAML tuning file. Zero values keep the defaults.
type fileConfig struct {
	Session struct {
		DefaultDuration time.Duration `yaml:"default_duration"`
		MaxDuration     time.Duration `yaml:"max_duration"`
		MinOptions      int           `yaml:"min_options"`
		HistoryTimeout  time.Duration `yaml:"history_timeout"`
	} `yaml:"session"`

	WebSocket struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"websocket"`

	Archive struct {
		QueueSize  int           `yaml:"queue_size"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"archive"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// apply overlays the file settings onto the gateway configuration
func (f *fileConfig) apply(cfg *gateway.Config) {
	s := f.Session
	if s.DefaultDuration > 0 {
		cfg.SessionConfig.DefaultDuration = s.DefaultDuration
	}
	if s.MaxDuration > 0 {
		cfg.SessionConfig.MaxDuration = s.MaxDuration
	}
	if s.MinOptions > 0 {
		cfg.SessionConfig.MinOptions = s.MinOptions
	}
	if s.HistoryTimeout > 0 {
		cfg.SessionConfig.HistoryTimeout = s.HistoryTimeout
	}

	ws := f.WebSocket
	if ws.WriteTimeout > 0 {
		cfg.ConnectionConfig.WriteTimeout = ws.WriteTimeout
	}
	if ws.ReadTimeout > 0 {
		cfg.ConnectionConfig.ReadTimeout = ws.ReadTimeout
	}
	if ws.PingInterval > 0 {
		cfg.ConnectionConfig.PingInterval = ws.PingInterval
	}
	if ws.MaxMessageSize > 0 {
		cfg.ConnectionConfig.MaxMessageSize = ws.MaxMessageSize
	}
	if ws.SendBufferSize > 0 {
		cfg.ConnectionConfig.SendBufferSize = ws.SendBufferSize
	}

	a := f.Archive
	if a.QueueSize > 0 {
		cfg.WriterConfig.QueueSize = a.QueueSize
	}
	if a.MaxRetries > 0 {
		cfg.WriterConfig.MaxRetries = a.MaxRetries
	}
	if a.RetryDelay > 0 {
		cfg.WriterConfig.RetryDelay = a.RetryDelay
	}
}
