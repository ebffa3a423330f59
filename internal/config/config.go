package config

import "time"

// Config holds server configuration values.
type Config struct {
	// Addr is the TCP listen address for the lobby protocol.
	Addr string `mapstructure:"addr" yaml:"addr"`
	// NATAddr is the UDP listen address for the NAT traversal helper.
	NATAddr string `mapstructure:"nat_addr" yaml:"nat_addr"`
	// MetricsAddr exposes Prometheus metrics over HTTP when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	// MaxConnections caps concurrently served clients; further connects are denied.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
	// MaxLineBytes caps one inbound protocol line; longer lines are a framing error.
	MaxLineBytes int `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	// IdleTimeout disconnects sessions with no authenticated activity.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// DatabasePath is the sqlite file backing user accounts and channel history.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFile      string `mapstructure:"log_file" yaml:"log_file"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:           ":8200",
		NATAddr:        ":8201",
		MetricsAddr:    "",
		MaxConnections: 255,
		MaxLineBytes:   1024,
		IdleTimeout:    60 * time.Second,
		DatabasePath:   "server.db",
		LogLevel:       "info",
		LogFile:        "server.log",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.NATAddr != "" {
		c.NATAddr = other.NATAddr
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
	if other.MaxConnections != 0 {
		c.MaxConnections = other.MaxConnections
	}
	if other.MaxLineBytes != 0 {
		c.MaxLineBytes = other.MaxLineBytes
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
}
