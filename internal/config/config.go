// Package config defines all configuration for the ingest daemon. Config
// is loaded from a flat key=value properties file (default:
// configs/ingestd.properties) via github.com/magiconair/properties —
// no YAML, no env var overrides; every value lives in one file.
package config

import (
	"fmt"
	"time"

	"github.com/magiconair/properties"
)

// ServerConfig tunes the ingest pipeline itself.
type ServerConfig struct {
	TopLevels      int
	RingBufferSize int
}

// PersistenceConfig points at the PostgreSQL database sessions are
// written to.
type PersistenceConfig struct {
	Host              string
	Port              int
	DBName            string
	User              string
	Password          string
	MaxConnections    int
	ConnectionTimeout time.Duration
}

// UploadConfig controls the inbound websocket listener.
type UploadConfig struct {
	ListenPort int
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// Config is the top-level configuration.
type Config struct {
	Server      ServerConfig
	Persistence PersistenceConfig
	Upload      UploadConfig
	Logging     LoggingConfig
}

const (
	defaultTopLevels      = 10
	defaultRingBufferSize = 65536
	defaultDBPort         = 5432
	defaultMaxConnections = 10
	defaultConnTimeoutSec = 5
	defaultUploadPort     = 8090
)

// Load reads a flat key=value properties file. Unknown keys are ignored;
// missing required keys are caught by Validate, not here.
func Load(path string) (*Config, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	connTimeoutSec := p.GetInt("persistence.connection_timeout", defaultConnTimeoutSec)

	cfg := &Config{
		Server: ServerConfig{
			TopLevels:      p.GetInt("server.top_levels", defaultTopLevels),
			RingBufferSize: p.GetInt("server.ring_buffer_size", defaultRingBufferSize),
		},
		Persistence: PersistenceConfig{
			Host:              p.GetString("persistence.host", ""),
			Port:              p.GetInt("persistence.port", defaultDBPort),
			DBName:            p.GetString("persistence.dbname", ""),
			User:              p.GetString("persistence.user", ""),
			Password:          p.GetString("persistence.password", ""),
			MaxConnections:    p.GetInt("persistence.max_connections", defaultMaxConnections),
			ConnectionTimeout: time.Duration(connTimeoutSec) * time.Second,
		},
		Upload: UploadConfig{
			ListenPort: p.GetInt("upload.listen_port", defaultUploadPort),
		},
		Logging: LoggingConfig{
			Level:  p.GetString("logging.level", "info"),
			Format: p.GetString("logging.format", "text"),
		},
	}

	return cfg, nil
}

// Validate checks all required fields and value ranges, returning the
// first problem found.
func (c *Config) Validate() error {
	if c.Persistence.Host == "" {
		return fmt.Errorf("persistence.host is required")
	}
	if c.Persistence.DBName == "" {
		return fmt.Errorf("persistence.dbname is required")
	}
	if c.Persistence.User == "" {
		return fmt.Errorf("persistence.user is required")
	}
	if c.Persistence.MaxConnections <= 0 {
		return fmt.Errorf("persistence.max_connections must be > 0")
	}
	if c.Server.TopLevels <= 0 {
		return fmt.Errorf("server.top_levels must be > 0")
	}
	if c.Server.RingBufferSize < 2 || c.Server.RingBufferSize&(c.Server.RingBufferSize-1) != 0 {
		return fmt.Errorf("server.ring_buffer_size must be a power of two >= 2, got %d", c.Server.RingBufferSize)
	}
	if c.Upload.ListenPort <= 0 || c.Upload.ListenPort > 65535 {
		return fmt.Errorf("upload.listen_port must be a valid TCP port")
	}
	return nil
}

// DSN formats the persistence config as a lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d sslmode=disable",
		c.Persistence.Host, c.Persistence.Port, c.Persistence.DBName,
		c.Persistence.User, c.Persistence.Password, int(c.Persistence.ConnectionTimeout.Seconds()))
}
