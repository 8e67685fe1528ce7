package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestProperties(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingestd.properties")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test properties file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForOmittedKeys(t *testing.T) {
	t.Parallel()

	path := writeTestProperties(t, `
persistence.host = db.internal
persistence.dbname = mbo
persistence.user = ingest
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.TopLevels != defaultTopLevels {
		t.Fatalf("TopLevels = %d, want default %d", cfg.Server.TopLevels, defaultTopLevels)
	}
	if cfg.Server.RingBufferSize != defaultRingBufferSize {
		t.Fatalf("RingBufferSize = %d, want default %d", cfg.Server.RingBufferSize, defaultRingBufferSize)
	}
	if cfg.Upload.ListenPort != defaultUploadPort {
		t.Fatalf("ListenPort = %d, want default %d", cfg.Upload.ListenPort, defaultUploadPort)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	t.Parallel()

	path := writeTestProperties(t, `
persistence.host = db.internal
persistence.dbname = mbo
persistence.user = ingest
totally.unrecognized.key = whatever
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load with an unknown key should succeed, got: %v", err)
	}
}

func TestLoadParsesExplicitValues(t *testing.T) {
	t.Parallel()

	path := writeTestProperties(t, `
server.top_levels = 25
server.ring_buffer_size = 1024
persistence.host = db.internal
persistence.port = 6543
persistence.dbname = mbo
persistence.user = ingest
persistence.password = secret
persistence.max_connections = 4
persistence.connection_timeout = 10
upload.listen_port = 9100
logging.level = debug
logging.format = json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.TopLevels != 25 {
		t.Fatalf("TopLevels = %d, want 25", cfg.Server.TopLevels)
	}
	if cfg.Server.RingBufferSize != 1024 {
		t.Fatalf("RingBufferSize = %d, want 1024", cfg.Server.RingBufferSize)
	}
	if cfg.Persistence.Port != 6543 {
		t.Fatalf("Persistence.Port = %d, want 6543", cfg.Persistence.Port)
	}
	if cfg.Persistence.MaxConnections != 4 {
		t.Fatalf("MaxConnections = %d, want 4", cfg.Persistence.MaxConnections)
	}
	if cfg.Upload.ListenPort != 9100 {
		t.Fatalf("ListenPort = %d, want 9100", cfg.Upload.ListenPort)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("Logging = %+v", cfg.Logging)
	}
}

func TestValidateFirstMissingRequiredKeyWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing host", Config{Server: ServerConfig{TopLevels: 1, RingBufferSize: 2}, Persistence: PersistenceConfig{DBName: "x", User: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 1}}},
		{"missing dbname", Config{Server: ServerConfig{TopLevels: 1, RingBufferSize: 2}, Persistence: PersistenceConfig{Host: "x", User: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 1}}},
		{"missing user", Config{Server: ServerConfig{TopLevels: 1, RingBufferSize: 2}, Persistence: PersistenceConfig{Host: "x", DBName: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 1}}},
		{"zero top_levels", Config{Server: ServerConfig{TopLevels: 0, RingBufferSize: 2}, Persistence: PersistenceConfig{Host: "x", DBName: "x", User: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 1}}},
		{"non-power-of-two ring size", Config{Server: ServerConfig{TopLevels: 1, RingBufferSize: 3}, Persistence: PersistenceConfig{Host: "x", DBName: "x", User: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 1}}},
		{"bad listen port", Config{Server: ServerConfig{TopLevels: 1, RingBufferSize: 2}, Persistence: PersistenceConfig{Host: "x", DBName: "x", User: "x", MaxConnections: 1}, Upload: UploadConfig{ListenPort: 0}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("Validate() should have failed")
			}
		})
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:      ServerConfig{TopLevels: 10, RingBufferSize: 65536},
		Persistence: PersistenceConfig{Host: "db", DBName: "mbo", User: "ingest", MaxConnections: 10},
		Upload:      UploadConfig{ListenPort: 8090},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on a complete config: %v", err)
	}
}
