package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Engine = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode="
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestConfig_Addresses(t *testing.T) {
	cfg := &Config{Hostname: "127.0.0.1", ConsolePort: 5051, ClientPort: 5052}

	if addr := cfg.ConsoleAddress(); addr != "127.0.0.1:5051" {
		t.Errorf("ConsoleAddress() want = 127.0.0.1:5051, got = %s", addr)
	}
	if addr := cfg.ClientAddress(); addr != "127.0.0.1:5052" {
		t.Errorf("ClientAddress() want = 127.0.0.1:5052, got = %s", addr)
	}
}

func TestConfig_QualifiedPath(t *testing.T) {
	cfg := &Config{DataDir: "data"}

	if got := cfg.QualifiedPath("games.db"); got != filepath.Join("data", "games.db") {
		t.Errorf("QualifiedPath() got = %s", got)
	}
	if got := cfg.QualifiedPath("/tmp/games.db"); got != "/tmp/games.db" {
		t.Errorf("QualifiedPath() should leave absolute paths alone, got = %s", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
hostname: 0.0.0.0
client_port: 7000
voting:
  default_move_interval: 15
  tick_interval: 250ms
database:
  engine: sqlite
  filename: test.db
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0644); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Hostname != "0.0.0.0" {
		t.Errorf("expected hostname 0.0.0.0, got %s", cfg.Hostname)
	}
	if cfg.ClientPort != 7000 {
		t.Errorf("expected client port 7000, got %d", cfg.ClientPort)
	}
	if cfg.MoveInterval() != 15*time.Second {
		t.Errorf("expected move interval 15s, got %v", cfg.MoveInterval())
	}
	if cfg.Voting.TickInterval != 250*time.Millisecond {
		t.Errorf("expected tick interval 250ms, got %v", cfg.Voting.TickInterval)
	}
	// Untouched keys fall back to their defaults.
	if cfg.ConsolePort != 5051 {
		t.Errorf("expected default console port 5051, got %d", cfg.ConsolePort)
	}
	if cfg.Protocol.MaxFrameSize != 64*1024 {
		t.Errorf("expected default max frame size, got %d", cfg.Protocol.MaxFrameSize)
	}
}

func TestLoadConfig_RejectsNonPositiveDurations(t *testing.T) {
	tests := map[string]string{
		"zero_move_interval":     "voting:\n  default_move_interval: 0\n",
		"negative_move_interval": "voting:\n  default_move_interval: -5\n",
		"zero_tick_interval":     "voting:\n  tick_interval: 0s\n",
		"zero_write_timeout":     "protocol:\n  write_timeout: 0s\n",
	}
	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0644); err != nil {
				t.Fatalf("error writing test config: %v", err)
			}
			if _, err := LoadConfig(dir); err == nil {
				t.Errorf("expected LoadConfig() to reject %q", contents)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}
	if cfg.Database.Engine != "sqlite" {
		t.Errorf("expected default engine sqlite, got %s", cfg.Database.Engine)
	}
}
