package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"COORDINATOR_HTTP_PORT",
	"COORDINATOR_LOG_LEVEL",
	"COORDINATOR_SQLITE_DSN",
	"COORDINATOR_ROSTER_FILE",
	"COORDINATOR_SESSION_TTL",
	"COORDINATOR_REDIS_URL",
	"COORDINATOR_DATABASE_ID",
	"COORDINATOR_MEETINGS_COLLECTION_ID",
	"COORDINATOR_MESSAGES_COLLECTION_ID",
	"COORDINATOR_CHAT_RATE",
	"COORDINATOR_CHAT_BURST",
	"VITE_APPWRITE_DATABASE_ID",
	"VITE_APPWRITE_MEETINGS_COLLECTION_ID",
	"VITE_APPWRITE_MESSAGES_COLLECTION_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:coordinator.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionTTL != 12*time.Hour || cfg.LogLevel != "info" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.Mode() != ModeLocal || cfg.Warning() != LocalModeWarning {
			t.Fatalf("expected local mode with warning, got %s %q", cfg.Mode(), cfg.Warning())
		}
	})

	t.Run("reports invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("COORDINATOR_HTTP_PORT", "abc")
		t.Setenv("COORDINATOR_SESSION_TTL", "-1h")
		t.Setenv("COORDINATOR_LOG_LEVEL", "verbose")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "valores de variables de entorno no válidos: COORDINATOR_HTTP_PORT, COORDINATOR_LOG_LEVEL, COORDINATOR_SESSION_TTL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses numeric and duration fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("COORDINATOR_HTTP_PORT", "9090")
		t.Setenv("COORDINATOR_SESSION_TTL", "2h")
		t.Setenv("COORDINATOR_CHAT_RATE", "0.5")
		t.Setenv("COORDINATOR_CHAT_BURST", "3")
		t.Setenv("COORDINATOR_LOG_LEVEL", "DEBUG")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 || cfg.SessionTTL != 2*time.Hour || cfg.ChatRate != 0.5 || cfg.ChatBurst != 3 || cfg.LogLevel != "debug" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})
}

func TestConfig_Mode(t *testing.T) {
	complete := Config{
		RedisURL:             "redis://localhost:6379/0",
		DatabaseID:           "congregacion",
		MeetingsCollectionID: "reuniones",
		MessagesCollectionID: "mensajes",
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   Mode
	}{
		{"complete", func(*Config) {}, ModeRemote},
		{"no redis url", func(c *Config) { c.RedisURL = "" }, ModeLocal},
		{"missing database", func(c *Config) { c.DatabaseID = "" }, ModeLocal},
		{"placeholder database", func(c *Config) { c.DatabaseID = "YOUR_DATABASE_ID" }, ModeLocal},
		{"placeholder meetings", func(c *Config) { c.MeetingsCollectionID = "YOUR_MEETINGS_COLLECTION_ID" }, ModeLocal},
		{"placeholder messages", func(c *Config) { c.MessagesCollectionID = "YOUR_MESSAGES_COLLECTION_ID" }, ModeLocal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := complete
			tc.mutate(&cfg)
			if got := cfg.Mode(); got != tc.want {
				t.Fatalf("Mode() = %s, want %s", got, tc.want)
			}
			if (cfg.Warning() == "") != (tc.want == ModeRemote) {
				t.Fatalf("unexpected warning %q for %s", cfg.Warning(), tc.want)
			}
		})
	}
}

func TestLoader_Aliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("COORDINATOR_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VITE_APPWRITE_DATABASE_ID", "congregacion")
	t.Setenv("VITE_APPWRITE_MEETINGS_COLLECTION_ID", "reuniones")
	t.Setenv("VITE_APPWRITE_MESSAGES_COLLECTION_ID", "mensajes")
	t.Setenv("COORDINATOR_MESSAGES_COLLECTION_ID", "chat")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DatabaseID != "congregacion" || cfg.MessagesCollectionID != "chat" {
		t.Fatalf("unexpected identifiers: %+v", cfg)
	}
	if cfg.Mode() != ModeRemote {
		t.Fatalf("expected remote mode")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file must be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"VITE_APPWRITE_DATABASE_ID=YOUR_DATABASE_ID",
		"COORDINATOR_HTTP_PORT=7070",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("COORDINATOR_HTTP_PORT", "")
	os.Unsetenv("COORDINATOR_HTTP_PORT")
	os.Unsetenv("VITE_APPWRITE_DATABASE_ID")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPPort != 7070 || cfg.DatabaseID != "YOUR_DATABASE_ID" || cfg.Mode() != ModeLocal {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
