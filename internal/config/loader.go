// Package config loads the coordinator settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode names the persistence backend selected at startup.
type Mode string

const (
	// ModeRemote stores data in Redis and pushes changes to every client.
	ModeRemote Mode = "remote"
	// ModeLocal stores data in a single-client SQLite file.
	ModeLocal Mode = "local"
)

// LocalModeWarning is shown while the remote store is not configured.
const LocalModeWarning = "Configuración pendiente: actualiza los IDs de la base de datos remota en tu archivo .env para compartir los datos."

var placeholders = map[string]string{
	"DATABASE_ID":            "YOUR_DATABASE_ID",
	"MEETINGS_COLLECTION_ID": "YOUR_MEETINGS_COLLECTION_ID",
	"MESSAGES_COLLECTION_ID": "YOUR_MESSAGES_COLLECTION_ID",
}

// Config captures environment driven configuration values for the coordinator.
type Config struct {
	HTTPPort   int
	LogLevel   string
	SQLiteDSN  string
	RosterFile string
	SessionTTL time.Duration

	RedisURL             string
	DatabaseID           string
	MeetingsCollectionID string
	MessagesCollectionID string

	ChatRate  float64
	ChatBurst int
}

// Mode reports the backend: remote when the Redis URL and the three
// identifiers are present and not left at their placeholder values.
func (c Config) Mode() Mode {
	if c.RedisURL == "" {
		return ModeLocal
	}
	ids := map[string]string{
		"DATABASE_ID":            c.DatabaseID,
		"MEETINGS_COLLECTION_ID": c.MeetingsCollectionID,
		"MESSAGES_COLLECTION_ID": c.MessagesCollectionID,
	}
	for key, value := range ids {
		if value == "" || value == placeholders[key] {
			return ModeLocal
		}
	}
	return ModeRemote
}

// Warning returns the configuration notice for the current mode, or "".
func (c Config) Warning() string {
	if c.Mode() == ModeLocal {
		return LocalModeWarning
	}
	return ""
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("no se pudo leer %s: %w", path, err)
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Every setting is read from COORDINATOR_<NAME>; the store identifiers also
// accept the VITE_APPWRITE_<NAME> names used by existing .env files.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:   8080,
		LogLevel:   "info",
		SQLiteDSN:  "file:coordinator.db",
		SessionTTL: 12 * time.Hour,
		ChatRate:   1,
		ChatBurst:  5,
	}

	invalid := make([]string, 0, 4)

	if portValue := lookup("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "COORDINATOR_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if level := lookup("LOG_LEVEL"); level != "" {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(level)
		default:
			invalid = append(invalid, "COORDINATOR_LOG_LEVEL")
		}
	}

	if dsn := lookup("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	cfg.RosterFile = lookup("ROSTER_FILE")

	if ttlValue := lookup("SESSION_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "COORDINATOR_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	cfg.RedisURL = lookup("REDIS_URL")
	cfg.DatabaseID = lookup("DATABASE_ID")
	cfg.MeetingsCollectionID = lookup("MEETINGS_COLLECTION_ID")
	cfg.MessagesCollectionID = lookup("MESSAGES_COLLECTION_ID")

	if rateValue := lookup("CHAT_RATE"); rateValue != "" {
		r, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || r <= 0 {
			invalid = append(invalid, "COORDINATOR_CHAT_RATE")
		} else {
			cfg.ChatRate = r
		}
	}
	if burstValue := lookup("CHAT_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "COORDINATOR_CHAT_BURST")
		} else {
			cfg.ChatBurst = burst
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valores de variables de entorno no válidos: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func lookup(name string) string {
	if value := strings.TrimSpace(os.Getenv("COORDINATOR_" + name)); value != "" {
		return value
	}
	if _, aliased := placeholders[name]; aliased {
		return strings.TrimSpace(os.Getenv("VITE_APPWRITE_" + name))
	}
	return ""
}
