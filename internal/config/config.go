package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// AppDirName is the directory created under the XDG data home.
const AppDirName = "secovi-dashboard"

var validBackends = []string{"memory", "mongo", "sqlite"}

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration

	// Backend selection
	DataBackend string
	DataDir     string

	// SQLite
	SQLiteDBPath string

	// MongoDB
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger persistence
	FlushDelay      time.Duration
	FlushOnShutdown bool

	// Backups
	BackupDir       string
	BackupSchedule  string
	BackupRetention int

	// Views
	DefaultYear int

	LogLevel   string
	ConfigFile string

	fileErr error
}

// fileConfig is the YAML overlay named by CONFIG_FILE. Environment variables
// take precedence over it.
type fileConfig struct {
	Port            string `yaml:"port"`
	DataBackend     string `yaml:"data_backend"`
	DataDir         string `yaml:"data_dir"`
	SQLiteDBPath    string `yaml:"sqlite_db_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
	AMQPURL         string `yaml:"amqp_url"`
	AMQPExchange    string `yaml:"amqp_exchange"`
	AMQPQueue       string `yaml:"amqp_queue"`
	FlushDelay      string `yaml:"flush_delay"`
	FlushOnShutdown *bool  `yaml:"flush_on_shutdown"`
	BackupDir       string `yaml:"backup_dir"`
	BackupSchedule  string `yaml:"backup_schedule"`
	BackupRetention *int   `yaml:"backup_retention"`
	DefaultYear     *int   `yaml:"default_year"`
	LogLevel        string `yaml:"log_level"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

func Load() *Config {
	configFile := os.Getenv("CONFIG_FILE")
	fc, fileErr := readFile(configFile)
	dataHome := filepath.Join(xdg.DataHome, AppDirName)

	cfg := &Config{
		Port:            getEnv("PORT", or(fc.Port, "8081")),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", durationOr(fc.ShutdownTimeout, 10*time.Second)),

		DataBackend: getEnv("DATA_BACKEND", or(fc.DataBackend, "sqlite")),
		DataDir:     getEnv("DATA_DIR", fc.DataDir),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", or(fc.SQLiteDBPath, filepath.Join(dataHome, "secovi.db"))),

		MongoURI:        getEnv("MONGO_URI", fc.MongoURI),
		MongoDatabase:   getEnv("MONGO_DATABASE", or(fc.MongoDatabase, "secovi")),
		MongoCollection: getEnv("MONGO_COLLECTION", or(fc.MongoCollection, "kv_store")),

		AMQPURL:      getEnv("AMQP_URL", fc.AMQPURL),
		AMQPExchange: getEnv("AMQP_EXCHANGE", or(fc.AMQPExchange, "secovi")),
		AMQPQueue:    getEnv("AMQP_QUEUE", or(fc.AMQPQueue, "ledger_saved")),

		FlushDelay:      getEnvDuration("FLUSH_DELAY", durationOr(fc.FlushDelay, 800*time.Millisecond)),
		FlushOnShutdown: getEnvBool("FLUSH_ON_SHUTDOWN", boolOr(fc.FlushOnShutdown, true)),

		BackupDir:       getEnv("BACKUP_DIR", or(fc.BackupDir, filepath.Join(dataHome, "backups"))),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", or(fc.BackupSchedule, "0 2 * * *")),
		BackupRetention: getEnvInt("BACKUP_RETENTION", intOr(fc.BackupRetention, 30)),

		DefaultYear: getEnvInt("DEFAULT_YEAR", intOr(fc.DefaultYear, 2025)),

		LogLevel:   getEnv("LOG_LEVEL", or(fc.LogLevel, "info")),
		ConfigFile: configFile,

		fileErr: fileErr,
	}

	return cfg
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.fileErr != nil {
		errors = append(errors, c.fileErr.Error())
	}

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DataBackend == "mongo" {
		if c.MongoURI == "" {
			errors = append(errors, "MongoDB URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI: %v", err))
		} else if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI scheme '%s': must be 'mongodb' or 'mongodb+srv'", u.Scheme))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "MongoDB database name cannot be empty when using mongo backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.FlushDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid flush delay %v: must be positive", c.FlushDelay))
	} else if c.FlushDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid flush delay %v: must be at most 1 minute", c.FlushDelay))
	}

	if c.BackupSchedule != "" {
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backup schedule '%s': %v", c.BackupSchedule, err))
		}
	}
	if c.BackupRetention < 0 {
		errors = append(errors, fmt.Sprintf("invalid backup retention %d: must not be negative", c.BackupRetention))
	}

	if c.DefaultYear < 1900 || c.DefaultYear > 9999 {
		errors = append(errors, fmt.Sprintf("invalid default year %d: must be between 1900 and 9999", c.DefaultYear))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func durationOr(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
