package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for voterd
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Snapshot SnapshotConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	BodyLimitMB  int // max upload size in megabytes
}

type DatabaseConfig struct {
	Path string // SQLite database path (voters, job ledger, snapshot tables)
}

type ImportConfig struct {
	UploadDir           string // spool directory for uploaded voter files
	BatchSize           int    // rows per bulk insert / progress commit / cancellation check
	MaxConcurrent       int    // max import workers running at once
	RollbackWindowHours int    // hours after completion during which rollback is allowed
}

type SnapshotConfig struct {
	AuditSchedule string // cron schedule for the stale-snapshot audit (empty disables)
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("VOTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("voterd")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/voterd/")
	v.AddConfigPath("$HOME/.voterd/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
			BodyLimitMB:  v.GetInt("server.body_limit_mb"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Import: ImportConfig{
			UploadDir:           v.GetString("import.upload_dir"),
			BatchSize:           v.GetInt("import.batch_size"),
			MaxConcurrent:       v.GetInt("import.max_concurrent"),
			RollbackWindowHours: v.GetInt("import.rollback_window_hours"),
		},
		Snapshot: SnapshotConfig{
			AuditSchedule: v.GetString("snapshot.audit_schedule"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Import.UploadDir == "" {
		return fmt.Errorf("import.upload_dir is required")
	}
	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be at least 1, got %d", c.Import.BatchSize)
	}
	if c.Import.MaxConcurrent < 1 {
		return fmt.Errorf("import.max_concurrent must be at least 1, got %d", c.Import.MaxConcurrent)
	}
	if c.Import.RollbackWindowHours < 1 {
		return fmt.Errorf("import.rollback_window_hours must be at least 1, got %d", c.Import.RollbackWindowHours)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 60)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 512)

	// Database
	v.SetDefault("database.path", "./data/voterd.db")

	// Import pipeline
	v.SetDefault("import.upload_dir", "./data/uploads")
	v.SetDefault("import.batch_size", 1000)
	v.SetDefault("import.max_concurrent", 4)
	v.SetDefault("import.rollback_window_hours", 24)

	// Snapshot retention audit (logs only, never deletes)
	v.SetDefault("snapshot.audit_schedule", "0 3 * * *")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
