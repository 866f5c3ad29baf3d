package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashdeck/hashdeck/pkg/debug"
	"github.com/hashdeck/hashdeck/pkg/env"
)

// Config holds the application configuration
type Config struct {
	Host string
	Port int

	// DataDir holds the shared potfile, per-session shadow potfiles and
	// the finished-session archive
	DataDir string

	// HashcatBinary is the worker executable
	HashcatBinary string

	// StatusTimer is the --status-timer value passed to workers, in seconds
	StatusTimer int

	// PotfilePoll is how often each session's shadow potfile is checked
	// for growth
	PotfilePoll time.Duration

	// HardwarePoll is how often shared hardware telemetry is sampled
	HardwarePoll time.Duration

	// ArchiveRetentionDays is how long finished-session rows are kept
	ArchiveRetentionDays int
}

// NewConfig creates a new Config instance with values from environment variables
func NewConfig() *Config {
	dataDir := os.Getenv("HD_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			dataDir = ".hashdeck"
		} else {
			dataDir = filepath.Join(home, ".hashdeck")
		}
	}

	for _, subdir := range []string{"", "sessions"} {
		dir := filepath.Join(dataDir, subdir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			debug.Error("Failed to create data directory %s: %v", dir, err)
			dataDir = ".hashdeck"
			if err := os.MkdirAll(filepath.Join(dataDir, subdir), 0750); err != nil {
				debug.Error("Failed to create fallback data directory: %v", err)
			}
		}
	}

	debug.Info("Using data directory: %s", dataDir)

	return &Config{
		Host:                 env.GetOrDefault("HD_HOST", "localhost"),
		Port:                 env.GetIntOrDefault("HD_PORT", 8977),
		DataDir:              dataDir,
		HashcatBinary:        env.GetOrDefault("HD_HASHCAT_BIN", "hashcat"),
		StatusTimer:          env.GetIntOrDefault("HD_STATUS_TIMER", 3),
		PotfilePoll:          env.GetDurationOrDefault("HD_POTFILE_POLL", 500*time.Millisecond),
		HardwarePoll:         env.GetDurationOrDefault("HD_HARDWARE_POLL", 2*time.Second),
		ArchiveRetentionDays: env.GetIntOrDefault("HD_ARCHIVE_RETENTION_DAYS", 90),
	}
}

// GetAddress returns the address for the server to listen on
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SharedPotfilePath returns the path of the process-wide potfile
func (c *Config) SharedPotfilePath() string {
	return filepath.Join(c.DataDir, "potfile.txt")
}

// SessionsDir returns the directory holding shadow potfiles and worker
// restore checkpoints
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// ArchivePath returns the path of the finished-session archive database
func (c *Config) ArchivePath() string {
	return filepath.Join(c.DataDir, "archive.db")
}
