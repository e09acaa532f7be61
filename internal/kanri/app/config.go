package app

import (
	"fmt"
	"time"

	"github.com/bdobrica/Kanri/common/environment"
	"github.com/bdobrica/Kanri/internal/kanri/commands"
	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/matrix"
)

// State backends accepted by KANRI_STATE_BACKEND.
const (
	StateMemory = "memory"
	StateRedis  = "redis"
)

// Similarity scorers accepted by KANRI_SIMILARITY.
const (
	SimilarityLevenshtein = "levenshtein"
	SimilarityTokens      = "tokens"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	// CatalogDir overrides the embedded synonym, intent and reply files.
	// Files missing from the directory fall back to the defaults.
	CatalogDir string
	// Location is used for time-of-day greetings.
	Location   *time.Location
	Similarity string

	SlotTTL           time.Duration
	DedupWindow       time.Duration
	CapabilityTimeout time.Duration

	// StateBackend is StateMemory or StateRedis; RedisURL is required for
	// the latter.
	StateBackend string
	RedisURL     string

	// Matrix is optional for the console. When Homeserver is empty, serve
	// refuses to start.
	Matrix matrix.Config

	// HTTPAddr is the address of the health server. Empty disables it.
	HTTPAddr string
	// RateLimit is the number of messages a user may send per minute.
	RateLimit int
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabasePath:      environment.StringOr("KANRI_DATABASE_PATH", "kanri.db"),
		CatalogDir:        environment.StringOr("KANRI_CATALOG_DIR", ""),
		Location:          environment.LocationOr("KANRI_TIMEZONE", time.UTC),
		Similarity:        environment.StringOr("KANRI_SIMILARITY", SimilarityLevenshtein),
		SlotTTL:           environment.DurationOr("KANRI_SLOT_TTL", dialogue.DefaultSlotTTL),
		DedupWindow:       environment.DurationOr("KANRI_DEDUP_WINDOW", dialogue.DefaultDedupWindow),
		CapabilityTimeout: environment.DurationOr("KANRI_CAPABILITY_TIMEOUT", commands.DefaultCapabilityTimeout),
		StateBackend:      environment.StringOr("KANRI_STATE_BACKEND", StateMemory),
		RedisURL:          environment.StringOr("REDIS_URL", ""),
		Matrix: matrix.Config{
			Homeserver:     environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:         environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken:    environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			Rooms:          environment.StringSliceOr("MATRIX_ROOMS", nil),
			AllowedSenders: environment.StringSliceOr("MATRIX_ALLOWED_SENDERS", nil),
		},
		HTTPAddr:  environment.StringOr("KANRI_HTTP_ADDR", ""),
		RateLimit: environment.IntOr("KANRI_RATE_LIMIT", DefaultFloodLimit),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that do not depend on the command being run.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("config: KANRI_DATABASE_PATH is empty")
	}
	switch c.StateBackend {
	case StateMemory:
	case StateRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: KANRI_STATE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown state backend %q", c.StateBackend)
	}
	switch c.Similarity {
	case SimilarityLevenshtein, SimilarityTokens:
	default:
		return fmt.Errorf("config: unknown similarity %q", c.Similarity)
	}
	return nil
}

// ValidateMatrix checks the settings serve needs.
func (c *Config) ValidateMatrix() error {
	switch {
	case c.Matrix.Homeserver == "":
		return fmt.Errorf("config: MATRIX_HOMESERVER is required")
	case c.Matrix.UserID == "":
		return fmt.Errorf("config: MATRIX_USER_ID is required")
	case c.Matrix.AccessToken == "":
		return fmt.Errorf("config: MATRIX_ACCESS_TOKEN is required")
	}
	return nil
}
