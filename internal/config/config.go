// Package config loads BrewSync configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/brewkit/brewsync/internal/uuid"
)

// Config holds all engine configuration.
type Config struct {
	TenantID string
	DeviceID string
	DataDir  string
	Remote   RemoteConfig
	Sync     SyncConfig
}

// RemoteConfig holds cloud backend configuration.
type RemoteConfig struct {
	PostgresDSN string
	FeedURL     string
}

// SyncConfig holds sync timing configuration.
type SyncConfig struct {
	SubscribeTimeout  time.Duration
	BulkFetchTimeout  time.Duration
	PointFetchTimeout time.Duration
	ReconnectDebounce time.Duration
	SyncInterval      time.Duration
}

// Load loads configuration from environment variables, reading a .env
// file first if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	tenantID := os.Getenv("BREWSYNC_TENANT_ID")
	if tenantID == "" {
		return nil, fmt.Errorf("BREWSYNC_TENANT_ID is required")
	}

	dsn := os.Getenv("BREWSYNC_POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("BREWSYNC_POSTGRES_DSN is required")
	}

	feedURL := os.Getenv("BREWSYNC_FEED_URL")
	if feedURL == "" {
		return nil, fmt.Errorf("BREWSYNC_FEED_URL is required")
	}

	deviceID := os.Getenv("BREWSYNC_DEVICE_ID")
	if deviceID == "" {
		deviceID = uuid.New()
	}

	dataDir := os.Getenv("BREWSYNC_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	return &Config{
		TenantID: tenantID,
		DeviceID: deviceID,
		DataDir:  dataDir,
		Remote: RemoteConfig{
			PostgresDSN: dsn,
			FeedURL:     feedURL,
		},
		Sync: SyncConfig{
			SubscribeTimeout:  getDuration("BREWSYNC_SUBSCRIBE_TIMEOUT", 10*time.Second),
			BulkFetchTimeout:  getDuration("BREWSYNC_BULK_FETCH_TIMEOUT", 60*time.Second),
			PointFetchTimeout: getDuration("BREWSYNC_POINT_FETCH_TIMEOUT", 15*time.Second),
			ReconnectDebounce: getDuration("BREWSYNC_RECONNECT_DEBOUNCE", 2*time.Second),
			SyncInterval:      getDuration("BREWSYNC_SYNC_INTERVAL", 15*time.Minute),
		},
	}, nil
}

// getDuration reads a duration from the environment with a fallback.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
