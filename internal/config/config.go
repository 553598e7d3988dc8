// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	MarketplaceAPIURL  string
	MarketplaceBaseURL string

	SearchInterval          time.Duration
	MaxNotificationsPerHour int
	ListingTTL              time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/wallbot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	apiURL := os.Getenv("MARKETPLACE_API_URL")
	if apiURL == "" {
		apiURL = "https://api.wallapop.com/api/v3/general/search"
	}

	baseURL := os.Getenv("MARKETPLACE_BASE_URL")
	if baseURL == "" {
		baseURL = "https://es.wallapop.com/item/"
	}

	intervalSec, err := envInt("SEARCH_INTERVAL", 300)
	if err != nil {
		return nil, err
	}
	maxPerHour, err := envInt("MAX_NOTIFICATIONS_PER_HOUR", 50)
	if err != nil {
		return nil, err
	}
	cleanupHours, err := envInt("ITEM_CLEANUP_HOURS", 24)
	if err != nil {
		return nil, err
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken:        token,
		DatabasePath:            dbPath,
		LogLevel:                logLevel,
		AllowedUsers:            allowedUsers,
		MarketplaceAPIURL:       apiURL,
		MarketplaceBaseURL:      baseURL,
		SearchInterval:          time.Duration(intervalSec) * time.Second,
		MaxNotificationsPerHour: maxPerHour,
		ListingTTL:              time.Duration(cleanupHours) * time.Hour,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}
