package chaos

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds fault injection configuration
type Config struct {
	Enabled       bool
	Profile       string
	DropPct       int
	DelayMsMin    int
	DelayMsMax    int
	DisconnectPct int
	Seed          int64
	WindowMs      int
}

// LoadConfig loads fault injection configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Enabled:       getEnvAsBool("CHAOS_ENABLED", false),
		Profile:       getEnvAsString("CHAOS_PROFILE", ""),
		DropPct:       getEnvAsInt("CHAOS_DROP_PCT", 0),
		DelayMsMin:    getEnvAsInt("CHAOS_DELAY_MS_MIN", 0),
		DelayMsMax:    getEnvAsInt("CHAOS_DELAY_MS_MAX", 0),
		DisconnectPct: getEnvAsInt("CHAOS_DISCONNECT_PCT", 0),
		Seed:          getEnvAsInt64("CHAOS_SEED", 1),
		WindowMs:      getEnvAsInt("CHAOS_WINDOW_MS", 0),
	}
}

// ParseProfile parses a profile string like "drop-pct=30,delay=50-250,disconnect-pct=5"
func ParseProfile(profile string) (dropPct, delayMin, delayMax, disconnectPct int, err error) {
	if profile == "" {
		return 0, 0, 0, 0, nil
	}

	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "drop-pct="):
			dropPct, err = strconv.Atoi(strings.TrimPrefix(part, "drop-pct="))
			if err != nil {
				return 0, 0, 0, 0, fmt.Errorf("invalid drop-pct: %w", err)
			}
		case strings.HasPrefix(part, "disconnect-pct="):
			disconnectPct, err = strconv.Atoi(strings.TrimPrefix(part, "disconnect-pct="))
			if err != nil {
				return 0, 0, 0, 0, fmt.Errorf("invalid disconnect-pct: %w", err)
			}
		case strings.HasPrefix(part, "delay="):
			val := strings.TrimPrefix(part, "delay=")
			delayParts := strings.Split(val, "-")
			if len(delayParts) == 2 {
				delayMin, err = strconv.Atoi(delayParts[0])
				if err != nil {
					return 0, 0, 0, 0, fmt.Errorf("invalid delay min: %w", err)
				}
				delayMax, err = strconv.Atoi(delayParts[1])
				if err != nil {
					return 0, 0, 0, 0, fmt.Errorf("invalid delay max: %w", err)
				}
			}
		}
	}

	return dropPct, delayMin, delayMax, disconnectPct, nil
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
