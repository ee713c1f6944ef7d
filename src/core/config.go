package main

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port               string        `yaml:"port"`
	LogLevel           string        `yaml:"logLevel"`
	HubName            string        `yaml:"hubName"`
	HubDomain          string        `yaml:"hubDomain"`
	HubDescription     string        `yaml:"hubDescription"`
	HubsFile           string        `yaml:"hubsFile"`
	DataDir            string        `yaml:"dataDir"`
	WalletAddress      string        `yaml:"walletAddress"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	MaxBodySizeBytes   int64         `yaml:"maxBodySizeBytes"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
	ReplicationTimeout time.Duration `yaml:"replicationTimeout"`
}

// Default values
const (
	DefaultRateLimitPerMinute = 100
	DefaultMaxBodySizeBytes   = 1 << 20 // 1MB
	DefaultDataDir            = "./data"
	DefaultHubsFile           = "hubs.yaml"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultReplicationTimeout = 10 * time.Second
)

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and environment variable overrides, in that order.
func LoadConfig() *Config {
	cfg := &Config{
		Port:               "8080",
		LogLevel:           "info",
		HubName:            "Ozodon Node",
		HubDomain:          "https://your-ozodon-instance.com",
		HubDescription:     "A federated marketplace node",
		HubsFile:           DefaultHubsFile,
		DataDir:            DefaultDataDir,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		MaxBodySizeBytes:   DefaultMaxBodySizeBytes,
		ShutdownTimeout:    DefaultShutdownTimeout,
		ReplicationTimeout: DefaultReplicationTimeout,
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if data, err := os.ReadFile(configFile); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil && logger != nil {
				logger.Warn("Failed to parse config file, using defaults", "file", configFile, "error", err)
			}
		} else if logger != nil {
			logger.Warn("Failed to read config file, using defaults", "file", configFile, "error", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if hubName := os.Getenv("HUB_NAME"); hubName != "" {
		cfg.HubName = hubName
	}

	if hubDomain := os.Getenv("HUB_DOMAIN"); hubDomain != "" {
		cfg.HubDomain = hubDomain
	}

	if hubDescription := os.Getenv("HUB_DESCRIPTION"); hubDescription != "" {
		cfg.HubDescription = hubDescription
	}

	if hubsFile := os.Getenv("HUBS_FILE"); hubsFile != "" {
		cfg.HubsFile = hubsFile
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	if walletAddress := os.Getenv("TON_WALLET_ADDRESS"); walletAddress != "" {
		cfg.WalletAddress = walletAddress
	}

	if rateLimitEnv := os.Getenv("RATE_LIMIT_PER_MINUTE"); rateLimitEnv != "" {
		if rateLimit, err := strconv.Atoi(rateLimitEnv); err == nil && rateLimit > 0 {
			cfg.RateLimitPerMinute = rateLimit
		}
	}

	if maxBodyEnv := os.Getenv("MAX_BODY_SIZE_BYTES"); maxBodyEnv != "" {
		if maxBody, err := strconv.ParseInt(maxBodyEnv, 10, 64); err == nil && maxBody > 0 {
			cfg.MaxBodySizeBytes = maxBody
		}
	}

	if shutdownTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); shutdownTimeout != "" {
		if duration, err := time.ParseDuration(shutdownTimeout); err == nil {
			cfg.ShutdownTimeout = duration
		}
	}

	if replicationTimeout := os.Getenv("REPLICATION_TIMEOUT"); replicationTimeout != "" {
		if duration, err := time.ParseDuration(replicationTimeout); err == nil {
			cfg.ReplicationTimeout = duration
		}
	}

	return cfg
}
