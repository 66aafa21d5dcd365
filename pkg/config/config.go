// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Storage  StorageConfig
	Replicas ReplicaConfig
	Chain    ChainConfig
	Logging  LoggingConfig

	// AdminAddress is the wallet granted read and write access to every
	// group. Empty disables the override entirely.
	AdminAddress string
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig describes the group record store.
type StorageConfig struct {
	Mode        string // dynamodb|memory
	GroupsTable string
	QueueURL    string
	CallTimeout time.Duration
}

// ReplicaConfig names the content-addressed backends and the index
// bootstrap location. Endpoint lists are comma-separated and tried in
// order.
type ReplicaConfig struct {
	IPFSUploadEndpoints    []string
	IPFSGateways           []string
	ArweaveUploadEndpoints []string
	ArweaveGateways        []string
	IndexBootstrapAddress  string
	IndexBackend           string // ipfs|arweave|memory
}

// ChainConfig points the confirmation worker at a JSON-RPC endpoint.
type ChainConfig struct {
	RPCEndpoint string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level   string
	Format  string // text|json
	Colored bool
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultCallTimeout     = 10 * time.Second
	defaultStorageMode     = "dynamodb"
	defaultIndexBackend    = "ipfs"
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:            valueOrDefault("SERVER_HOST", defaultHost),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Storage: StorageConfig{
			Mode:        valueOrDefault("STORAGE_MODE", defaultStorageMode),
			GroupsTable: valueOrDefault("GROUPS_TABLE_NAME", "concordia-groups"),
			QueueURL:    os.Getenv("CONFIRMATIONS_QUEUE_URL"),
			CallTimeout: defaultCallTimeout,
		},
		Replicas: ReplicaConfig{
			IPFSUploadEndpoints:    splitCSV(os.Getenv("IPFS_UPLOAD_ENDPOINTS")),
			IPFSGateways:           splitCSV(os.Getenv("IPFS_GATEWAYS")),
			ArweaveUploadEndpoints: splitCSV(os.Getenv("ARWEAVE_UPLOAD_ENDPOINTS")),
			ArweaveGateways:        splitCSV(os.Getenv("ARWEAVE_GATEWAYS")),
			IndexBootstrapAddress:  os.Getenv("INDEX_BOOTSTRAP_ADDRESS"),
			IndexBackend:           valueOrDefault("INDEX_BACKEND", defaultIndexBackend),
		},
		Chain: ChainConfig{
			RPCEndpoint: os.Getenv("CHAIN_RPC_ENDPOINT"),
		},
		Logging: LoggingConfig{
			Level:   valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:  valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			Colored: parseBoolWithDefault("LOG_COLOR", false),
		},
		AdminAddress: strings.ToLower(os.Getenv("ADMIN_ADDRESS")),
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	if v := os.Getenv("STORAGE_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STORAGE_CALL_TIMEOUT: %w", err)
		}
		cfg.Storage.CallTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.HTTP.ShutdownTimeout = d
	}

	switch cfg.Storage.Mode {
	case "dynamodb", "memory":
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_MODE %q", cfg.Storage.Mode)
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
