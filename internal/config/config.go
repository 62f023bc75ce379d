package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// FileConfig models the minter configuration file.
type FileConfig struct {
	HTTPPort             int    `yaml:"http_port"`
	RPCURL               string `yaml:"web3_rpc_url"`
	DataDirectory        string `yaml:"data_directory"`
	ContractsDirectory   string `yaml:"contracts_directory"`
	RequireConfirmations uint64 `yaml:"require_confirmations"`
	GasLimit             uint64 `yaml:"gas_limit"`
	Cache                struct {
		PostgresDSN      string `yaml:"postgres_dsn"`
		AnchorTTLSeconds int    `yaml:"anchor_ttl_seconds"`
	} `yaml:"cache"`
}

// AppConfig ties together file values and derived settings.
type AppConfig struct {
	File      FileConfig
	HTTPPort  int
	RPCURL    string
	AnchorTTL time.Duration
}

const defaultConfigPath = "minter.yaml"

// Load reads the config file (path from MINTER_CONFIG) and applies
// environment overrides.
func Load() (*AppConfig, error) {
	path := envOr("MINTER_CONFIG", defaultConfigPath)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fileCfg FileConfig
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	fileCfg.RPCURL = envOr("CHAIN_RPC_URL", fileCfg.RPCURL)
	fileCfg.Cache.PostgresDSN = envOr("CACHE_POSTGRES_DSN", fileCfg.Cache.PostgresDSN)

	cfg := &AppConfig{
		File:      fileCfg,
		HTTPPort:  envOrInt("MINTER_HTTP_PORT", fileCfg.HTTPPort),
		RPCURL:    fileCfg.RPCURL,
		AnchorTTL: time.Duration(fileCfg.Cache.AnchorTTLSeconds) * time.Second,
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 3000
	}
	if cfg.AnchorTTL == 0 {
		cfg.AnchorTTL = time.Hour
	}

	if err := validate(&fileCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *FileConfig) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("web3_rpc_url is not provided")
	}
	if cfg.DataDirectory == "" {
		return fmt.Errorf("data_directory is not provided")
	}
	info, err := os.Stat(cfg.DataDirectory)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("data_directory %q is not a directory", cfg.DataDirectory)
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
