// Package config loads and validates process configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the converter settlement service configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Cardano  CardanoConfig  `mapstructure:"cardano"`
	Signer   SignerConfig   `mapstructure:"signer"`
	Expiry   ExpiryConfig   `mapstructure:"expiry"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CardanoConfig contains the UTXO-chain indexer client settings
type CardanoConfig struct {
	IndexerURL     string        `mapstructure:"indexer_url"`
	ProjectKey     string        `mapstructure:"project_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// DepositAddress is the bridge-managed address UTXO-source deposits are
	// paid to. Allocated out of band by the wallet operator.
	DepositAddress string `mapstructure:"deposit_address"`
}

// SignerConfig contains the bridge authority signer settings
type SignerConfig struct {
	// AuthorityKey is the hex-encoded secp256k1 private key used to issue
	// CONVERSION_OUT / CONVERSION_IN signatures.
	AuthorityKey string `mapstructure:"authority_key"`
	// ExpiryBlocks is the request-signature freshness window in blocks.
	ExpiryBlocks uint64 `mapstructure:"expiry_blocks"`
}

// ExpiryConfig contains per-chain conversion staleness windows
type ExpiryConfig struct {
	// Hours maps a source chain name to the age after which a pending
	// conversion is swept to EXPIRED.
	Hours         map[string]int `mapstructure:"hours"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	SweepOnce     bool           `mapstructure:"sweep_once"`
}

// NotifyConfig contains outbound notification settings
type NotifyConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
	QueueURL string `mapstructure:"queue_url"`
	Region   string `mapstructure:"region"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "converter")

	// Chain client defaults
	viper.SetDefault("ethereum.request_timeout", "15s")
	viper.SetDefault("cardano.request_timeout", "15s")

	// Signer defaults
	viper.SetDefault("signer.expiry_blocks", 600)

	// Expiry defaults: pending Cardano conversions linger longer because the
	// deposit address stays valid, Ethereum requests die with their signature.
	viper.SetDefault("expiry.hours", map[string]int{"ethereum": 24, "cardano": 48})
	viper.SetDefault("expiry.sweep_interval", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.Cardano.IndexerURL == "" {
		return fmt.Errorf("cardano.indexer_url is required")
	}
	if config.Signer.AuthorityKey == "" {
		return fmt.Errorf("signer.authority_key is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
