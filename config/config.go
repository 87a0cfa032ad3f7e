package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Solbridge SolbridgeConfig `yaml:"solbridge"`
	Logging   LoggingConfig   `yaml:"logging"`
	Kraken    KrakenConfig    `yaml:"kraken"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type SolbridgeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type KrakenConfig struct {
	APIBase   string          `yaml:"api_base"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// WorkflowConfig holds the consolidation thresholds and buffers.
// Fractions and amounts are YAML strings parsed into fixed-precision
// decimals so fee arithmetic never touches binary floating point.
type WorkflowConfig struct {
	TargetAsset            string            `yaml:"target_asset"`
	QuoteAssets            []string          `yaml:"quote_assets"`
	FeeBuffer              string            `yaml:"fee_buffer"`
	WithdrawalFeeBuffer    string            `yaml:"withdrawal_fee_buffer"`
	ReserveFraction        string            `yaml:"reserve_fraction"`
	DefaultMinTradeSize    string            `yaml:"default_min_trade_size"`
	MinTradeSizes          map[string]string `yaml:"min_trade_sizes"`
	MinPurchaseQuote       string            `yaml:"min_purchase_quote"`
	MinTargetBalance       string            `yaml:"min_target_balance"`
	ReferencePrice         string            `yaml:"reference_price"`
	AddressLabelPrefix     string            `yaml:"address_label_prefix"`
	SettlementPollInterval time.Duration     `yaml:"settlement_poll_interval"`
	SettlementMaxWait      time.Duration     `yaml:"settlement_max_wait"`
	Retry                  RetryConfig       `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type WalletConfig struct {
	Address string `yaml:"address"`
	Keyfile string `yaml:"keyfile"`
}

type StorageConfig struct {
	ReportDir string   `yaml:"report_dir"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
	Region     string `yaml:"region"`
}

// Environment variable names for the exchange credentials. They are
// deliberately absent from the YAML surface; secrets never live in
// config files.
const (
	EnvAPIKey        = "KRAKEN_API_KEY"
	EnvSigningSecret = "KRAKEN_PRIVATE_KEY"
	EnvWalletAddress = "WITHDRAWAL_ADDRESS"
)

// Credentials carries the exchange API key and the base64-encoded
// signing secret. Never logged, never serialized.
type Credentials struct {
	APIKey        string
	SigningSecret string
}

// CredentialsFromEnv reads the exchange credentials from the
// environment. Both values are required.
func CredentialsFromEnv() (Credentials, error) {
	key := strings.TrimSpace(os.Getenv(EnvAPIKey))
	secret := strings.TrimSpace(os.Getenv(EnvSigningSecret))
	if key == "" || secret == "" {
		return Credentials{}, fmt.Errorf("%s and %s must be set", EnvAPIKey, EnvSigningSecret)
	}
	return Credentials{APIKey: key, SigningSecret: secret}, nil
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	applyDefaults(&config)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv(EnvWalletAddress); v != "" {
		config.Wallet.Address = strings.TrimSpace(v)
	}

	// Validate configuration
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	cfg.Kraken.APIBase = "https://api.kraken.com"
	cfg.Kraken.Timeout = 10 * time.Second
	cfg.Kraken.RateLimit = RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}

	cfg.Workflow.QuoteAssets = []string{"USD"}
	cfg.Workflow.FeeBuffer = "0.01"
	cfg.Workflow.WithdrawalFeeBuffer = "0.01"
	cfg.Workflow.ReserveFraction = "0.10"
	cfg.Workflow.DefaultMinTradeSize = "1"
	cfg.Workflow.MinPurchaseQuote = "5"
	cfg.Workflow.MinTargetBalance = "0.05"
	cfg.Workflow.AddressLabelPrefix = "solbridge"
	cfg.Workflow.SettlementPollInterval = 3 * time.Second
	cfg.Workflow.SettlementMaxWait = 45 * time.Second
	cfg.Workflow.Retry = RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    15 * time.Second,
	}

	cfg.Storage.ReportDir = "reports"
}

func validateConfig(cfg *Config) error {
	if cfg.Solbridge.Name == "" {
		return fmt.Errorf("solbridge.name is required")
	}

	if cfg.Solbridge.Version == "" {
		return fmt.Errorf("solbridge.version is required")
	}

	if cfg.Kraken.APIBase == "" {
		return fmt.Errorf("kraken.api_base is required")
	}
	if cfg.Kraken.Timeout <= 0 {
		return fmt.Errorf("kraken.timeout must be greater than 0")
	}
	if cfg.Kraken.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("kraken.rate_limit.requests_per_second must be greater than 0")
	}

	if cfg.Workflow.TargetAsset == "" {
		return fmt.Errorf("workflow.target_asset is required")
	}
	if len(cfg.Workflow.QuoteAssets) == 0 {
		return fmt.Errorf("workflow.quote_assets must not be empty")
	}
	if cfg.Workflow.SettlementPollInterval <= 0 {
		return fmt.Errorf("workflow.settlement_poll_interval must be greater than 0")
	}
	if cfg.Workflow.SettlementMaxWait < cfg.Workflow.SettlementPollInterval {
		return fmt.Errorf("workflow.settlement_max_wait must be at least the poll interval")
	}
	if cfg.Workflow.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("workflow.retry.max_attempts must be greater than 0")
	}

	one := decimal.NewFromInt(1)
	for _, field := range []struct {
		name  string
		value string
	}{
		{"workflow.fee_buffer", cfg.Workflow.FeeBuffer},
		{"workflow.withdrawal_fee_buffer", cfg.Workflow.WithdrawalFeeBuffer},
		{"workflow.reserve_fraction", cfg.Workflow.ReserveFraction},
	} {
		f, err := decimal.NewFromString(field.value)
		if err != nil {
			return fmt.Errorf("%s is not a valid decimal: %w", field.name, err)
		}
		if f.IsNegative() || f.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be within [0, 1)", field.name)
		}
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"workflow.default_min_trade_size", cfg.Workflow.DefaultMinTradeSize},
		{"workflow.min_purchase_quote", cfg.Workflow.MinPurchaseQuote},
		{"workflow.min_target_balance", cfg.Workflow.MinTargetBalance},
	} {
		if _, err := decimal.NewFromString(field.value); err != nil {
			return fmt.Errorf("%s is not a valid decimal: %w", field.name, err)
		}
	}
	if cfg.Workflow.ReferencePrice != "" {
		if _, err := decimal.NewFromString(cfg.Workflow.ReferencePrice); err != nil {
			return fmt.Errorf("workflow.reference_price is not a valid decimal: %w", err)
		}
	}
	for asset, size := range cfg.Workflow.MinTradeSizes {
		if _, err := decimal.NewFromString(size); err != nil {
			return fmt.Errorf("workflow.min_trade_sizes[%s] is not a valid decimal: %w", asset, err)
		}
	}

	if cfg.Wallet.Address == "" && cfg.Wallet.Keyfile == "" {
		return fmt.Errorf("wallet.address or wallet.keyfile is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

// DecimalField parses a config decimal string that validateConfig has
// already checked. Invalid values found after validation indicate a
// programming error and return zero.
func DecimalField(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
