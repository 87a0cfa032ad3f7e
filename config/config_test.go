package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `solbridge:
  name: "TestApp"
  version: "1.0"
workflow:
  target_asset: SOL
wallet:
  address: "So1anaAddr111"
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Solbridge.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Solbridge.Name)
	}
	if cfg.Workflow.TargetAsset != "SOL" {
		t.Errorf("unexpected target asset: %s", cfg.Workflow.TargetAsset)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Kraken.APIBase != "https://api.kraken.com" {
		t.Errorf("api base = %s", cfg.Kraken.APIBase)
	}
	if cfg.Kraken.Timeout != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", cfg.Kraken.Timeout)
	}
	if cfg.Workflow.FeeBuffer != "0.01" {
		t.Errorf("fee buffer = %s, want 0.01", cfg.Workflow.FeeBuffer)
	}
	if cfg.Workflow.ReserveFraction != "0.10" {
		t.Errorf("reserve fraction = %s, want 0.10", cfg.Workflow.ReserveFraction)
	}
	if cfg.Workflow.MinTargetBalance != "0.05" {
		t.Errorf("min target balance = %s, want 0.05", cfg.Workflow.MinTargetBalance)
	}
	if len(cfg.Workflow.QuoteAssets) != 1 || cfg.Workflow.QuoteAssets[0] != "USD" {
		t.Errorf("quote assets = %v, want [USD]", cfg.Workflow.QuoteAssets)
	}
	if cfg.Workflow.Retry.MaxAttempts != 3 {
		t.Errorf("retry attempts = %d, want 3", cfg.Workflow.Retry.MaxAttempts)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "missing target asset",
			content: `solbridge:
  name: "TestApp"
  version: "1.0"
wallet:
  address: "So1anaAddr111"
`,
		},
		{
			name: "missing wallet",
			content: `solbridge:
  name: "TestApp"
  version: "1.0"
workflow:
  target_asset: SOL
`,
		},
		{
			name: "bad fee buffer",
			content: `solbridge:
  name: "TestApp"
  version: "1.0"
workflow:
  target_asset: SOL
  fee_buffer: "1.5"
wallet:
  address: "So1anaAddr111"
`,
		},
		{
			name: "non-decimal reserve fraction",
			content: `solbridge:
  name: "TestApp"
  version: "1.0"
workflow:
  target_asset: SOL
  reserve_fraction: "lots"
wallet:
  address: "So1anaAddr111"
`,
		},
		{
			name: "s3 enabled without bucket",
			content: `solbridge:
  name: "TestApp"
  version: "1.0"
workflow:
  target_asset: SOL
wallet:
  address: "So1anaAddr111"
storage:
  s3:
    enabled: true
    region: us-east-1
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, tc.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvSigningSecret, "secret")
	creds, err := CredentialsFromEnv()
	if err != nil {
		t.Fatalf("CredentialsFromEnv failed: %v", err)
	}
	if creds.APIKey != "key" || creds.SigningSecret != "secret" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	t.Setenv(EnvSigningSecret, "")
	if _, err := CredentialsFromEnv(); err == nil {
		t.Error("expected error when signing secret is missing")
	}
}

func TestWalletAddressEnvOverride(t *testing.T) {
	t.Setenv(EnvWalletAddress, "So1anaAddrEnv")
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Wallet.Address != "So1anaAddrEnv" {
		t.Errorf("wallet address = %s, want env override", cfg.Wallet.Address)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
