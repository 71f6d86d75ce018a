package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Exchange.Host != "https://api.bitget.com" {
		t.Fatalf("host = %q, want default", cfg.Exchange.Host)
	}
	if cfg.Workflow.SettleTimeoutMs != 20_000 {
		t.Fatalf("settleTimeoutMs = %d, want 20000", cfg.Workflow.SettleTimeoutMs)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
exchange:
  timeoutMs: 5000
workflow:
  settleTimeoutMs: 30000
journal:
  path: /tmp/journal
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("EARNBOT_EXCHANGE_TIMEOUT_MS", "7000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	// Environment wins over the file; the file wins over defaults.
	if cfg.Exchange.TimeoutMs != 7000 {
		t.Fatalf("timeoutMs = %d, want env override 7000", cfg.Exchange.TimeoutMs)
	}
	if cfg.Workflow.SettleTimeoutMs != 30_000 {
		t.Fatalf("settleTimeoutMs = %d, want file value 30000", cfg.Workflow.SettleTimeoutMs)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := Default()
	cfg.Exchange.TimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() accepted zero timeout")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("BITGET_API_KEY", "k")
	t.Setenv("BITGET_API_SECRET", "s")
	t.Setenv("BITGET_PASSPHRASE", "")
	if _, ok := CredentialsFromEnv(); ok {
		t.Fatalf("credentials reported complete with empty passphrase")
	}

	t.Setenv("BITGET_PASSPHRASE", "p")
	creds, ok := CredentialsFromEnv()
	if !ok || creds.APIKey != "k" {
		t.Fatalf("CredentialsFromEnv() = %+v, %v", creds, ok)
	}
}
