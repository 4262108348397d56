package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "ChainCart/internal/errors"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		EnvPrivateKey:     "0xabc",
		EnvRPCURL:         "https://rpc.example",
		EnvCheckoutAPIKey: "sk_staging_123",
		EnvOpenAIAPIKey:   "sk-openai",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Wallet.Chain != "base" || cfg.LLM.MaxSteps != DefaultMaxSteps || cfg.Orders.Driver != "memory" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Wallet.RPCURL != "https://rpc.example" || cfg.LLM.APIKey != "sk-openai" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Policy.RequiredFields) != 5 {
		t.Fatalf("policy defaults missing: %+v", cfg.Policy)
	}
}

func TestValidateMissingCheckoutKeyIsFatal(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		EnvPrivateKey:   "0xabc",
		EnvOpenAIAPIKey: "sk-openai",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected missing checkout key error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeMissingCredential || !xerrors.IsFatal(err) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFileValuesAreOverriddenByEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaincart.json")
	content := `{
  "llm": {"model": "gpt-4o", "api_key_env": "MY_OPENAI_KEY", "max_steps": 4},
  "wallet": {"chain": "Solana-Devnet", "chains_file": "chains.yaml", "private_key": "file-key"},
  "checkout": {"api_key": "file-checkout"},
  "orders": {"driver": "Redis", "redis": {"address": "localhost:6379"}},
  "log": {"outputs": ["stderr", "logs/app.log"]}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(path, envMap(map[string]string{
		EnvCheckoutAPIKey: "env-checkout",
		"MY_OPENAI_KEY":   "custom-key",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Checkout.APIKey != "env-checkout" {
		t.Fatalf("env must win over file, got %q", cfg.Checkout.APIKey)
	}
	if cfg.Wallet.PrivateKey != "file-key" || cfg.LLM.APIKey != "custom-key" {
		t.Fatalf("unexpected credentials: %+v", cfg)
	}
	if cfg.Wallet.Chain != "solana-devnet" || cfg.Orders.Driver != "redis" || cfg.LLM.MaxSteps != 4 {
		t.Fatalf("unexpected normalisation: %+v", cfg)
	}
	if cfg.Wallet.ChainsFile != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chains file not resolved: %s", cfg.Wallet.ChainsFile)
	}
	if cfg.Log.Outputs[0] != "stderr" || cfg.Log.Outputs[1] != filepath.Join(dir, "logs/app.log") {
		t.Fatalf("log outputs not resolved: %v", cfg.Log.Outputs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsUnknownOrderDriver(t *testing.T) {
	cfg := &Config{
		LLM:      LLMConfig{Provider: "openai", APIKey: "k"},
		Wallet:   WalletConfig{PrivateKey: "k"},
		Checkout: CheckoutConfig{APIKey: "k"},
		Orders:   OrdersConfig{Driver: "postgres"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{Checkout: CheckoutConfig{APIKey: "sk_production_secret"}, Wallet: WalletConfig{PrivateKey: "0x1234567890"}}
	summary := cfg.String()
	for _, secret := range []string{"sk_production_secret", "0x1234567890"} {
		if strings.Contains(summary, secret) {
			t.Fatalf("secret leaked in %q", summary)
		}
	}
}
