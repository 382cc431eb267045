package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"tipchain/crypto"
)

var testAllocAddr = func() string {
	var addr [20]byte
	addr[0] = 0x42
	addr[len(addr)-1] = 0x24
	return crypto.NewAddress(crypto.TipPrefix, addr[:]).String()
}()

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "operator.keystore")
	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
OpsAddress = "0.0.0.0:9100"
DataDir = "./data"
NetworkName = "testnet"
OperatorKeystorePath = "%s"

[GenesisAllocs]
%s = "1000"
`, keystorePath, testAllocAddr)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" || cfg.OpsAddress != "0.0.0.0:9100" {
		t.Fatalf("unexpected listen addresses: %+v", cfg)
	}
	if cfg.NetworkName != "testnet" || cfg.DataDir != "./data" {
		t.Fatalf("unexpected config values: %+v", cfg)
	}
	if cfg.OperatorKeystorePath != keystorePath {
		t.Fatalf("keystore path = %q, want %q", cfg.OperatorKeystorePath, keystorePath)
	}
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("keystore was not bootstrapped: %v", err)
	}

	allocs, err := cfg.ParseGenesisAllocs()
	if err != nil {
		t.Fatalf("parse allocs: %v", err)
	}
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
	for _, amount := range allocs {
		if amount.Cmp(big.NewInt(1000)) != 0 {
			t.Fatalf("allocation = %s, want 1000", amount)
		}
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress == "" || cfg.DataDir == "" || cfg.NetworkName == "" {
		t.Fatalf("default config has empty fields: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config was not written: %v", err)
	}
	if _, err := os.Stat(cfg.OperatorKeystorePath); err != nil {
		t.Fatalf("default keystore was not written: %v", err)
	}

	key, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, "")
	if err != nil {
		t.Fatalf("decrypt bootstrapped keystore: %v", err)
	}
	if key == nil {
		t.Fatal("keystore produced a nil key")
	}
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "operator.keystore")
	contents := fmt.Sprintf("OperatorKeystorePath = %q\n", keystorePath)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != ":8545" || cfg.OpsAddress != ":9090" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.NetworkName != "tipchain-local" || cfg.DataDir != "./tipchain-data" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestParseGenesisAllocsRejectsBadEntries(t *testing.T) {
	cfg := &Config{GenesisAllocs: map[string]string{"not-bech32": "10"}}
	if _, err := cfg.ParseGenesisAllocs(); err == nil {
		t.Fatal("expected error for malformed address")
	}

	cfg = &Config{GenesisAllocs: map[string]string{testAllocAddr: "-5"}}
	if _, err := cfg.ParseGenesisAllocs(); err == nil {
		t.Fatal("expected error for negative amount")
	}

	cfg = &Config{GenesisAllocs: map[string]string{testAllocAddr: "lots"}}
	if _, err := cfg.ParseGenesisAllocs(); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}
