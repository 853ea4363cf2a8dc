package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Exchange != "order.events" || cfg.Transport != TransportRabbitMQ {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.yaml")
	body := "transport: kafka\nworkers: 8\ncommand_timeout: 3s\nkafka_brokers:\n  - k1:9092\n  - k2:9092\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOCK_WORKERS", "2")
	t.Setenv("STOCK_LEDGER", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport != TransportKafka {
		t.Errorf("transport from file not applied: %s", cfg.Transport)
	}
	if cfg.Workers != 2 {
		t.Errorf("env should win over file, got %d workers", cfg.Workers)
	}
	if cfg.CommandTimeout != 3*time.Second {
		t.Errorf("command timeout: %v", cfg.CommandTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.Ledger != LedgerMemory {
		t.Errorf("ledger: %s", cfg.Ledger)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	env := map[string]string{
		"STOCK_WORKERS":         "many",
		"STOCK_COMMAND_TIMEOUT": "soon",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"STOCK_WORKERS", "STOCK_COMMAND_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Transport = "nats"
	cfg.Workers = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"transport", "workers", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}
