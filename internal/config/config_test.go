package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.ASR.Engine != "mock" {
		t.Fatalf("expected mock engine default, got %q", cfg.ASR.Engine)
	}
	if cfg.ASR.TimeoutSec != 10 {
		t.Fatalf("expected default timeout 10s, got %d", cfg.ASR.TimeoutSec)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_ASR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_ASR_BUS_USERNAME", "alice")
	t.Setenv("LOQA_ASR_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_ASR_ENGINE", "delegated")
	t.Setenv("LOQA_ASR_LANGUAGE", "en")
	t.Setenv("LOQA_ASR_TIMEOUT_SEC", "7")
	t.Setenv("LOQA_ASR_DELEGATED_BROKER_HOST", "broker.local")
	t.Setenv("LOQA_ASR_DELEGATED_BROKER_PORT", "8883")
	t.Setenv("LOQA_ASR_DELEGATED_AUTO_RESTART", "false")
	t.Setenv("LOQA_ASR_DELEGATED_MAX_RESTARTS", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.ASR.Engine != "delegated" {
		t.Fatalf("expected engine override, got %q", cfg.ASR.Engine)
	}
	if cfg.ASR.TimeoutSec != 7 {
		t.Fatalf("expected timeout override, got %d", cfg.ASR.TimeoutSec)
	}
	if cfg.Delegated.BrokerHost != "broker.local" || cfg.Delegated.BrokerPort != 8883 {
		t.Fatalf("expected broker override, got %s:%d", cfg.Delegated.BrokerHost, cfg.Delegated.BrokerPort)
	}
	if cfg.Delegated.AutoRestart {
		t.Fatal("expected auto restart override false")
	}
	if cfg.Delegated.MaxRestarts != 3 {
		t.Fatalf("expected max restarts override, got %d", cfg.Delegated.MaxRestarts)
	}
}

func TestValidateRejectsUnknownEngine(t *testing.T) {
	cfg := Default()
	cfg.ASR.Engine = "cloud"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown engine")
	}
}

func TestValidateEmbeddedRequiresCommand(t *testing.T) {
	cfg := Default()
	cfg.ASR.Engine = "embedded"
	cfg.ASR.Command = ""
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for missing command")
	}
}
