package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Client.Validate(); err != nil {
		t.Fatalf("client defaults: %v", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		t.Fatalf("server defaults: %v", err)
	}
	if cfg.Server.InputDelay != 2 || cfg.Server.DesyncInterval != 60 || cfg.Server.Seed != 8008135 {
		t.Fatalf("unexpected defaults: %s", spew.Sdump(cfg))
	}
	if cfg.Server.BindTimeout != 10*time.Second {
		t.Fatalf("unexpected bind timeout %s", cfg.Server.BindTimeout)
	}
}

func TestFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	yaml := "client:\n  room: duel\nserver:\n  proto: tcp\n  input_delay: 4\n  bind_timeout: 3s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("P2PG_CLIENT_RENDEZVOUS", "ws://example.com:8080/rendezvous")
	t.Setenv("P2PG_SERVER_DESYNC_INTERVAL", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.Room != "duel" || cfg.Server.InputDelay != 4 {
		t.Fatalf("file values ignored: %s", spew.Sdump(cfg))
	}
	if cfg.Client.Rendezvous != "ws://example.com:8080/rendezvous" || cfg.Server.DesyncInterval != 30 {
		t.Fatalf("env values ignored: %s", spew.Sdump(cfg))
	}
	if cfg.Server.Proto != "tcp" || cfg.Server.BindTimeout != 3*time.Second {
		t.Fatalf("server values ignored: %s", spew.Sdump(cfg.Server))
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicit missing file should fail")
	}
}

func TestValidateReportsField(t *testing.T) {
	cases := []struct {
		mutate func(*Client)
		field  string
	}{
		{func(c *Client) { c.Rendezvous = "udp://127.0.0.1:1" }, "client.rendezvous"},
		{func(c *Client) { c.Room = "  " }, "client.room"},
		{func(c *Client) { c.MaxPrediction = 0 }, "client.max_prediction"},
	}
	for _, tc := range cases {
		c := Client{Rendezvous: "tcp://127.0.0.1:9998", Room: "p2pg", MaxPrediction: 8}
		tc.mutate(&c)
		var cfgErr *ConfigurationError
		if err := c.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
			t.Fatalf("expected error on %s, got %v", tc.field, err)
		}
	}

	s := Server{Addr: ":1", Proto: "udp", JWTSecret: "0123456789abcdef", BindTimeout: time.Second, RateLimit: 1, RateBurst: 1}
	var cfgErr *ConfigurationError
	if err := s.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "server.proto" {
		t.Fatalf("expected proto error, got %v", err)
	}

	for _, delay := range []int{-1, 17} {
		s := Server{Addr: ":1", Proto: "tcp", JWTSecret: "0123456789abcdef", InputDelay: delay, BindTimeout: time.Second, RateLimit: 1, RateBurst: 1}
		if err := s.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "server.input_delay" {
			t.Fatalf("expected input_delay error for %d, got %v", delay, err)
		}
	}
}
