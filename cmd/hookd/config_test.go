package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/testutil/testlog"
)

func writeServerConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaults(t *testing.T) {
	testlog.Start(t)
	farm := config.Default()
	farm.Hookd.Token = "farm-token"
	cfg, err := loadServiceConfig("", farm)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9400" || cfg.Server.Name != "hookd" || cfg.Server.Token != "farm-token" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Messages.PageExists("Privacypage", "en") {
		t.Fatalf("no message pages expected by default")
	}
}

func TestLoadServiceConfigOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeServerConfig(t, `
name = "hookd-mw1"
addr = "0.0.0.0:9401"
token = "file-token"
cors_origins = ["https://meta.miraheze.org", " "]
trusted_proxies = ["10.0.0.1"]
message_pages = ["Privacypage/en", "Mainpage"]
disabled_messages = ["miraheze-donate"]

[messages]
mainpage = "Welcome"
miraheze-donate = "Donate"
`)
	cfg, err := loadServiceConfig(path, config.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9401" || cfg.Server.Name != "hookd-mw1" || cfg.Server.Token != "file-token" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if !slices.Equal(cfg.Server.CORSOrigins, []string{"https://meta.miraheze.org"}) {
		t.Fatalf("unexpected cors origins: %v", cfg.Server.CORSOrigins)
	}
	if !slices.Equal(cfg.Server.TrustedProxies, []string{"10.0.0.1"}) {
		t.Fatalf("unexpected trusted proxies: %v", cfg.Server.TrustedProxies)
	}
	if !cfg.Messages.PageExists("Privacypage", "en") || cfg.Messages.PageExists("Privacypage", "de") {
		t.Fatalf("language specific page lookup failed")
	}
	if !cfg.Messages.PageExists("Mainpage", "de") {
		t.Fatalf("language independent page lookup failed")
	}
	if text, ok := cfg.Messages.Text("mainpage"); !ok || text != "Welcome" {
		t.Fatalf("unexpected mainpage text: %q %v", text, ok)
	}
	if _, ok := cfg.Messages.Text("miraheze-donate"); ok {
		t.Fatalf("disabled message should not resolve")
	}
}

func TestLoadServiceConfigKeepsFarmToken(t *testing.T) {
	testlog.Start(t)
	farm := config.Default()
	farm.Hookd.Token = "farm-token"
	cfg, err := loadServiceConfig(writeServerConfig(t, `token = "file-token"`), farm)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Token != "farm-token" {
		t.Fatalf("farm token should win, got %q", cfg.Server.Token)
	}
}

func TestLoadServiceConfigRejects(t *testing.T) {
	testlog.Start(t)
	if _, err := loadServiceConfig(writeServerConfig(t, `bogus = 1`), config.Default()); err == nil {
		t.Fatalf("expected unknown key error")
	}
	_, err := loadServiceConfig(writeServerConfig(t, `addr = ""`), config.Default())
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := loadServiceConfig(filepath.Join(t.TempDir(), "missing.toml"), config.Default()); err == nil {
		t.Fatalf("expected missing file error")
	}
}
