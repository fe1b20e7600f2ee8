package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/server"
)

type fileConfig struct {
	Name             string            `toml:"name"`
	Addr             string            `toml:"addr"`
	Token            string            `toml:"token"`
	CORSOrigins      []string          `toml:"cors_origins"`
	TrustedProxies   []string          `toml:"trusted_proxies"`
	Messages         map[string]string `toml:"messages"`
	MessagePages     []string          `toml:"message_pages"`
	DisabledMessages []string          `toml:"disabled_messages"`
}

// serviceConfig is the resolved hookd setup.
type serviceConfig struct {
	Addr     string
	Server   server.Config
	Messages staticMessages
}

func defaultServiceConfig(farm config.Farm) serviceConfig {
	return serviceConfig{
		Addr: farm.Hookd.Addr,
		Server: server.Config{
			Name:  "hookd",
			Token: farm.Hookd.Token,
		},
		Messages: newStaticMessages(nil, nil, nil),
	}
}

// loadServiceConfig overlays the keys defined in path on the farm defaults.
// An empty path keeps the defaults.
func loadServiceConfig(path string, farm config.Farm) (serviceConfig, error) {
	cfg := defaultServiceConfig(farm)
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load hookd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serviceConfig{}, fmt.Errorf("load hookd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Server.Name = name
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	// The farm file and its environment secret take precedence.
	if meta.IsDefined("token") && strings.TrimSpace(raw.Token) != "" && farm.Hookd.Token == "" {
		cfg.Server.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Server.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("trusted_proxies") {
		cfg.Server.TrustedProxies = normalizeList(raw.TrustedProxies)
	}
	if meta.IsDefined("messages") || meta.IsDefined("message_pages") || meta.IsDefined("disabled_messages") {
		cfg.Messages = newStaticMessages(raw.Messages, normalizeList(raw.MessagePages), normalizeList(raw.DisabledMessages))
	}

	if cfg.Addr == "" {
		return serviceConfig{}, fmt.Errorf("%w: hookd addr is required", config.ErrInvalidConfig)
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// staticMessages serves interface messages from the hookd config file.
type staticMessages struct {
	text     map[string]string
	pages    map[string]bool
	disabled map[string]bool
}

func newStaticMessages(text map[string]string, pages, disabled []string) staticMessages {
	m := staticMessages{text: map[string]string{}, pages: map[string]bool{}, disabled: map[string]bool{}}
	for k, v := range text {
		m.text[k] = v
	}
	for _, p := range pages {
		m.pages[p] = true
	}
	for _, d := range disabled {
		m.disabled[d] = true
	}
	return m
}

// PageExists matches "Key/lang" entries, or "Key" for every language.
func (m staticMessages) PageExists(key, lang string) bool {
	return m.pages[key+"/"+lang] || m.pages[key]
}

func (m staticMessages) Text(key string) (string, bool) {
	if m.disabled[key] {
		return "", false
	}
	text, ok := m.text[key]
	return text, ok
}
