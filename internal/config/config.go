package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	BackendCLI    = "cli"
	BackendNative = "native"

	RunnerLocal = "local"
	RunnerSSH   = "ssh"

	// SettingTypeDatabase marks a ManageWiki setting whose value is a wiki
	// database name and therefore follows that wiki through delete and rename.
	SettingTypeDatabase = "database"
)

// Farm is the farm-wide configuration shared by hookd and magicctl.
type Farm struct {
	DBName              string                `toml:"dbname"`
	DatabaseSuffix      string                `toml:"database_suffix"`
	GlobalDatabase      string                `toml:"global_database"`
	EchoDatabase        string                `toml:"echo_database"`
	CentralAuthDatabase string                `toml:"centralauth_database"`
	LocalDatabases      []string              `toml:"local_databases"`
	StaffWiki           string                `toml:"staff_wiki"`
	StaffAccessIDs      []int64               `toml:"staff_access_ids"`
	CacheDirectory      string                `toml:"cache_directory"`
	Domain              string                `toml:"domain"`
	StaticHost          string                `toml:"static_host"`
	LanguageCode        string                `toml:"language_code"`
	InstallPath         string                `toml:"install_path"`
	ManageWikiSettings  map[string]SettingDef `toml:"managewiki_settings"`

	Database Database `toml:"database"`
	Swift    Swift    `toml:"swift"`
	Static   Static   `toml:"static"`
	Runner   Runner   `toml:"runner"`
	Redis    Redis    `toml:"redis"`
	IRC      IRC      `toml:"irc"`
	Mail     Mail     `toml:"mail"`
	Hookd    Hookd    `toml:"hookd"`
}

type SettingDef struct {
	Type string `toml:"type"`
}

type Database struct {
	User     string            `toml:"user"`
	Password string            `toml:"password"`
	Params   string            `toml:"params"`
	Global   string            `toml:"global"`
	Clusters map[string]string `toml:"clusters"`
}

type Swift struct {
	Enabled       bool     `toml:"enabled"`
	DisabledWikis []string `toml:"disabled_wikis"`
	AuthURL       string   `toml:"auth_url"`
	User          string   `toml:"user"`
	Key           string   `toml:"key"`
	Prefix        string   `toml:"prefix"`
	Binary        string   `toml:"binary"`
	Backend       string   `toml:"backend"`
	WorkDir       string   `toml:"work_dir"`
}

type Static struct {
	Root             string `toml:"root"`
	SocialProfileDir string `toml:"socialprofile_dir"`
}

type Runner struct {
	Mode       string `toml:"mode"`
	Host       string `toml:"host"`
	User       string `toml:"user"`
	KeyPath    string `toml:"key_path"`
	KnownHosts string `toml:"known_hosts"`
}

type Redis struct {
	JobQueue    string `toml:"jobqueue"`
	ObjectCache string `toml:"object_cache"`
	Password    string `toml:"password"`
}

type IRC struct {
	UseRCPatrol     bool     `toml:"use_rc_patrol"`
	UseNPPatrol     bool     `toml:"use_np_patrol"`
	LocalInterwikis []string `toml:"local_interwikis"`
	CanonicalServer string   `toml:"canonical_server"`
	Script          string   `toml:"script"`
	Feeds           []Feed   `toml:"feeds"`
}

// Feed is one UDP recent-changes destination. InterwikiPrefix is "" for no
// prefix, "true" for the first local interwiki, or a literal prefix.
type Feed struct {
	Addr            string `toml:"addr"`
	InterwikiPrefix string `toml:"interwiki_prefix"`
}

type Mail struct {
	SMTPAddr string `toml:"smtp_addr"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Hookd struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

// Secrets are read from the environment and override file values when set.
type Secrets struct {
	DBPassword    string `env:"MAGICCTL_DB_PASSWORD"`
	SwiftKey      string `env:"MAGICCTL_SWIFT_KEY"`
	RedisPassword string `env:"MAGICCTL_REDIS_PASSWORD"`
	SMTPPassword  string `env:"MAGICCTL_SMTP_PASSWORD"`
	HookdToken    string `env:"MAGICCTL_HOOKD_TOKEN"`
}

// Default returns the built-in farm defaults.
func Default() Farm {
	return Farm{
		DatabaseSuffix: "wiki",
		GlobalDatabase: "mhglobal",
		EchoDatabase:   "metawiki",
		StaffWiki:      "staffwiki",
		Domain:         "miraheze.org",
		StaticHost:     "static.miraheze.org",
		LanguageCode:   "en",
		InstallPath:    "/srv/mediawiki/w",
		CacheDirectory: "/srv/mediawiki/cache",
		Swift: Swift{
			Prefix:  "miraheze",
			Binary:  "swift",
			Backend: BackendCLI,
			WorkDir: os.TempDir(),
		},
		Static: Static{
			Root:             "/mnt/mediawiki-static",
			SocialProfileDir: "/srv/mediawiki/w/extensions/SocialProfile",
		},
		Runner: Runner{Mode: RunnerLocal},
		IRC: IRC{
			Script: "/w/index.php",
		},
		Hookd: Hookd{Addr: "127.0.0.1:9400"},
	}
}

// Load reads a farm config file, overlays environment secrets and validates.
func Load(path string) (Farm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Farm{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML on top of Default and validates the result.
func Parse(data []byte) (Farm, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Farm{}, fmt.Errorf("config parse failed: %w", err)
	}
	if err := ApplySecrets(&cfg); err != nil {
		return Farm{}, err
	}
	if cfg.Database.Global == "" {
		cfg.Database.Global = firstCluster(cfg.Database.Clusters)
	}
	if err := Validate(cfg); err != nil {
		return Farm{}, err
	}
	return cfg, nil
}

// ApplySecrets overlays non-empty environment secrets onto cfg.
func ApplySecrets(cfg *Farm) error {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	overlay(&cfg.Database.Password, s.DBPassword)
	overlay(&cfg.Swift.Key, s.SwiftKey)
	overlay(&cfg.Redis.Password, s.RedisPassword)
	overlay(&cfg.Mail.Password, s.SMTPPassword)
	overlay(&cfg.Hookd.Token, s.HookdToken)
	return nil
}

func overlay(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func Validate(cfg Farm) error {
	if strings.TrimSpace(cfg.DBName) == "" {
		return fmt.Errorf("%w: dbname is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.DatabaseSuffix) == "" {
		return fmt.Errorf("%w: database_suffix is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.GlobalDatabase) == "" {
		return fmt.Errorf("%w: global_database is required", ErrInvalidConfig)
	}
	if cfg.Swift.Enabled && strings.TrimSpace(cfg.Swift.AuthURL) == "" {
		return fmt.Errorf("%w: swift.auth_url is required when swift is enabled", ErrInvalidConfig)
	}
	switch cfg.Swift.Backend {
	case BackendCLI, BackendNative:
	default:
		return fmt.Errorf("%w: unknown swift.backend %q", ErrInvalidConfig, cfg.Swift.Backend)
	}
	switch cfg.Runner.Mode {
	case RunnerLocal:
	case RunnerSSH:
		if strings.TrimSpace(cfg.Runner.Host) == "" || strings.TrimSpace(cfg.Runner.User) == "" {
			return fmt.Errorf("%w: runner.host and runner.user are required for ssh", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown runner.mode %q", ErrInvalidConfig, cfg.Runner.Mode)
	}
	for name, def := range cfg.ManageWikiSettings {
		if strings.TrimSpace(def.Type) == "" {
			return fmt.Errorf("%w: managewiki setting %q missing type", ErrInvalidConfig, name)
		}
	}
	for i, feed := range cfg.IRC.Feeds {
		if strings.TrimSpace(feed.Addr) == "" {
			return fmt.Errorf("%w: irc.feeds[%d] missing addr", ErrInvalidConfig, i)
		}
	}
	return nil
}

// SwiftEnabledFor reports whether the wiki's media lives in object storage.
func (f Farm) SwiftEnabledFor(dbname string) bool {
	if !f.Swift.Enabled {
		return false
	}
	return !slices.Contains(f.Swift.DisabledWikis, dbname)
}

// DatabaseSettings returns the ManageWiki settings of type database, sorted.
func (f Farm) DatabaseSettings() []string {
	out := make([]string, 0, len(f.ManageWikiSettings))
	for name, def := range f.ManageWikiSettings {
		if def.Type == SettingTypeDatabase {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// IsStaffAccount reports whether a central account id may read the staff wiki.
func (f Farm) IsStaffAccount(id int64) bool {
	return slices.Contains(f.StaffAccessIDs, id)
}

func firstCluster(clusters map[string]string) string {
	if len(clusters) == 0 {
		return ""
	}
	names := make([]string, 0, len(clusters))
	for name := range clusters {
		names = append(names, name)
	}
	slices.Sort(names)
	return clusters[names[0]]
}
