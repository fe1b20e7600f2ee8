// Package farm wires the external services of one farm configuration into
// the hook handler and the maintenance environment.
package farm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/magicctl/internal/cache"
	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/hooks"
	"github.com/danmuck/magicctl/internal/ircfeed"
	"github.com/danmuck/magicctl/internal/maintenance"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/tools"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sshTimeout = 15 * time.Second

// Services holds the connections opened for one process.
type Services struct {
	Config      config.Farm
	Pool        *store.Pool
	Runner      tools.CommandRunner
	Swift       swift.Backend
	Manager     *swift.Manager
	Purger      *cache.Purger
	ObjectCache *cache.ObjectCache

	clients []*redis.Client
}

// Open builds every service cfg describes. Nothing dials until first use.
func Open(ctx context.Context, cfg config.Farm) (*Services, error) {
	s := &Services{
		Config: cfg,
		Pool:   store.NewPool(cfg, nil),
		Runner: NewRunner(cfg.Runner),
	}

	if cfg.Swift.Enabled {
		s.Swift = NewSwiftBackend(cfg.Swift)
		s.Manager = swift.NewManager(s.Swift, cfg.Swift.Prefix)
	}

	if cfg.Redis.JobQueue != "" {
		client, err := cache.Connect(ctx, cfg.Redis.JobQueue, cfg.Redis.Password)
		if err != nil {
			return nil, fmt.Errorf("jobqueue redis: %w", err)
		}
		s.clients = append(s.clients, client)
		s.Purger = cache.NewPurger(client)
	}
	if cfg.Redis.ObjectCache != "" {
		client, err := cache.Connect(ctx, cfg.Redis.ObjectCache, cfg.Redis.Password)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("object cache redis: %w", err)
		}
		s.clients = append(s.clients, client)
		s.ObjectCache = cache.NewObjectCache(client)
	}
	return s, nil
}

// NewRunner returns the command runner for the static media host.
func NewRunner(cfg config.Runner) tools.CommandRunner {
	if cfg.Mode != config.RunnerSSH {
		return tools.ExecRunner{}
	}
	return tools.SSHRunner{
		Host:           cfg.Host,
		User:           cfg.User,
		KeyPath:        cfg.KeyPath,
		KnownHostsPath: cfg.KnownHosts,
		Timeout:        sshTimeout,
	}
}

// NewSwiftBackend picks the CLI or the native client. The native client still
// lists containers through the CLI.
func NewSwiftBackend(cfg config.Swift) swift.Backend {
	cli := swift.NewCLI(cfg, tools.ExecRunner{})
	if cfg.Backend == config.BackendNative {
		return swift.NewNative(cfg, cli)
	}
	return cli
}

// Hooks builds a handler with the farm services plus the caller's message
// source and mailer.
func (s *Services) Hooks(messages hooks.Messages, mailer hooks.Mailer) *hooks.Handler {
	return hooks.New(s.Config, hooks.Deps{
		Runner:   s.Runner,
		DB:       s.Pool,
		Swift:    s.Manager,
		Purger:   s.Purger,
		Messages: messages,
		Mailer:   mailer,
	})
}

// Mailer returns the SMTP mailer, or nil when mail is not configured.
func (s *Services) Mailer() hooks.Mailer {
	if s.Config.Mail.SMTPAddr == "" {
		return nil
	}
	m, err := hooks.NewSMTPMailer(s.Config.Mail)
	if err != nil {
		log.Warn().Err(err).Msg("log email disabled")
		return nil
	}
	return m
}

// Clusters lists the database clusters as maintenance clusters.
func (s *Services) Clusters(ctx context.Context) ([]maintenance.Cluster, error) {
	clusters, err := s.Pool.Clusters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]maintenance.Cluster, len(clusters))
	for i, c := range clusters {
		out[i] = c
	}
	return out, nil
}

// Groups resolves global groups from the CentralAuth database.
func (s *Services) Groups() ircfeed.GroupLookup {
	return centralGroups{pool: s.Pool, dbname: s.Config.CentralAuthDatabase}
}

// Env builds the maintenance environment for one script run.
func (s *Services) Env(out io.Writer, in io.Reader) *maintenance.Env {
	return &maintenance.Env{
		Out:      out,
		In:       in,
		Config:   s.Config,
		DB:       s.Pool,
		Clusters: s.Clusters,
		Swift:    s.Swift,
		Hooks:    s.Hooks(nil, s.Mailer()),
		Cache:    s.ObjectCache,

		LocalRunner: tools.ExecRunner{},
	}
}

func (s *Services) Close() error {
	var errs []error
	for _, c := range s.clients {
		errs = append(errs, c.Close())
	}
	if s.Pool != nil {
		errs = append(errs, s.Pool.Close())
	}
	return errors.Join(errs...)
}

type centralGroups struct {
	pool   *store.Pool
	dbname string
}

func (g centralGroups) GlobalGroups(ctx context.Context, name string) ([]string, error) {
	if g.dbname == "" {
		return nil, nil
	}
	central, err := g.pool.Database(ctx, g.dbname)
	if err != nil {
		return nil, err
	}
	return central.GlobalGroups(ctx, name)
}
