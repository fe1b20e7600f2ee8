package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/magicctl/internal/config"
)

// Opener opens a handle for dbname on host. An empty dbname is a
// server-level handle.
type Opener func(ctx context.Context, host, dbname string) (*Store, error)

// MySQLOpener builds DSNs from cfg and opens them with Open.
func MySQLOpener(cfg config.Database) Opener {
	return func(ctx context.Context, host, dbname string) (*Store, error) {
		dsn, err := DSN(cfg, host, dbname)
		if err != nil {
			return nil, err
		}
		return Open(ctx, dsn)
	}
}

// Pool caches handles by host and database.
type Pool struct {
	cfg  config.Farm
	open Opener

	mu     sync.Mutex
	stores map[string]*Store
}

func NewPool(cfg config.Farm, open Opener) *Pool {
	if open == nil {
		open = MySQLOpener(cfg.Database)
	}
	return &Pool{cfg: cfg, open: open, stores: make(map[string]*Store)}
}

// Database returns a handle on dbname on the global cluster host.
func (p *Pool) Database(ctx context.Context, dbname string) (*Store, error) {
	return p.get(ctx, p.cfg.Database.Global, dbname)
}

// Global is the CreateWiki registry database.
func (p *Pool) Global(ctx context.Context) (*Store, error) {
	return p.Database(ctx, p.cfg.GlobalDatabase)
}

// Wiki returns a handle on a wiki database, located through its registry cluster.
func (p *Pool) Wiki(ctx context.Context, dbname string) (*Store, error) {
	global, err := p.Global(ctx)
	if err != nil {
		return nil, err
	}
	host := p.cfg.Database.Global
	w, err := global.GetWiki(ctx, dbname)
	switch {
	case err == nil:
		if h, ok := p.cfg.Database.Clusters[w.Cluster]; ok {
			host = h
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	return p.get(ctx, host, dbname)
}

// Clusters returns server-level handles for every configured cluster, by name.
func (p *Pool) Clusters(ctx context.Context) ([]*Cluster, error) {
	names := make([]string, 0, len(p.cfg.Database.Clusters))
	for name := range p.cfg.Database.Clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Cluster, 0, len(names))
	for _, name := range names {
		s, err := p.get(ctx, p.cfg.Database.Clusters[name], "")
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", name, err)
		}
		out = append(out, NewCluster(name, s))
	}
	return out, nil
}

func (p *Pool) get(ctx context.Context, host, dbname string) (*Store, error) {
	key := host + "/" + dbname
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.stores[key]; ok {
		return s, nil
	}
	s, err := p.open(ctx, host, dbname)
	if err != nil {
		return nil, err
	}
	p.stores[key] = s
	return s, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for key, s := range p.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(p.stores, key)
	}
	return errors.Join(errs...)
}
