package maintenance

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/redis/go-redis/v9"
)

type fakeDatabases struct {
	global  *store.Store
	wiki    *store.Store
	central *store.Store
}

func (d fakeDatabases) Global(context.Context) (*store.Store, error) {
	return d.global, nil
}

func (d fakeDatabases) Database(_ context.Context, dbname string) (*store.Store, error) {
	if dbname == "centralauth" && d.central != nil {
		return d.central, nil
	}
	return d.global, nil
}

func (d fakeDatabases) Wiki(context.Context, string) (*store.Store, error) {
	if d.wiki != nil {
		return d.wiki, nil
	}
	return d.global, nil
}

type fakeCluster struct {
	name string
	dbs  []string
	err  error

	mu      sync.Mutex
	dropped []string
}

func (c *fakeCluster) Name() string {
	return c.name
}

func (c *fakeCluster) ListDatabases(_ context.Context, suffix string) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []string
	for _, db := range c.dbs {
		if strings.HasSuffix(db, suffix) {
			out = append(out, db)
		}
	}
	return out, nil
}

func (c *fakeCluster) DropDatabase(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, name)
	return nil
}

func clusterSource(clusters ...*fakeCluster) func(context.Context) ([]Cluster, error) {
	return func(context.Context) ([]Cluster, error) {
		out := make([]Cluster, len(clusters))
		for i, c := range clusters {
			out[i] = c
		}
		return out, nil
	}
}

// fakeCacheClient records deletes and sets.
type fakeCacheClient struct {
	deleted []string
	set     map[string]any
}

func (c *fakeCacheClient) Scan(_ context.Context, _ uint64, _ string, _ int64) *redis.ScanCmd {
	return redis.NewScanCmdResult(nil, 0, nil)
}

func (c *fakeCacheClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.deleted = append(c.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (c *fakeCacheClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if c.set == nil {
		c.set = map[string]any{}
	}
	c.set[key] = value
	return redis.NewStatusResult("OK", nil)
}

// scriptedRunner answers commands by their joined command line.
type scriptedRunner struct {
	out   map[string]string
	calls []string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	out, ok := r.out[line]
	if !ok {
		return nil, []byte("fatal: not a git repository"), 128, errors.New("exit status 128")
	}
	return []byte(out + "\n"), nil, 0, nil
}

func testFarm() config.Farm {
	cfg := config.Default()
	cfg.DBName = "testwiki"
	cfg.CentralAuthDatabase = "centralauth"
	return cfg
}

func newEnv(cfg config.Farm, db Databases) (*Env, *bytes.Buffer) {
	var out bytes.Buffer
	return &Env{
		Out:    &out,
		Config: cfg,
		DB:     db,
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
	}, &out
}
