package farm

import (
	"bytes"
	"context"
	"slices"
	"testing"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/testutil/sqltest"
	"github.com/danmuck/magicctl/internal/testutil/testlog"
	"github.com/danmuck/magicctl/internal/tools"
)

func TestNewRunner(t *testing.T) {
	testlog.Start(t)
	if _, ok := NewRunner(config.Runner{Mode: config.RunnerLocal}).(tools.ExecRunner); !ok {
		t.Fatalf("local mode should run commands locally")
	}
	r, ok := NewRunner(config.Runner{Mode: config.RunnerSSH, Host: "static.example.org", User: "deploy", KnownHosts: "/etc/ssh/known_hosts"}).(tools.SSHRunner)
	if !ok {
		t.Fatalf("ssh mode should return an SSHRunner")
	}
	if r.Host != "static.example.org" || r.KnownHostsPath != "/etc/ssh/known_hosts" || r.Timeout != sshTimeout {
		t.Fatalf("unexpected ssh runner: %+v", r)
	}
}

func TestNewSwiftBackend(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default().Swift
	cfg.AuthURL = "https://swift.example.org/auth/v1.0"
	if _, ok := NewSwiftBackend(cfg).(*swift.CLI); !ok {
		t.Fatalf("cli backend expected")
	}
	cfg.Backend = config.BackendNative
	if _, ok := NewSwiftBackend(cfg).(*swift.Native); !ok {
		t.Fatalf("native backend expected")
	}
}

func TestOpenWiresOptionalServices(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := config.Default()
	cfg.DBName = "testwiki"

	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Swift != nil || s.Manager != nil || s.Purger != nil || s.ObjectCache != nil {
		t.Fatalf("disabled services should stay nil: %+v", s)
	}
	if s.Mailer() != nil {
		t.Fatalf("mailer should be nil without smtp")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cfg.Swift.Enabled = true
	cfg.Swift.AuthURL = "https://swift.example.org/auth/v1.0"
	cfg.Redis.JobQueue = "127.0.0.1:6379"
	cfg.Redis.ObjectCache = "redis://127.0.0.1:6380/0"
	cfg.Mail = config.Mail{SMTPAddr: "mail.example.org:25", From: "noreply@example.org"}
	s, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if s.Manager == nil || s.Purger == nil || s.ObjectCache == nil || len(s.clients) != 2 {
		t.Fatalf("expected swift and redis services: %+v", s)
	}
	if s.Mailer() == nil {
		t.Fatalf("expected an smtp mailer")
	}

	var out bytes.Buffer
	env := s.Env(&out, nil)
	if env.Wiki() != "testwiki" || env.Hooks == nil || env.Cache != s.ObjectCache || env.Swift == nil {
		t.Fatalf("unexpected env: %+v", env)
	}
}

func TestOpenRejectsBadRedisURL(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Redis.ObjectCache = "redis://[::1"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected redis url error")
	}
}

func TestGroupsReadCentralAuth(t *testing.T) {
	testlog.Start(t)
	central := sqltest.Open(t,
		`INSERT INTO globaluser (gu_id, gu_name) VALUES (1, 'Example')`,
		`INSERT INTO global_user_groups (gug_user, gug_group) VALUES (1, 'steward'), (1, 'global-rollbacker')`,
	)
	cfg := config.Default()
	cfg.CentralAuthDatabase = "centralauth"
	opener := func(_ context.Context, _, dbname string) (*store.Store, error) {
		if dbname != "centralauth" {
			t.Fatalf("unexpected database %q", dbname)
		}
		return central, nil
	}
	s := &Services{Config: cfg, Pool: store.NewPool(cfg, opener)}
	groups, err := s.Groups().GlobalGroups(context.Background(), "Example")
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if !slices.Equal(groups, []string{"global-rollbacker", "steward"}) {
		t.Fatalf("unexpected groups: %v", groups)
	}

	cfg.CentralAuthDatabase = ""
	s = &Services{Config: cfg, Pool: store.NewPool(cfg, opener)}
	if groups, err := s.Groups().GlobalGroups(context.Background(), "Example"); groups != nil || err != nil {
		t.Fatalf("no central database should mean no groups: %v %v", groups, err)
	}
}

func TestEnvRunsLocalCommandsLocally(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.DBName = "testwiki"
	cfg.Runner = config.Runner{Mode: config.RunnerSSH, Host: "static.example.org", User: "deploy"}
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok := s.Runner.(tools.SSHRunner); !ok {
		t.Fatalf("static host runner should be ssh, got %T", s.Runner)
	}
	if _, ok := s.Env(nil, nil).LocalRunner.(tools.ExecRunner); !ok {
		t.Fatalf("maintenance env must run local commands on this host")
	}
}
