package store

import (
	"strings"
	"testing"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/go-sql-driver/mysql"
)

func TestDSN(t *testing.T) {
	dsn, err := DSN(config.Database{
		User:     "mediawiki",
		Password: "secret",
		Params:   "parseTime=true&timeout=5s",
	}, "db151:3306", "metawiki")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse dsn %q: %v", dsn, err)
	}
	if parsed.User != "mediawiki" || parsed.Passwd != "secret" || parsed.Addr != "db151:3306" || parsed.DBName != "metawiki" {
		t.Fatalf("unexpected parsed dsn: %+v", parsed)
	}
	if !parsed.ParseTime {
		t.Fatalf("expected parseTime param to round trip: %q", dsn)
	}
}

func TestQuoteIdent(t *testing.T) {
	for _, name := range []string{"cw_wikis", "Comment_IP", "testwiki"} {
		if _, err := quoteIdent(name); err != nil {
			t.Fatalf("quoteIdent(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "a;b", "x`y", "db.table", strings.Repeat("a", 129)} {
		if _, err := quoteIdent(name); err == nil {
			t.Fatalf("quoteIdent(%q) should fail", name)
		}
	}
}

func TestAssignmentsAreSorted(t *testing.T) {
	clause, args, err := assignments(map[string]any{"b": 2, "a": 1, "c": 3}, " AND ")
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if clause != "`a` = ? AND `b` = ? AND `c` = ?" {
		t.Fatalf("unexpected clause: %q", clause)
	}
	if args[0] != 1 || args[2] != 3 {
		t.Fatalf("unexpected args: %v", args)
	}
	if _, _, err := conditions(nil); err == nil {
		t.Fatalf("empty where must be rejected")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike("my_wiki%"); got != `my\_wiki\%` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
