// Package sqltest opens throwaway SQLite databases carrying the slice of the
// wiki host schema the store touches.
package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/danmuck/magicctl/internal/store"
	_ "modernc.org/sqlite"
)

const Schema = `
CREATE TABLE cw_wikis (
	wiki_dbname TEXT PRIMARY KEY,
	wiki_dbcluster TEXT,
	wiki_sitename TEXT,
	wiki_language TEXT,
	wiki_private INTEGER DEFAULT 0,
	wiki_closed INTEGER DEFAULT 0,
	wiki_deleted INTEGER DEFAULT 0,
	wiki_locked INTEGER DEFAULT 0,
	wiki_inactive INTEGER DEFAULT 0,
	wiki_inactive_exempt INTEGER DEFAULT 0,
	wiki_url TEXT,
	wiki_settings TEXT
);
CREATE TABLE echo_unread_wikis (euw_user INTEGER, euw_wiki TEXT);
CREATE TABLE mw_settings (s_dbname TEXT PRIMARY KEY, s_settings TEXT, s_extensions TEXT);
CREATE TABLE mw_namespaces (
	ns_dbname TEXT, ns_namespace_id INTEGER, ns_namespace_name TEXT, ns_searchable INTEGER,
	ns_subpages INTEGER, ns_content INTEGER, ns_content_model TEXT, ns_protection TEXT,
	ns_aliases TEXT, ns_core INTEGER, ns_additional TEXT
);
CREATE TABLE mw_permissions (
	perm_dbname TEXT, perm_group TEXT, perm_permissions TEXT, perm_addgroups TEXT,
	perm_removegroups TEXT, perm_addgroupstoself TEXT, perm_removegroupsfromself TEXT,
	perm_autopromote TEXT
);
CREATE TABLE gnf_files (files_dbname TEXT, files_name TEXT);
CREATE TABLE localnames (ln_wiki TEXT, ln_name TEXT);
CREATE TABLE localuser (lu_wiki TEXT, lu_name TEXT);
CREATE TABLE actor (actor_id INTEGER PRIMARY KEY, actor_user INTEGER, actor_name TEXT UNIQUE);
CREATE TABLE user (user_id INTEGER PRIMARY KEY, user_name TEXT UNIQUE, user_email TEXT, user_real_name TEXT);
CREATE TABLE page (page_id INTEGER PRIMARY KEY, page_namespace INTEGER, page_title TEXT);
CREATE TABLE image (img_name TEXT, img_actor INTEGER);
CREATE TABLE revision_actor_temp (revactor_rev INTEGER, revactor_actor INTEGER, revactor_page INTEGER);
CREATE TABLE recentchanges (rc_id INTEGER PRIMARY KEY, rc_actor INTEGER, rc_ip TEXT);
CREATE TABLE logging (log_id INTEGER PRIMARY KEY, log_type TEXT, log_action TEXT, log_title TEXT);
CREATE TABLE globaluser (gu_id INTEGER PRIMARY KEY, gu_name TEXT UNIQUE, gu_email TEXT, gu_locked INTEGER DEFAULT 0);
CREATE TABLE global_user_groups (gug_user INTEGER, gug_group TEXT);
CREATE TABLE magic_log_emails (le_user TEXT, le_email TEXT, le_log_type TEXT);
`

var seq atomic.Int64

// Open returns a store on a fresh database with Schema plus extra statements.
func Open(t *testing.T, extra ...string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("db%d.sqlite", seq.Add(1)))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	Exec(t, db, Schema)
	for _, stmt := range extra {
		Exec(t, db, stmt)
	}
	return store.New(db, store.SQLite, strings.TrimSuffix(filepath.Base(path), ".sqlite"))
}

// Exec runs semicolon separated statements.
func Exec(t *testing.T, db *sql.DB, script string) {
	t.Helper()
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q: %v", strings.TrimSpace(stmt), err)
		}
	}
}

// Count returns the row count of a query.
func Count(t *testing.T, s *store.Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// Scalar returns the single string result of a query.
func Scalar(t *testing.T, s *store.Store, query string, args ...any) string {
	t.Helper()
	var v sql.NullString
	if err := s.DB().QueryRowContext(context.Background(), query, args...).Scan(&v); err != nil {
		t.Fatalf("scalar %q: %v", query, err)
	}
	return v.String
}
