package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/hooks"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/testutil/sqltest"
	"github.com/danmuck/magicctl/internal/testutil/swifttest"
	"github.com/danmuck/magicctl/internal/testutil/testlog"
	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/gin-gonic/gin"
)

const testToken = "hook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDatabases struct {
	s *store.Store
}

func (d fakeDatabases) Global(context.Context) (*store.Store, error) { return d.s, nil }

func (d fakeDatabases) Database(context.Context, string) (*store.Store, error) { return d.s, nil }

type noopRunner struct{}

func (noopRunner) Run(context.Context, string, ...string) ([]byte, []byte, int32, error) {
	return nil, nil, 1, errors.New("exit status 1")
}

type fakeMessages struct{}

func (fakeMessages) PageExists(string, string) bool { return false }

func (fakeMessages) Text(string) (string, bool) { return "", false }

type fakeMailer struct {
	to []string
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.to = append(m.to, to)
	return nil
}

type fakePublisher struct {
	lines []string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, rc wiki.RecentChange, actionComment string) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.lines = append(p.lines, rc.Title.PrefixedText()+" "+actionComment)
	return 1, nil
}

type fixture struct {
	server    *Server
	backend   *swifttest.Backend
	db        *store.Store
	mailer    *fakeMailer
	publisher *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqltest.Open(t,
		`INSERT INTO echo_unread_wikis (euw_user, euw_wiki) VALUES (1, 'oldwiki')`,
		`INSERT INTO magic_log_emails (le_user, le_email, le_log_type) VALUES ('Example', 'a@example.org', NULL)`,
	)
	cfg := config.Default()
	cfg.DBName = "metawiki"
	cfg.CacheDirectory = t.TempDir()
	cfg.Swift.Enabled = true
	cfg.Swift.AuthURL = "https://swift.example.org/auth/v1.0"

	backend := swifttest.New()
	backend.Put("miraheze-oldwiki-local-public", "a/ab/Logo.png", []byte("logo"))
	backend.Put("miraheze-oldwiki-local-thumb", "a/ab/Logo.png/120px-Logo.png", []byte("thumb"))
	backend.Put("miraheze-otherwiki-local-public", "b/bc/Other.png", []byte("other"))

	mailer := &fakeMailer{}
	h := hooks.New(cfg, hooks.Deps{
		Runner:   noopRunner{},
		DB:       fakeDatabases{db},
		Swift:    swift.NewManager(backend, cfg.Swift.Prefix),
		Messages: fakeMessages{},
		Mailer:   mailer,
	})
	publisher := &fakePublisher{}
	return &fixture{
		server:    New(h, publisher, Config{Token: testToken}),
		backend:   backend,
		db:        db,
		mailer:    mailer,
		publisher: publisher,
	}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.server.HTTPRouter().ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s: %v body=%s", method, path, err, rr.Body.String())
		}
	}
	return rr, decoded
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	rr, body := f.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["wiki"] != "metawiki" {
		t.Fatalf("unexpected health: %d %v", rr.Code, body)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}

	rr, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "magicctl_http_requests_total") {
		t.Fatalf("unexpected metrics response: %d", rr.Code)
	}
}

func TestHooksRequireToken(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	for _, token := range []string{"", "wrong"} {
		rr, _ := f.do(t, http.MethodPost, "/hooks/message", `{"key":"uploadtext"}`, token)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rr.Code)
		}
	}

	open := New(hooks.New(config.Default(), hooks.Deps{}), nil, Config{})
	req := httptest.NewRequest(http.MethodPost, "/hooks/message", strings.NewReader(`{"key":"uploadtext"}`))
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	open.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("an empty server token must deny, got %d", rr.Code)
	}
}

func TestCreateWikiDeletionRoute(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	rr, _ := f.do(t, http.MethodPost, "/hooks/createwiki/deletion", `{"dbname":`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
	rr, _ = f.do(t, http.MethodPost, "/hooks/createwiki/deletion", `{}`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without dbname, got %d", rr.Code)
	}

	rr, body := f.do(t, http.MethodPost, "/hooks/createwiki/deletion", `{"dbname":"oldwiki"}`, testToken)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected deletion response: %d %v", rr.Code, body)
	}
	if f.backend.Has("miraheze-oldwiki-local-public") || !f.backend.Has("miraheze-otherwiki-local-public") {
		t.Fatalf("unexpected containers: %v", f.backend.Containers())
	}
	if n := sqltest.Count(t, f.db, "SELECT COUNT(*) FROM echo_unread_wikis"); n != 0 {
		t.Fatalf("echo rows left: %d", n)
	}
}

func TestCreateWikiRenameRoute(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	rr, body := f.do(t, http.MethodPost, "/hooks/createwiki/rename", `{"old":"oldwiki","new":"newwiki"}`, testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected rename response: %d %v", rr.Code, body)
	}
	report, ok := body["report"].(map[string]any)
	if !ok {
		t.Fatalf("missing report: %v", body)
	}
	renamed, _ := report["renamed"].([]any)
	if len(renamed) != 2 {
		t.Fatalf("expected two renamed containers: %v", report)
	}
	if !f.backend.Has("miraheze-newwiki-local-thumb") {
		t.Fatalf("container not renamed: %v", f.backend.Containers())
	}
}

func TestRecentChangeRoute(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	payload := `{"rc":{"rc_type":3,"title":{"namespace":0,"text":"Main_Page"},"rc_user_text":"Example",
		"rc_log_type":"delete","rc_log_action":"delete","rc_comment_text":"spam"},"action_comment":"deleted page"}`

	rr, body := f.do(t, http.MethodPost, "/hooks/recentchange", payload, testToken)
	if rr.Code != http.StatusOK || body["feeds"] != float64(1) || body["emails"] != float64(1) {
		t.Fatalf("unexpected recent change response: %d %v", rr.Code, body)
	}
	if len(f.publisher.lines) != 1 || f.publisher.lines[0] != "Main Page deleted page" {
		t.Fatalf("unexpected feed lines: %v", f.publisher.lines)
	}
	if len(f.mailer.to) != 1 || f.mailer.to[0] != "a@example.org" {
		t.Fatalf("unexpected mails: %v", f.mailer.to)
	}

	f.publisher.err = errors.New("feed down")
	rr, body = f.do(t, http.MethodPost, "/hooks/recentchange", payload, testToken)
	if rr.Code != http.StatusBadGateway || body["emails"] != float64(1) {
		t.Fatalf("feed failure should still send mail: %d %v", rr.Code, body)
	}
}

func TestLinkRedirectAndMessageRoutes(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	rr, body := f.do(t, http.MethodPost, "/hooks/link", `{"target":"mh:Meta:Community portal","text":"mh:Meta:Community portal"}`, testToken)
	link, _ := body["link"].(map[string]any)
	if rr.Code != http.StatusOK || body["handled"] != true || link["href"] != "https://meta.miraheze.org/wiki/Community_portal" {
		t.Fatalf("unexpected link response: %d %v", rr.Code, body)
	}
	_, body = f.do(t, http.MethodPost, "/hooks/link", `{"target":"Main Page"}`, testToken)
	if body["handled"] != false {
		t.Fatalf("local links should not be handled: %v", body)
	}

	_, body = f.do(t, http.MethodPost, "/hooks/redirect", `{"title":"mh:meta:Stewards' noticeboard"}`, testToken)
	if body["redirect"] != true || body["target"] != "https://meta.miraheze.org/wiki/Stewards%27_noticeboard" {
		t.Fatalf("unexpected redirect response: %v", body)
	}

	_, body = f.do(t, http.MethodPost, "/hooks/message", `{"key":"uploadtext"}`, testToken)
	if body["key"] != "miraheze-uploadtext" {
		t.Fatalf("unexpected message response: %v", body)
	}

	_, body = f.do(t, http.MethodPost, "/hooks/abusefilter", `{"vars":{"action":"autocreateaccount"}}`, testToken)
	if body["filter"] != false {
		t.Fatalf("autocreate should not be filtered: %v", body)
	}

	_, body = f.do(t, http.MethodPost, "/hooks/sitenotice", `{"notice":"","state":{"closed":true}}`, testToken)
	if notice, _ := body["notice"].(string); !strings.Contains(notice, "miraheze-sitenotice-closed") {
		t.Fatalf("unexpected site notice: %v", body)
	}
}

func TestGlobalUserPageRoute(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/hooks/globaluserpage", "", "")
	if body["enabled"] != false {
		t.Fatalf("missing cache should disable: %v", body)
	}

	dir := f.server.hooks.Config().CacheDirectory
	data := `{"combi":{"testwiki":{},"metawiki":{}}}`
	if err := os.WriteFile(filepath.Join(dir, "databases.json"), []byte(data), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	_, body = f.do(t, http.MethodGet, "/hooks/globaluserpage", "", "")
	wikis, _ := body["wikis"].([]any)
	if body["enabled"] != true || len(wikis) != 2 || wikis[0] != "metawiki" {
		t.Fatalf("unexpected wikis: %v", body)
	}
}
