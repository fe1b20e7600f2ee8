package ircfeed

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/testutil/testlog"
	"github.com/danmuck/magicctl/internal/wiki"
)

type fakeGroups map[string][]string

func (g fakeGroups) GlobalGroups(_ context.Context, name string) ([]string, error) {
	if name == "Broken" {
		return nil, errors.New("db down")
	}
	return g[name], nil
}

func intp(v int) *int { return &v }

func testConfig() config.IRC {
	return config.IRC{
		UseRCPatrol:     false,
		UseNPPatrol:     true,
		LocalInterwikis: []string{"meta"},
		CanonicalServer: "https://meta.miraheze.org",
		Script:          "/w/index.php",
	}
}

func TestLineEdit(t *testing.T) {
	testlog.Start(t)
	f := NewFormatter(testConfig(), nil)
	rc := wiki.RecentChange{
		ID:        99,
		Type:      wiki.ChangeEdit,
		Title:     wiki.Title{Namespace: wiki.NSMain, Text: "Main_Page"},
		UserText:  "Example",
		Comment:   "fix &amp; tidy\nline",
		ThisOldID: 12,
		LastOldID: 11,
		OldLen:    intp(100),
		NewLen:    intp(150),
		Minor:     true,
	}
	line, ok := f.Line(context.Background(), config.Feed{}, rc, "")
	if !ok {
		t.Fatalf("edit should be broadcast")
	}
	want := "\x0314[[\x0307Main Page\x0314]]\x034 M\x0310 \x0302https://meta.miraheze.org/w/index.php?diff=12&oldid=11\x03 \x035*\x03 \x0303Example\x03 \x035*\x03 (+50) \x0310fix & tidy line\x03\n"
	if line != want {
		t.Fatalf("unexpected line\nwant: %q\ngot:  %q", want, line)
	}
}

func TestLineNewPagePatrolled(t *testing.T) {
	testlog.Start(t)
	f := NewFormatter(testConfig(), nil)
	rc := wiki.RecentChange{
		ID:        5,
		Type:      wiki.ChangeNew,
		Title:     wiki.Title{Namespace: 2, NamespaceName: "User", Text: "Example"},
		UserText:  "Example",
		ThisOldID: 3,
		Bot:       true,
	}
	line, ok := f.Line(context.Background(), config.Feed{InterwikiPrefix: "true"}, rc, "")
	if !ok {
		t.Fatalf("new page should be broadcast")
	}
	if !strings.HasPrefix(line, "\x0314[[\x0303meta:\x0307User:Example\x0314]]\x034 !NB\x0310 ") {
		t.Fatalf("unexpected prefix/flags: %q", line)
	}
	if !strings.Contains(line, "index.php?oldid=3&rcid=5\x03") {
		t.Fatalf("expected new-page url with rcid: %q", line)
	}
	if !strings.Contains(line, "\x035*\x03  \x0310") {
		t.Fatalf("unknown lengths should render an empty size diff: %q", line)
	}
}

func TestLineLogEntry(t *testing.T) {
	testlog.Start(t)
	f := NewFormatter(testConfig(), fakeGroups{})
	rc := wiki.RecentChange{
		Type:      wiki.ChangeLog,
		Title:     wiki.Title{Namespace: 0, Text: "Sandbox"},
		UserText:  "Admin",
		LogType:   "delete",
		LogAction: "delete",
	}
	line, ok := f.Line(context.Background(), config.Feed{InterwikiPrefix: "mh"}, rc, "deleted [[Sandbox]]: spam")
	if !ok {
		t.Fatalf("log entry should be broadcast")
	}
	if !strings.HasPrefix(line, "\x0314[[\x0303mh:\x0307Special:Log/delete\x0314]]\x034 delete\x0310 \x0302\x03 ") {
		t.Fatalf("unexpected log prefix: %q", line)
	}
	if !strings.Contains(line, "deleted [[\x0302Sandbox\x0310]]: spam") {
		t.Fatalf("target should be highlighted: %q", line)
	}
}

func TestLineSuppressed(t *testing.T) {
	testlog.Start(t)
	f := NewFormatter(testConfig(), fakeGroups{"TS": {"steward", "trustandsafety"}})
	ctx := context.Background()

	if _, ok := f.Line(ctx, config.Feed{}, wiki.RecentChange{Type: wiki.ChangeCategorize}, ""); ok {
		t.Fatalf("categorize changes must be suppressed")
	}
	rename := wiki.RecentChange{Type: wiki.ChangeLog, LogType: "renameuser", LogAction: "renameuser", UserText: "TS"}
	if _, ok := f.Line(ctx, config.Feed{}, rename, ""); ok {
		t.Fatalf("trust and safety renames must be suppressed")
	}
	rename.UserText = "Steward"
	if _, ok := f.Line(ctx, config.Feed{}, rename, ""); !ok {
		t.Fatalf("other renames should be broadcast")
	}
	rename.UserText = "Broken"
	if _, ok := f.Line(ctx, config.Feed{}, rename, ""); !ok {
		t.Fatalf("lookup failures should not suppress")
	}
}

func TestSizeDiff(t *testing.T) {
	tests := []struct {
		old, new *int
		want     string
	}{
		{old: intp(10), new: intp(10), want: "(+0)"},
		{old: intp(1000), new: intp(900), want: "(-100)"},
		{old: intp(1000), new: intp(100), want: "(\x02-900\x02)"},
		{old: nil, new: intp(5), want: ""},
	}
	for _, tc := range tests {
		if got := SizeDiff(tc.old, tc.new); got != tc.want {
			t.Fatalf("SizeDiff() = %q want %q", got, tc.want)
		}
	}
}

func TestCleanupForIRC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "a&lt;b&#62;\r\nc", want: "a<b> c"},
		{in: "caf&eacute; &#x263A; &#X41;", want: "café ☺ A"},
		{in: "Tom &amp Jerry", want: "Tom &amp Jerry"},
		{in: "R&copy2023", want: "R&copy2023"},
		{in: "a &lt b", want: "a &lt b"},
		{in: "&ampx; &bogus; &#0; &#xD800;", want: "&ampx; &bogus; &#0; &#xD800;"},
		{in: "a&semi;b", want: "a;b"},
	}
	for _, tc := range tests {
		if got := CleanupForIRC(tc.in); got != tc.want {
			t.Fatalf("CleanupForIRC(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

type recordingEngine struct {
	sent map[string]string
	fail string
}

func (e *recordingEngine) Send(_ context.Context, addr, line string) error {
	if addr == e.fail {
		return errors.New("unreachable")
	}
	e.sent[addr] = line
	return nil
}

func TestPublisherFansOut(t *testing.T) {
	testlog.Start(t)
	engine := &recordingEngine{sent: map[string]string{}, fail: "down:5070"}
	p := NewPublisher(NewFormatter(testConfig(), nil), engine, []config.Feed{
		{Addr: "irc:5070"},
		{Addr: "relay:5070", InterwikiPrefix: "true"},
		{Addr: "down:5070"},
	})
	rc := wiki.RecentChange{Type: wiki.ChangeEdit, Title: wiki.Title{Text: "X"}, UserText: "U"}

	sent, err := p.Publish(context.Background(), rc, "")
	if sent != 2 || err == nil {
		t.Fatalf("expected two sends and one error, got %d %v", sent, err)
	}
	if !strings.Contains(engine.sent["relay:5070"], "meta:") {
		t.Fatalf("relay feed should carry the interwiki prefix")
	}
}

func TestUDPEngineSend(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	if err := (UDPEngine{}).Send(context.Background(), pc.LocalAddr().String(), "hello\n"); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello\n" {
		t.Fatalf("unexpected datagram: %q", buf[:n])
	}
}
