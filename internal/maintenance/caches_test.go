package maintenance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/danmuck/magicctl/internal/cache"
	"github.com/danmuck/magicctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRebuildVersionCache(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	manifests := []string{
		filepath.Join(root, "extensions/CreateWiki/extension.json"),
		filepath.Join(root, "extensions/SocialProfile/extension.json"),
		filepath.Join(root, "extensions/SocialProfile/UserBoard/extension.json"),
		filepath.Join(root, "skins/Vector/skin.json"),
		filepath.Join(root, "skins/Citizen/skins/skin.json"),
	}
	for _, m := range manifests {
		writeFile(t, m, `{"manifest_version": 2}`)
	}
	writeFile(t, filepath.Join(root, "extensions/README"), "not a manifest")

	cfg := testFarm()
	cfg.InstallPath = root
	createWiki := filepath.Join(root, "extensions/CreateWiki")
	runner := &scriptedRunner{out: map[string]string{
		"git -C " + root + " rev-parse HEAD":                    "coresha",
		"git -C " + createWiki + " rev-parse HEAD":              "cwsha",
		"git -C " + createWiki + " rev-parse --abbrev-ref HEAD": "main",
	}}
	client := &fakeCacheClient{}
	env, out := newEnv(cfg, nil)
	env.LocalRunner = runner
	env.Cache = cache.NewObjectCache(client)

	script := &RebuildVersionCache{SaveGitInfo: true}
	if err := script.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(client.deleted) != len(manifests) {
		t.Fatalf("expected %d keys deleted, got %v", len(manifests), client.deleted)
	}
	want := cache.MakeKey("testwiki", "specialversion-ext-version-text", manifests[0], "coresha")
	if !slices.Contains(client.deleted, want) {
		t.Fatalf("missing key %q in %v", want, client.deleted)
	}

	data, err := os.ReadFile(filepath.Join(createWiki, "gitinfo.json"))
	if err != nil {
		t.Fatalf("gitinfo not written: %v", err)
	}
	var info gitInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("decode gitinfo: %v", err)
	}
	if info.HeadSHA1 != "cwsha" || info.Branch != "main" || info.Head != "refs/heads/main" {
		t.Fatalf("unexpected gitinfo: %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "skins/Vector/gitinfo.json")); !os.IsNotExist(err) {
		t.Fatalf("non-git skin should not get gitinfo: %v", err)
	}
	if out.String() != "Purged version cache for 5 extensions and skins.\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRebuildVersionCacheWithoutCoreSHA(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	manifest := filepath.Join(root, "skins/Vector/skin.json")
	writeFile(t, manifest, `{"manifest_version": 2}`)

	cfg := testFarm()
	cfg.InstallPath = root
	client := &fakeCacheClient{}
	env, out := newEnv(cfg, nil)
	runner := &scriptedRunner{}
	env.LocalRunner = runner
	env.Cache = cache.NewObjectCache(client)

	if err := (&RebuildVersionCache{}).Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(runner.calls, []string{"git -C " + root + " rev-parse HEAD"}) {
		t.Fatalf("unexpected local commands: %v", runner.calls)
	}
	want := cache.MakeKey("testwiki", "specialversion-ext-version-text", manifest, "")
	if !slices.Equal(client.deleted, []string{want}) {
		t.Fatalf("unexpected keys deleted: %v", client.deleted)
	}
	if out.String() != "Purged version cache for 1 extensions and skins.\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestResetWikiCaches(t *testing.T) {
	testlog.Start(t)
	cfg := testFarm()
	cfg.CacheDirectory = t.TempDir()
	cacheFile := filepath.Join(cfg.CacheDirectory, "testwiki.json")
	writeFile(t, cacheFile, "{}")
	client := &fakeCacheClient{}
	env, out := newEnv(cfg, nil)
	env.Cache = cache.NewObjectCache(client)

	if err := (&ResetWikiCaches{}).Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(cacheFile); !os.IsNotExist(err) {
		t.Fatalf("cache file should be removed: %v", err)
	}
	if got := client.set["CreateWiki:testwiki"]; got != int64(1700000000) {
		t.Fatalf("cache key not bumped: %v", client.set)
	}
	if out.String() != "Reset caches for testwiki.\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}

	// A second run without the file still succeeds.
	if err := (&ResetWikiCaches{}).Run(context.Background(), env); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
