package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/danmuck/magicctl/internal/cache"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const versionTextKey = "specialversion-ext-version-text"

// manifestGlobs are relative to the install path.
var manifestGlobs = []string{
	"extensions/*/extension*.json",
	"extensions/SocialProfile/*/extension.json",
	"skins/*/skin.json",
	"skins/*/*/skin.json",
}

// RebuildVersionCache drops the cached Special:Version text of every
// installed extension and skin.
type RebuildVersionCache struct {
	noArgs
	SaveGitInfo bool
}

func (s *RebuildVersionCache) Metadata() Metadata {
	return Metadata{
		ID:          "rebuild-version-cache",
		Name:        "Rebuild version cache",
		Description: "Rebuild the version cache.",
	}
}

func (s *RebuildVersionCache) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.SaveGitInfo, "save-gitinfo", false, "Save gitinfo.json files")
}

func (s *RebuildVersionCache) Run(ctx context.Context, env *Env) error {
	if env.Cache == nil {
		return fmt.Errorf("%w: object cache", ErrMissing)
	}
	root := env.Config.InstallPath
	manifests, err := findManifests(root)
	if err != nil {
		return err
	}
	coreID, err := s.git(ctx, env, root, "rev-parse", "HEAD")
	if err != nil {
		log.Warn().Err(err).Str("path", root).Msg("core sha unavailable")
	}

	var errs []error
	for _, manifest := range manifests {
		if s.SaveGitInfo {
			if err := s.saveGitInfo(ctx, env, filepath.Dir(manifest)); err != nil {
				log.Warn().Err(err).Str("path", manifest).Msg("gitinfo not saved")
			}
		}
		key := cache.MakeKey(env.Wiki(), versionTextKey, manifest, coreID)
		if err := env.Cache.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	env.Printf("Purged version cache for %d extensions and skins.\n", len(manifests))
	return errors.Join(errs...)
}

func findManifests(root string) ([]string, error) {
	var out []string
	for _, pattern := range manifestGlobs {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// gitInfo is the precomputed repository state read by Special:Version.
type gitInfo struct {
	Head     string `json:"head"`
	HeadSHA1 string `json:"headSHA1"`
	Branch   string `json:"branch"`
}

func (s *RebuildVersionCache) saveGitInfo(ctx context.Context, env *Env, dir string) error {
	sha, err := s.git(ctx, env, dir, "rev-parse", "HEAD")
	if err != nil {
		return err
	}
	branch, err := s.git(ctx, env, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return err
	}
	info := gitInfo{HeadSHA1: sha, Branch: branch, Head: sha}
	if branch != "HEAD" {
		info.Head = "refs/heads/" + branch
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "gitinfo.json"), data, 0o644)
}

func (s *RebuildVersionCache) git(ctx context.Context, env *Env, dir string, args ...string) (string, error) {
	stdout, stderr, code, err := env.localRunner().Run(ctx, "git", append([]string{"-C", dir}, args...)...)
	if err != nil || code != 0 {
		return "", fmt.Errorf("git %s in %s failed (exit %d): %s", strings.Join(args, " "), dir, code, strings.TrimSpace(string(stderr)))
	}
	return strings.TrimSpace(string(stdout)), nil
}

// ResetWikiCaches drops the CreateWiki cache of the current wiki.
type ResetWikiCaches struct {
	noArgs
}

func (s *ResetWikiCaches) Metadata() Metadata {
	return Metadata{
		ID:          "reset-wiki-caches",
		Name:        "Reset wiki caches",
		Description: "Resets ManageWiki cache.",
	}
}

func (s *ResetWikiCaches) BindFlags(*pflag.FlagSet) {}

func (s *ResetWikiCaches) Run(ctx context.Context, env *Env) error {
	if err := resetWikiCache(ctx, env, env.Wiki()); err != nil {
		return err
	}
	env.Printf("Reset caches for %s.\n", env.Wiki())
	return nil
}

// resetWikiCache removes the wiki's cache file and bumps its cache key so
// every server rebuilds it.
func resetWikiCache(ctx context.Context, env *Env, dbname string) error {
	path := filepath.Join(env.Config.CacheDirectory, dbname+".json")
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if env.Cache == nil {
		log.Warn().Str("wiki", dbname).Msg("object cache not configured, cache key not bumped")
		return nil
	}
	return env.Cache.Touch(ctx, cache.MakeKey("CreateWiki", dbname), env.now())
}
