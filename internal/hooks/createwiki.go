package hooks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/tools"
)

var ErrUnavailable = errors.New("hooks: dependency unavailable")

// CreateWikiTables adds the CentralAuth tables CreateWiki must clean up per wiki.
func (h *Handler) CreateWikiTables(tables map[string]string) {
	tables["localnames"] = "ln_wiki"
	tables["localuser"] = "lu_wiki"
}

// CreateWikiCreation prepares the static upload directory of a wiki that does
// not use object storage.
func (h *Handler) CreateWikiCreation(ctx context.Context, dbname string) (err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiCreation", start, err) }()

	if h.cfg.SwiftEnabledFor(dbname) {
		return nil
	}
	logger := h.logger("CreateWikiCreation").With().Str("wiki", dbname).Logger()

	dir := h.staticDir(dbname)
	if !tools.Exists(ctx, h.runner, dir) {
		if err := h.run(ctx, "/bin/mkdir", "-p", dir); err != nil {
			return err
		}
	}
	if !tools.Exists(ctx, h.runner, dir) {
		logger.Warn().Str("dir", dir).Msg("static directory missing after mkdir")
		return nil
	}

	var errs []error
	for _, sub := range []string{"avatars", "awards"} {
		src := path.Join(h.cfg.Static.SocialProfileDir, sub)
		if err := h.run(ctx, "/bin/cp", "-r", src, path.Join(dir, sub)); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Info().Str("dir", dir).Msg("static directory ready")
	return errors.Join(errs...)
}

// CreateWikiDeletion removes everything the farm keeps for a deleted wiki
// outside its own database.
func (h *Handler) CreateWikiDeletion(ctx context.Context, dbname string) (err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiDeletion", start, err) }()
	logger := h.logger("CreateWikiDeletion").With().Str("wiki", dbname).Logger()

	var errs []error
	if echo, err := h.echo(ctx); err != nil {
		errs = append(errs, err)
	} else if _, err := echo.DeleteUnreadWiki(ctx, dbname); err != nil {
		errs = append(errs, err)
	}

	if err := h.rewriteDatabaseSettings(ctx, dbname, ""); err != nil {
		errs = append(errs, err)
	}

	if h.cfg.SwiftEnabledFor(dbname) {
		if h.swift == nil {
			errs = append(errs, fmt.Errorf("%w: swift", ErrUnavailable))
		} else {
			deleted, err := h.swift.DeleteWiki(ctx, dbname)
			if err != nil {
				errs = append(errs, err)
			}
			logger.Info().Int("containers", len(deleted)).Msg("swift containers deleted")
		}
	} else {
		dir := h.staticDir(dbname)
		if tools.Exists(ctx, h.runner, dir) {
			if err := h.run(ctx, "/bin/rm", "-rf", dir); err != nil {
				errs = append(errs, err)
			}
		}
	}

	removed := h.RemoveRedisKey(ctx, "*"+dbname+"*")
	logger.Info().Int64("redis_keys", removed).Msg("wiki deletion hooks complete")
	return errors.Join(errs...)
}

// CreateWikiRename moves everything the farm keeps for a wiki to its new name.
// The report lists containers whose copy did not verify.
func (h *Handler) CreateWikiRename(ctx context.Context, oldDB, newDB string) (report swift.RenameReport, err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiRename", start, err) }()
	logger := h.logger("CreateWikiRename").With().Str("wiki", oldDB).Str("new", newDB).Logger()

	var errs []error
	if echo, err := h.echo(ctx); err != nil {
		errs = append(errs, err)
	} else if _, err := echo.RenameUnreadWiki(ctx, oldDB, newDB); err != nil {
		errs = append(errs, err)
	}

	if err := h.rewriteDatabaseSettings(ctx, oldDB, newDB); err != nil {
		errs = append(errs, err)
	}

	if h.cfg.SwiftEnabledFor(oldDB) {
		if h.swift == nil {
			errs = append(errs, fmt.Errorf("%w: swift", ErrUnavailable))
		} else {
			report, err = h.swift.RenameWiki(ctx, oldDB, newDB)
			if err != nil {
				errs = append(errs, err)
			}
			logger.Info().
				Int("renamed", len(report.Renamed)).
				Int("mismatched", len(report.Mismatched)).
				Msg("swift containers renamed")
		}
	} else if err := h.moveStaticDir(ctx, oldDB, newDB); err != nil {
		errs = append(errs, err)
	}

	h.RemoveRedisKey(ctx, "*"+oldDB+"*")
	return report, errors.Join(errs...)
}

// CreateWikiStatePrivate drops the public sitemaps of a wiki that went private.
// Individual delete failures are logged and skipped.
func (h *Handler) CreateWikiStatePrivate(ctx context.Context, dbname string) (err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiStatePrivate", start, err) }()
	logger := h.logger("CreateWikiStatePrivate").With().Str("wiki", dbname).Logger()

	if !h.cfg.SwiftEnabledFor(dbname) {
		dir := path.Join(h.staticDir(dbname), "sitemaps")
		if !tools.Exists(ctx, h.runner, dir) {
			return nil
		}
		return h.run(ctx, "/bin/rm", "-rf", dir)
	}
	if h.swift == nil {
		return fmt.Errorf("%w: swift", ErrUnavailable)
	}

	backend := h.swift.Backend()
	container := swift.ContainerName(h.swift.Prefix(), dbname, swift.ZonePublic)
	objects, err := backend.ListObjects(ctx, container, swift.SitemapsPrefix)
	if errors.Is(err, swift.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	deleted := 0
	for _, object := range objects {
		if err := backend.DeleteObject(ctx, container, object); err != nil {
			logger.Warn().Err(err).Str("container", container).Str("sitemap", object).Msg("sitemap failed to delete")
			continue
		}
		deleted++
	}
	logger.Info().Int("deleted", deleted).Int("total", len(objects)).Msg("sitemaps removed")
	return nil
}

// ReadPersistentModel fetches the CreateWiki request model. enabled is false
// when the current wiki does not use object storage.
func (h *Handler) ReadPersistentModel(ctx context.Context) (model []byte, enabled bool, err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiReadPersistentModel", start, err) }()

	if !h.cfg.SwiftEnabledFor(h.cfg.DBName) {
		return nil, false, nil
	}
	if h.swift == nil {
		return nil, true, fmt.Errorf("%w: swift", ErrUnavailable)
	}
	data, err := h.swift.Backend().GetObject(ctx, h.modelContainer(), swift.PersistentModelObject)
	if errors.Is(err, swift.ErrNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

// WritePersistentModel stores the CreateWiki request model, overwriting the
// previous one.
func (h *Handler) WritePersistentModel(ctx context.Context, model []byte) (enabled bool, err error) {
	start := time.Now()
	defer func() { h.observe("CreateWikiWritePersistentModel", start, err) }()

	if !h.cfg.SwiftEnabledFor(h.cfg.DBName) {
		return false, nil
	}
	if h.swift == nil {
		return true, fmt.Errorf("%w: swift", ErrUnavailable)
	}
	return true, h.swift.Backend().PutObject(ctx, h.modelContainer(), swift.PersistentModelObject, model)
}

// RemoveRedisKey deletes job-queue keys matching pattern. Errors are swallowed.
func (h *Handler) RemoveRedisKey(ctx context.Context, pattern string) int64 {
	return h.purger.RemoveKeys(ctx, pattern)
}

// rewriteDatabaseSettings points every database-type setting holding oldDB at
// newDB across the local wikis. An empty newDB removes the setting.
func (h *Handler) rewriteDatabaseSettings(ctx context.Context, oldDB, newDB string) error {
	names := h.cfg.DatabaseSettings()
	if len(names) == 0 || len(h.cfg.LocalDatabases) == 0 {
		return nil
	}
	if h.db == nil {
		return fmt.Errorf("%w: database", ErrUnavailable)
	}
	global, err := h.db.Global(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, local := range h.cfg.LocalDatabases {
		settings, err := global.LoadSettings(ctx, local)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, name := range names {
			if v, ok := settings.GetString(name); !ok || v != oldDB {
				continue
			}
			if newDB == "" {
				settings.Remove(name)
			} else {
				settings.Modify(map[string]any{name: newDB})
			}
		}
		if !settings.Changed() {
			continue
		}
		if err := settings.Commit(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		logger := h.logger("rewriteDatabaseSettings")
		logger.Debug().Str("wiki", settings.DBName()).Str("from", oldDB).Str("to", newDB).Msg("database settings rewritten")
	}
	return errors.Join(errs...)
}

func (h *Handler) moveStaticDir(ctx context.Context, oldDB, newDB string) error {
	root := h.cfg.Static.Root
	for _, base := range []string{root, path.Join(root, "private")} {
		src := path.Join(base, oldDB)
		if tools.Exists(ctx, h.runner, src) {
			return h.run(ctx, "/bin/mv", src, path.Join(base, newDB))
		}
	}
	return nil
}

func (h *Handler) echo(ctx context.Context) (*store.Store, error) {
	if h.db == nil {
		return nil, fmt.Errorf("%w: database", ErrUnavailable)
	}
	return h.db.Database(ctx, h.cfg.EchoDatabase)
}

func (h *Handler) staticDir(dbname string) string {
	return path.Join(h.cfg.Static.Root, dbname)
}

func (h *Handler) modelContainer() string {
	return h.swift.Prefix() + "-" + swift.PersistentModelContainer
}

func (h *Handler) run(ctx context.Context, name string, args ...string) error {
	_, stderr, code, err := h.runner.Run(ctx, name, args...)
	if err != nil || code != 0 {
		return fmt.Errorf("%s failed (exit %d): %s: %w", tools.CommandLine(name, args...), code, string(stderr), errOrExit(err))
	}
	return nil
}

func errOrExit(err error) error {
	if err != nil {
		return err
	}
	return errors.New("non-zero exit")
}
