package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danmuck/magicctl/internal/wiki"
)

// Wiki is one cw_wikis row.
type Wiki struct {
	DBName         string
	Cluster        string
	Sitename       string
	Language       string
	Private        bool
	Closed         bool
	Deleted        bool
	Locked         bool
	Inactive       bool
	InactiveExempt bool
	URL            string
}

// State maps registry flags onto the notice state.
func (w Wiki) State() wiki.State {
	state := wiki.State{Closed: w.Closed, Private: w.Private}
	switch {
	case w.Inactive && w.InactiveExempt:
		state.Inactive = "exempt"
	case w.Inactive:
		state.Inactive = "true"
	}
	return state
}

func (s *Store) WikiExists(ctx context.Context, dbname string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx,
		"SELECT wiki_dbname FROM cw_wikis WHERE wiki_dbname = ?", dbname,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup wiki %s: %w", dbname, err)
	}
	return true, nil
}

func (s *Store) GetWiki(ctx context.Context, dbname string) (Wiki, error) {
	var (
		w                                              Wiki
		cluster, sitename, language, url               sql.NullString
		private, closed, deleted, locked, inactive, ex sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT wiki_dbname, wiki_dbcluster, wiki_sitename, wiki_language, wiki_private,
		        wiki_closed, wiki_deleted, wiki_locked, wiki_inactive, wiki_inactive_exempt, wiki_url
		 FROM cw_wikis WHERE wiki_dbname = ?`, dbname,
	).Scan(&w.DBName, &cluster, &sitename, &language, &private, &closed, &deleted, &locked, &inactive, &ex, &url)
	if errors.Is(err, sql.ErrNoRows) {
		return Wiki{}, fmt.Errorf("%w: wiki %s", ErrNotFound, dbname)
	}
	if err != nil {
		return Wiki{}, fmt.Errorf("get wiki %s: %w", dbname, err)
	}
	w.Cluster = cluster.String
	w.Sitename = sitename.String
	w.Language = language.String
	w.URL = url.String
	w.Private = private.Int64 != 0
	w.Closed = closed.Int64 != 0
	w.Deleted = deleted.Int64 != 0
	w.Locked = locked.Int64 != 0
	w.Inactive = inactive.Int64 != 0
	w.InactiveExempt = ex.Int64 != 0
	return w, nil
}

// UpdateWikiSettings writes the legacy cw_wikis.wiki_settings blob.
func (s *Store) UpdateWikiSettings(ctx context.Context, dbname, settingsJSON string) (int64, error) {
	return s.Update(ctx, "cw_wikis",
		map[string]any{"wiki_settings": settingsJSON},
		map[string]any{"wiki_dbname": dbname},
	)
}

// DistinctValues returns every distinct non-null value of table.field.
func (s *Store) DistinctValues(ctx context.Context, table, field string) ([]string, error) {
	tbl, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	col, err := quoteIdent(field)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT "+col+" FROM "+tbl+" WHERE "+col+" IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("select %s.%s: %w", table, field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", table, field, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) DeleteByField(ctx context.Context, table, field, value string) (int64, error) {
	return s.Delete(ctx, table, map[string]any{field: value})
}

// DeleteUnreadWiki drops the echo unread row for wiki.
func (s *Store) DeleteUnreadWiki(ctx context.Context, wikiID string) (int64, error) {
	return s.Delete(ctx, "echo_unread_wikis", map[string]any{"euw_wiki": wikiID})
}

func (s *Store) RenameUnreadWiki(ctx context.Context, oldID, newID string) (int64, error) {
	return s.Update(ctx, "echo_unread_wikis",
		map[string]any{"euw_wiki": newID},
		map[string]any{"euw_wiki": oldID},
	)
}
