package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ActorID resolves an actor name (user or IP) to its actor id.
func (s *Store) ActorID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT actor_id FROM actor WHERE actor_name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: actor %s", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup actor %s: %w", name, err)
	}
	return id, nil
}

// UserID resolves a local user name. Missing users return ErrNotFound.
func (s *Store) UserID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT user_id FROM `user` WHERE user_name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user %s: %w", name, err)
	}
	return id, nil
}

// PageIDs returns the ids of every page with the given db-key title.
func (s *Store) PageIDs(ctx context.Context, title string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT page_id FROM page WHERE page_title = ? ORDER BY page_id", title)
	if err != nil {
		return nil, fmt.Errorf("lookup pages %s: %w", title, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan page id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CentralUser is a globaluser row.
type CentralUser struct {
	ID     int64
	Name   string
	Email  string
	Locked bool
}

func (s *Store) CentralUser(ctx context.Context, name string) (CentralUser, error) {
	var (
		u      CentralUser
		email  sql.NullString
		locked sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT gu_id, gu_name, gu_email, gu_locked FROM globaluser WHERE gu_name = ?", name,
	).Scan(&u.ID, &u.Name, &email, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return CentralUser{}, fmt.Errorf("%w: central user %s", ErrNotFound, name)
	}
	if err != nil {
		return CentralUser{}, fmt.Errorf("lookup central user %s: %w", name, err)
	}
	u.Email = email.String
	u.Locked = locked.Int64 != 0
	return u, nil
}

// GlobalGroups lists the global groups of a central user.
func (s *Store) GlobalGroups(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gug_group FROM global_user_groups
		 JOIN globaluser ON gu_id = gug_user
		 WHERE gu_name = ? ORDER BY gug_group`, name)
	if err != nil {
		return nil, fmt.Errorf("lookup global groups %s: %w", name, err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan global group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ScrubCentralUser clears the email of a central account and locks it.
func (s *Store) ScrubCentralUser(ctx context.Context, u CentralUser) error {
	if u.Email != "" {
		if _, err := s.Update(ctx, "globaluser",
			map[string]any{"gu_email": ""},
			map[string]any{"gu_email": u.Email, "gu_name": u.Name},
		); err != nil {
			return err
		}
	}
	_, err := s.Update(ctx, "globaluser",
		map[string]any{"gu_locked": 1},
		map[string]any{"gu_name": u.Name},
	)
	return err
}

// LogEmailRule asks for a mail whenever the user performs a logged action.
type LogEmailRule struct {
	User    string
	Email   string
	LogType string
}

func (s *Store) LogEmailRules(ctx context.Context, user string) ([]LogEmailRule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT le_user, le_email, le_log_type FROM magic_log_emails WHERE le_user = ? ORDER BY le_email", user)
	if err != nil {
		return nil, fmt.Errorf("lookup log emails %s: %w", user, err)
	}
	defer rows.Close()

	var rules []LogEmailRule
	for rows.Next() {
		var (
			r       LogEmailRule
			logType sql.NullString
		)
		if err := rows.Scan(&r.User, &r.Email, &logType); err != nil {
			return nil, fmt.Errorf("scan log email: %w", err)
		}
		r.LogType = logType.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
