package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
)

// Settings is the ManageWiki settings blob of one wiki, loaded from mw_settings.
// Changes are buffered until Commit.
type Settings struct {
	store   *Store
	dbname  string
	values  map[string]any
	exists  bool
	changed bool
}

func (s *Store) LoadSettings(ctx context.Context, dbname string) (*Settings, error) {
	out := &Settings{store: s, dbname: dbname, values: map[string]any{}}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT s_settings FROM mw_settings WHERE s_dbname = ?", dbname,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings %s: %w", dbname, err)
	}
	out.exists = true
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &out.values); err != nil {
			// An empty PHP array encodes as [] rather than {}.
			var list []any
			if json.Unmarshal([]byte(raw.String), &list) != nil || len(list) != 0 {
				return nil, fmt.Errorf("decode settings %s: %w", dbname, err)
			}
		}
		if out.values == nil {
			out.values = map[string]any{}
		}
	}
	return out, nil
}

func (st *Settings) DBName() string {
	return st.dbname
}

// List returns a copy of every setting.
func (st *Settings) List() map[string]any {
	return maps.Clone(st.values)
}

func (st *Settings) Get(name string) (any, bool) {
	v, ok := st.values[name]
	return v, ok
}

// GetString returns the setting when it is a string.
func (st *Settings) GetString(name string) (string, bool) {
	v, ok := st.values[name].(string)
	return v, ok
}

func (st *Settings) Modify(values map[string]any) {
	for name, v := range values {
		if cur, ok := st.values[name]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		st.values[name] = v
		st.changed = true
	}
}

func (st *Settings) Remove(name string) {
	if _, ok := st.values[name]; !ok {
		return
	}
	delete(st.values, name)
	st.changed = true
}

func (st *Settings) Changed() bool {
	return st.changed
}

// Commit writes the blob when something changed.
func (st *Settings) Commit(ctx context.Context) error {
	if !st.changed {
		return nil
	}
	encoded, err := json.Marshal(st.values)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", st.dbname, err)
	}
	if st.exists {
		_, err = st.store.Update(ctx, "mw_settings",
			map[string]any{"s_settings": string(encoded)},
			map[string]any{"s_dbname": st.dbname},
		)
	} else {
		err = st.store.Insert(ctx, "mw_settings", map[string]any{
			"s_dbname":     st.dbname,
			"s_settings":   string(encoded),
			"s_extensions": "[]",
		})
	}
	if err != nil {
		return err
	}
	st.exists = true
	st.changed = false
	return nil
}
