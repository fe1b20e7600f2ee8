package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidBackup = errors.New("store: invalid managewiki backup")

// Backup is a decoded ManageWiki backup file.
type Backup struct {
	Namespaces  map[string]map[string]any `json:"namespaces"`
	Permissions map[string]map[string]any `json:"permissions,omitempty"`
	Settings    map[string]any            `json:"settings,omitempty"`
	Extensions  []string                  `json:"extensions,omitempty"`

	hasSettings   bool
	hasExtensions bool
}

// ParseBackup decodes a backup and requires the namespaces section.
func ParseBackup(data []byte) (Backup, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Backup{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	rawNS, ok := probe["namespaces"]
	if !ok {
		return Backup{}, fmt.Errorf("%w: missing namespaces", ErrInvalidBackup)
	}
	var b Backup
	if err := decodeObject(rawNS, &b.Namespaces); err != nil {
		return Backup{}, fmt.Errorf("%w: namespaces: %v", ErrInvalidBackup, err)
	}
	if raw, ok := probe["permissions"]; ok {
		if err := decodeObject(raw, &b.Permissions); err != nil {
			return Backup{}, fmt.Errorf("%w: permissions: %v", ErrInvalidBackup, err)
		}
	}
	if raw, ok := probe["settings"]; ok {
		if err := decodeObject(raw, &b.Settings); err != nil {
			return Backup{}, fmt.Errorf("%w: settings: %v", ErrInvalidBackup, err)
		}
		b.hasSettings = true
	}
	if raw, ok := probe["extensions"]; ok {
		if err := json.Unmarshal(raw, &b.Extensions); err != nil {
			return Backup{}, fmt.Errorf("%w: extensions: %v", ErrInvalidBackup, err)
		}
		b.hasExtensions = true
	}
	return b, nil
}

// decodeObject accepts a JSON object, or an empty array for an empty object.
func decodeObject[T any](raw json.RawMessage, dst *map[string]T) error {
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil || len(list) != 0 {
		return fmt.Errorf("expected object")
	}
	*dst = map[string]T{}
	return nil
}

// NamespaceRows translates backup namespaces into mw_namespaces rows.
func (b Backup) NamespaceRows(dbname string) ([]map[string]any, error) {
	names := make([]string, 0, len(b.Namespaces))
	for name := range b.Namespaces {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		row := map[string]any{}
		for key, value := range b.Namespaces[name] {
			col := "ns_" + key
			switch key {
			case "id":
				col = "ns_namespace_id"
			case "contentmodel":
				col = "ns_content_model"
			}
			v, err := sqlValue(value, key == "additional" || key == "aliases")
			if err != nil {
				return nil, fmt.Errorf("namespace %s.%s: %w", name, key, err)
			}
			row[col] = v
		}
		row["ns_namespace_name"] = name
		row["ns_dbname"] = dbname
		rows = append(rows, row)
	}
	return rows, nil
}

// PermissionRows translates backup permissions into mw_permissions rows.
// Every value is stored JSON encoded.
func (b Backup) PermissionRows(dbname string) ([]map[string]any, error) {
	groups := make([]string, 0, len(b.Permissions))
	for group := range b.Permissions {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	rows := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		row := map[string]any{}
		for key, value := range b.Permissions[group] {
			switch key {
			case "addself":
				key = "addgroupstoself"
			case "removeself":
				key = "removegroupsfromself"
			}
			v, err := sqlValue(value, true)
			if err != nil {
				return nil, fmt.Errorf("permission %s.%s: %w", group, key, err)
			}
			row["perm_"+key] = v
		}
		row["perm_group"] = group
		row["perm_dbname"] = dbname
		rows = append(rows, row)
	}
	return rows, nil
}

// SettingsRow returns the mw_settings row, or false when the backup has
// neither settings nor extensions.
func (b Backup) SettingsRow(dbname string) (map[string]any, bool, error) {
	if !b.hasSettings && !b.hasExtensions {
		return nil, false, nil
	}
	row := map[string]any{"s_dbname": dbname, "s_settings": "[]", "s_extensions": "[]"}
	if b.hasSettings {
		v, err := sqlValue(b.Settings, true)
		if err != nil {
			return nil, false, fmt.Errorf("settings: %w", err)
		}
		row["s_settings"] = v
	}
	if b.hasExtensions {
		v, err := sqlValue(b.Extensions, true)
		if err != nil {
			return nil, false, fmt.Errorf("extensions: %w", err)
		}
		row["s_extensions"] = v
	}
	return row, true, nil
}

// ReplaceManageWikiData swaps the namespace, permission and settings rows of
// dbname for the backup contents in one transaction.
func (s *Store) ReplaceManageWikiData(ctx context.Context, dbname string, b Backup) error {
	nsRows, err := b.NamespaceRows(dbname)
	if err != nil {
		return err
	}
	permRows, err := b.PermissionRows(dbname)
	if err != nil {
		return err
	}
	settingsRow, hasSettings, err := b.SettingsRow(dbname)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore %s: %w", dbname, err)
	}
	defer tx.Rollback()

	for table, field := range map[string]string{
		"mw_namespaces":  "ns_dbname",
		"mw_permissions": "perm_dbname",
		"mw_settings":    "s_dbname",
	} {
		if _, err := deleteRows(ctx, tx, table, map[string]any{field: dbname}); err != nil {
			return err
		}
	}
	for _, row := range nsRows {
		if err := insert(ctx, tx, "mw_namespaces", row); err != nil {
			return err
		}
	}
	for _, row := range permRows {
		if err := insert(ctx, tx, "mw_permissions", row); err != nil {
			return err
		}
	}
	if hasSettings {
		if err := insert(ctx, tx, "mw_settings", settingsRow); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore %s: %w", dbname, err)
	}
	return nil
}

// sqlValue converts a decoded JSON value to a driver value. Composite values
// and anything forced are stored as JSON text.
func sqlValue(value any, forceJSON bool) (any, error) {
	if !forceJSON {
		switch v := value.(type) {
		case nil, string, bool:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
			return v, nil
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}
