package store

import (
	"context"
	"fmt"
	"strings"
)

// Cluster is a server-level handle on one database cluster.
type Cluster struct {
	name  string
	store *Store
}

func NewCluster(name string, s *Store) *Cluster {
	return &Cluster{name: name, store: s}
}

func (c *Cluster) Name() string {
	return c.name
}

// ListDatabases returns the schemas whose name ends in suffix.
func (c *Cluster) ListDatabases(ctx context.Context, suffix string) ([]string, error) {
	if c.store.dialect != MySQL {
		return nil, fmt.Errorf("%w: list databases on %s", ErrUnsupported, c.store.dialect)
	}
	rows, err := c.store.db.QueryContext(ctx,
		"SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME LIKE ? ORDER BY SCHEMA_NAME",
		"%"+escapeLike(suffix))
	if err != nil {
		return nil, fmt.Errorf("list schemas on %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema on %s: %w", c.name, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (c *Cluster) DropDatabase(ctx context.Context, name string) error {
	q, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if c.store.dialect != MySQL {
		return fmt.Errorf("%w: drop database on %s", ErrUnsupported, c.store.dialect)
	}
	if _, err := c.store.db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+q); err != nil {
		return fmt.Errorf("drop %s on %s: %w", name, c.name, err)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
