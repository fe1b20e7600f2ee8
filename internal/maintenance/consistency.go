package maintenance

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/magicctl/internal/swift"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// CheckSwiftContainers reports containers whose wiki has no cw_wikis row.
type CheckSwiftContainers struct {
	noArgs
}

func (s *CheckSwiftContainers) Metadata() Metadata {
	return Metadata{
		ID:          "check-swift-containers",
		Name:        "Check swift containers",
		Description: "Check for swift containers without matching entries in cw_wikis.",
	}
}

func (s *CheckSwiftContainers) BindFlags(*pflag.FlagSet) {}

func (s *CheckSwiftContainers) Run(ctx context.Context, env *Env) error {
	if env.Swift == nil {
		return fmt.Errorf("%w: swift", ErrMissing)
	}
	containers, err := env.Swift.ListContainers(ctx, "")
	if err != nil {
		return err
	}
	containers = slices.DeleteFunc(containers, func(c string) bool { return strings.TrimSpace(c) == "" })
	if len(containers) == 0 {
		return fatalf("No swift containers found.")
	}
	env.Printf("Found %d swift containers.\n", len(containers))

	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, c := range containers {
		dbname, _, ok := swift.ParseContainer(env.Config.Swift.Prefix, env.Config.DatabaseSuffix, c)
		if !ok {
			continue
		}
		exists, err := global.WikiExists(ctx, dbname)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, c)
		}
	}

	if len(missing) == 0 {
		env.Printf("All containers have matching entries in cw_wikis.\n")
		return nil
	}
	env.Printf("Containers without matching entries in cw_wikis:\n")
	for _, c := range missing {
		env.Printf(" - %s\n", c)
	}
	return nil
}

// globalTables are the registry tables keyed by wiki database name.
var globalTables = []struct{ Table, Field string }{
	{"cw_wikis", "wiki_dbname"},
	{"gnf_files", "files_dbname"},
	{"localnames", "ln_wiki"},
	{"localuser", "lu_wiki"},
	{"mw_namespaces", "ns_dbname"},
	{"mw_permissions", "perm_dbname"},
	{"mw_settings", "s_dbname"},
}

// CheckWikiDatabases compares the wiki schemas on the clusters against the
// registry, in either direction.
type CheckWikiDatabases struct {
	noArgs
	Inverse bool
	Delete  bool
}

func (s *CheckWikiDatabases) Metadata() Metadata {
	return Metadata{
		ID:          "check-wiki-databases",
		Name:        "Check wiki databases",
		Description: "Check for wiki databases across all clusters that are missing in cw_wikis, or for cw_wikis entries that have no database in any cluster.",
	}
}

func (s *CheckWikiDatabases) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.Inverse, "inverse", false, "Check for cw_wikis entries without a matching database in any cluster.")
	fs.BoolVar(&s.Delete, "delete", false, "Delete/drop missing databases or entries based on the selected option (inverse or not).")
}

func (s *CheckWikiDatabases) Run(ctx context.Context, env *Env) error {
	if env.Clusters == nil {
		return fmt.Errorf("%w: clusters", ErrMissing)
	}
	clusters, err := env.Clusters(ctx)
	if err != nil {
		return err
	}
	found, order, listed, err := s.collect(ctx, env, clusters)
	if err != nil {
		return err
	}
	if listed == 0 {
		return fatalf("No wiki databases found.")
	}
	env.Printf("Found %d wiki databases across clusters.\n", listed)

	if s.Inverse {
		return s.checkEntries(ctx, env, found)
	}
	return s.checkDatabases(ctx, env, found, order)
}

// collect lists the wiki schemas of every cluster concurrently. order keeps
// cluster order, then listing order, and holds each name once. listed counts
// every schema as listed, so a name on two clusters counts twice.
func (s *CheckWikiDatabases) collect(ctx context.Context, env *Env, clusters []Cluster) (found map[string]Cluster, order []string, listed int, err error) {
	results := make([][]string, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clusters {
		env.Printf("Connecting to cluster: %s...\n", c.Name())
		g.Go(func() error {
			dbs, err := c.ListDatabases(gctx, env.Config.DatabaseSuffix)
			if err != nil {
				return fmt.Errorf("cluster %s: %w", c.Name(), err)
			}
			results[i] = dbs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}

	found = make(map[string]Cluster)
	for i, dbs := range results {
		listed += len(dbs)
		for _, db := range dbs {
			if _, ok := found[db]; ok {
				continue
			}
			found[db] = clusters[i]
			order = append(order, db)
		}
	}
	return found, order, listed, nil
}

func (s *CheckWikiDatabases) checkDatabases(ctx context.Context, env *Env, found map[string]Cluster, order []string) error {
	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, db := range order {
		exists, err := global.WikiExists(ctx, db)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, db)
		}
	}
	if len(missing) == 0 {
		env.Printf("All wiki databases are present in cw_wikis.\n")
		return nil
	}

	env.Printf("Databases missing in cw_wikis:\n")
	for _, db := range missing {
		env.Printf(" - %s\n", db)
	}
	if !s.Delete {
		return nil
	}

	env.Printf("Dropping the following databases:\n")
	for _, db := range missing {
		env.Printf(" - Dropping %s...\n", db)
		if err := found[db].DropDatabase(ctx, db); err != nil {
			return err
		}
	}
	env.Printf("Database drop operation completed.\n")
	return nil
}

func (s *CheckWikiDatabases) checkEntries(ctx context.Context, env *Env, found map[string]Cluster) error {
	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	suffix := env.Config.DatabaseSuffix

	seen := make(map[string]bool)
	var missing []string
	for _, t := range globalTables {
		env.Printf("Checking table: %s, field: %s...\n", t.Table, t.Field)
		exists, err := global.TableExists(ctx, t.Table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		values, err := global.DistinctValues(ctx, t.Table, t.Field)
		if err != nil {
			return err
		}
		slices.Sort(values)
		for _, db := range values {
			if !strings.HasSuffix(db, suffix) || db == "default" {
				continue
			}
			if _, ok := found[db]; ok || seen[db] {
				continue
			}
			seen[db] = true
			missing = append(missing, db)
		}
	}

	if len(missing) == 0 {
		env.Printf("All entries in specified tables have matching databases in the clusters.\n")
		return nil
	}
	env.Printf("Entries without a matching database in any cluster:\n")
	for _, db := range missing {
		env.Printf(" - %s\n", db)
	}
	if !s.Delete {
		return nil
	}

	env.Printf("Deleting entries without matching databases:\n")
	for _, t := range globalTables {
		exists, err := global.TableExists(ctx, t.Table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		for _, db := range missing {
			env.Printf(" - Deleting entry %s from %s...\n", db, t.Table)
			if _, err := global.DeleteByField(ctx, t.Table, t.Field, db); err != nil {
				return err
			}
		}
	}
	env.Printf("Entries deletion completed.\n")
	return nil
}
