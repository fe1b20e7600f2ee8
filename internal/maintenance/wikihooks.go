package maintenance

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
)

const wikiGroup = "wiki"

// wikiArg takes the single <dbname> argument of the wiki hook commands.
type wikiArg struct {
	DBName string
}

func (a *wikiArg) SetArgs(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected <dbname>, got %d arguments", len(args))
	}
	a.DBName = args[0]
	return nil
}

// WikiCreate runs the creation hooks for a new wiki.
type WikiCreate struct {
	wikiArg
}

func (s *WikiCreate) Metadata() Metadata {
	return Metadata{ID: "wiki.create", Name: "create", Description: "Run the wiki creation hooks.", Group: wikiGroup}
}

func (s *WikiCreate) BindFlags(*pflag.FlagSet) {}

func (s *WikiCreate) Run(ctx context.Context, env *Env) error {
	h, err := env.hooks()
	if err != nil {
		return err
	}
	if err := h.CreateWikiCreation(ctx, s.DBName); err != nil {
		return err
	}
	env.Printf("Creation hooks completed for %s.\n", s.DBName)
	return nil
}

// WikiDelete runs the deletion hooks of a wiki after confirmation.
type WikiDelete struct {
	wikiArg
	Yes bool
}

func (s *WikiDelete) Metadata() Metadata {
	return Metadata{ID: "wiki.delete", Name: "delete", Description: "Run the wiki deletion hooks (containers, static files, settings, job keys).", Group: wikiGroup}
}

func (s *WikiDelete) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.Yes, "yes", false, "Skip the confirmation prompt.")
}

func (s *WikiDelete) Run(ctx context.Context, env *Env) error {
	h, err := env.hooks()
	if err != nil {
		return err
	}
	if s.DBName == "default" {
		return fatalf("Invalid wiki. You can not delete default.")
	}
	if !s.Yes && !env.Confirm("Are you sure you want to run the deletion hooks for "+s.DBName+"? (y/n) ") {
		return &FatalError{Message: "Aborted.", Code: ExitAborted}
	}
	if err := h.CreateWikiDeletion(ctx, s.DBName); err != nil {
		return err
	}
	env.Printf("Deletion hooks completed for %s.\n", s.DBName)
	return nil
}

// WikiRename runs the rename hooks from one database name to another.
type WikiRename struct {
	Old string
	New string
}

func (s *WikiRename) Metadata() Metadata {
	return Metadata{ID: "wiki.rename", Name: "rename", Description: "Run the wiki rename hooks.", Group: wikiGroup}
}

func (s *WikiRename) BindFlags(*pflag.FlagSet) {}

func (s *WikiRename) SetArgs(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected <old> <new>, got %d arguments", len(args))
	}
	s.Old, s.New = args[0], args[1]
	return nil
}

func (s *WikiRename) Run(ctx context.Context, env *Env) error {
	h, err := env.hooks()
	if err != nil {
		return err
	}
	if s.Old == s.New {
		return fatalf("Old and new names are the same.")
	}
	report, err := h.CreateWikiRename(ctx, s.Old, s.New)
	for _, pair := range report.Renamed {
		env.Printf(" - Renamed %s to %s\n", pair.From, pair.To)
	}
	for _, pair := range report.Mismatched {
		env.Printf(" - Kept %s: copy to %s did not verify\n", pair.From, pair.To)
	}
	for _, pair := range report.Failed {
		env.Printf(" - Failed %s\n", pair.From)
	}
	if err != nil {
		return err
	}
	env.Printf("Rename hooks completed for %s -> %s.\n", s.Old, s.New)
	return nil
}

// WikiPrivate runs the hooks for a wiki that became private.
type WikiPrivate struct {
	wikiArg
}

func (s *WikiPrivate) Metadata() Metadata {
	return Metadata{ID: "wiki.private", Name: "private", Description: "Run the hooks for a wiki that became private.", Group: wikiGroup}
}

func (s *WikiPrivate) BindFlags(*pflag.FlagSet) {}

func (s *WikiPrivate) Run(ctx context.Context, env *Env) error {
	h, err := env.hooks()
	if err != nil {
		return err
	}
	if err := h.CreateWikiStatePrivate(ctx, s.DBName); err != nil {
		return err
	}
	env.Printf("Private state hooks completed for %s.\n", s.DBName)
	return nil
}
