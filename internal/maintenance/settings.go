package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/danmuck/magicctl/internal/store"
	"github.com/spf13/pflag"
)

// RestoreManageWikiBackup replaces the ManageWiki rows of the current wiki
// with a backup file.
type RestoreManageWikiBackup struct {
	noArgs
	Filename string
	Yes      bool
}

func (s *RestoreManageWikiBackup) Metadata() Metadata {
	return Metadata{
		ID:          "restore-managewiki-backup",
		Name:        "Restore ManageWiki backup",
		Description: "Restore a ManageWiki backup. This will override all currently set settings!",
	}
}

func (s *RestoreManageWikiBackup) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.Filename, "filename", "", "Filename to restore json from.")
	fs.BoolVar(&s.Yes, "yes", false, "Skip the confirmation prompt.")
}

func (s *RestoreManageWikiBackup) Run(ctx context.Context, env *Env) error {
	dbname := env.Wiki()
	if dbname == "default" {
		return fatalf("Invalid wiki. You can not overwrite default.")
	}
	if s.Filename == "" {
		return fatalf("--filename is required.")
	}
	data, err := os.ReadFile(s.Filename)
	if errors.Is(err, os.ErrNotExist) {
		return fatalf("Backup file %s does not exist.", s.Filename)
	}
	if err != nil {
		return err
	}
	backup, err := store.ParseBackup(data)
	if errors.Is(err, store.ErrInvalidBackup) {
		return fatalf("Invalid backup file.")
	}
	if err != nil {
		return err
	}

	if !s.Yes {
		prompt := "Are you sure you want to restore the ManageWiki settings from " + s.Filename + " to " + dbname +
			"? This will overwrite all current settings on the wiki! (y/n) "
		if !env.Confirm(prompt) {
			return &FatalError{Message: "Aborted.", Code: ExitAborted}
		}
	}

	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	if err := global.ReplaceManageWikiData(ctx, dbname, backup); err != nil {
		return err
	}
	if err := resetWikiCache(ctx, env, dbname); err != nil {
		return err
	}
	env.Printf("Successfully restored the backup from '%s'.\n", s.Filename)
	return nil
}

const userProfileSetting = "wgUserProfileDisplay"

// userProfileDefaults are the SocialProfile sections shown when unset.
var userProfileDefaults = map[string]bool{
	"activity":  false,
	"articles":  true,
	"avatar":    true,
	"awards":    true,
	"board":     false,
	"custom":    true,
	"foes":      false,
	"friends":   false,
	"games":     false,
	"gifts":     true,
	"interests": true,
	"personal":  true,
	"profile":   true,
	"stats":     false,
	"userboxes": false,
}

// UserProfileDefaults fills the missing wgUserProfileDisplay sections.
type UserProfileDefaults struct {
	noArgs
}

func (s *UserProfileDefaults) Metadata() Metadata {
	return Metadata{
		ID:          "userprofile-defaults",
		Name:        "User profile defaults",
		Description: "Fill missing wgUserProfileDisplay sections with their defaults.",
	}
}

func (s *UserProfileDefaults) BindFlags(*pflag.FlagSet) {}

func (s *UserProfileDefaults) Run(ctx context.Context, env *Env) error {
	dbname := env.Wiki()
	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	settings, err := global.LoadSettings(ctx, dbname)
	if err != nil {
		return err
	}
	current, _ := settings.Get(userProfileSetting)
	display, ok := current.(map[string]any)
	if !ok || len(display) == 0 {
		env.Printf("%s is not set on %s.\n", userProfileSetting, dbname)
		return nil
	}

	merged := make(map[string]any, len(userProfileDefaults))
	added := 0
	for key, value := range display {
		merged[key] = value
	}
	for key, value := range userProfileDefaults {
		if _, ok := merged[key]; !ok {
			merged[key] = value
			added++
		}
	}
	if added == 0 {
		env.Printf("%s on %s already has every section.\n", userProfileSetting, dbname)
		return nil
	}

	settings.Modify(map[string]any{userProfileSetting: merged})
	if err := settings.Commit(ctx); err != nil {
		return err
	}
	encoded, err := json.Marshal(settings.List())
	if err != nil {
		return err
	}
	if _, err := global.UpdateWikiSettings(ctx, dbname, string(encoded)); err != nil {
		return err
	}
	env.Printf("Added %d %s sections on %s.\n", added, userProfileSetting, dbname)
	return nil
}

// UpdatePrivateAuthURLs points static media URLs of a private wiki at the
// authenticated image endpoint.
type UpdatePrivateAuthURLs struct {
	noArgs
}

func (s *UpdatePrivateAuthURLs) Metadata() Metadata {
	return Metadata{
		ID:          "update-private-auth-urls",
		Name:        "Update private auth urls",
		Description: "Rewrite static media URLs in the settings of a private wiki to img_auth.",
	}
}

func (s *UpdatePrivateAuthURLs) BindFlags(*pflag.FlagSet) {}

const imgAuthPath = "/w/img_auth"

func (s *UpdatePrivateAuthURLs) Run(ctx context.Context, env *Env) error {
	dbname := env.Wiki()
	global, err := env.global(ctx)
	if err != nil {
		return err
	}
	w, err := global.GetWiki(ctx, dbname)
	if errors.Is(err, store.ErrNotFound) {
		return fatalf("Wiki %s does not exist.", dbname)
	}
	if err != nil {
		return err
	}
	if !w.Private {
		env.Printf("%s is not private.\n", dbname)
		return nil
	}

	settings, err := global.LoadSettings(ctx, dbname)
	if err != nil {
		return err
	}
	staticPath := env.Config.StaticHost + "/" + dbname
	// Scheme-qualified forms go first so no dangling scheme is left behind.
	rewrite := strings.NewReplacer(
		"https://"+staticPath, imgAuthPath,
		"http://"+staticPath, imgAuthPath,
		"//"+staticPath, imgAuthPath,
		staticPath, imgAuthPath,
	)

	values := settings.List()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	changed := 0
	for _, name := range names {
		val, ok := values[name].(string)
		if !ok || !strings.Contains(val, staticPath) {
			continue
		}
		settings.Modify(map[string]any{name: rewrite.Replace(val)})
		env.Printf(" - %s\n", name)
		changed++
	}
	if err := settings.Commit(ctx); err != nil {
		return err
	}
	env.Printf("Updated %d settings on %s.\n", changed, dbname)
	return nil
}
