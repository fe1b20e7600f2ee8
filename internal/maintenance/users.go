package maintenance

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/spf13/pflag"
)

// userNameInvalidChars are rejected by the host in account names.
const userNameInvalidChars = "#<>[]|{}\r\n\t"

// validUserName reports whether name is a usable account name or an IP.
func validUserName(name string, allowIP bool) bool {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return false
	}
	if isIP(name) {
		return allowIP
	}
	return !strings.ContainsAny(name, userNameInvalidChars)
}

func isIP(name string) bool {
	_, err := netip.ParseAddr(name)
	return err == nil
}

// userName canonicalizes an account name; IPs are kept as given.
func userName(name string) string {
	name = strings.TrimSpace(name)
	if isIP(name) {
		return name
	}
	return wiki.UcFirst(strings.ReplaceAll(name, "_", " "))
}

// FixImageUser reassigns the uploader of a file from one actor to another.
type FixImageUser struct {
	ImageName string
	ID        string
	From      string
	To        string
}

func (s *FixImageUser) Metadata() Metadata {
	return Metadata{
		ID:          "fix-image-user",
		Name:        "Fix image user",
		Description: "Fix image ownership of file.",
	}
}

func (s *FixImageUser) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.ImageName, "image-name", "", "Name of the image you want to reassign image user.")
	fs.StringVar(&s.ID, "id", "", "The id that should be searched for (typically 0).")
}

func (s *FixImageUser) SetArgs(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected <from> <to>, got %d arguments", len(args))
	}
	s.From, s.To = args[0], args[1]
	return nil
}

func (s *FixImageUser) Run(ctx context.Context, env *Env) error {
	if s.ImageName == "" || s.ID == "" {
		return fatalf("--image-name and --id are required.")
	}
	if _, err := strconv.ParseInt(s.ID, 10, 64); err != nil {
		return fatalf("Invalid id %q.", s.ID)
	}
	if !validUserName(s.From, true) || !validUserName(s.To, false) {
		return fatalf("Invalid username")
	}
	db, err := env.wikiDB(ctx)
	if err != nil {
		return err
	}

	fromActor, err := db.ActorID(ctx, userName(s.From))
	if errors.Is(err, store.ErrNotFound) {
		return fatalf("User %s has no actor.", s.From)
	}
	if err != nil {
		return err
	}
	toActor, err := db.ActorID(ctx, userName(s.To))
	if errors.Is(err, store.ErrNotFound) {
		return fatalf("User %s has no actor.", s.To)
	}
	if err != nil {
		return err
	}

	imageKey := wiki.Normalize(s.ImageName)
	pages, err := db.PageIDs(ctx, imageKey)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		env.Printf("No pages found for %s.\n", imageKey)
		return nil
	}
	hasRevActor, err := db.TableExists(ctx, "revision_actor_temp")
	if err != nil {
		return err
	}

	var revisions, images int64
	for _, page := range pages {
		if hasRevActor {
			n, err := db.Update(ctx, "revision_actor_temp",
				map[string]any{"revactor_actor": toActor},
				map[string]any{"revactor_actor": fromActor, "revactor_page": page},
			)
			if err != nil {
				return err
			}
			revisions += n
		}
		n, err := db.Update(ctx, "image",
			map[string]any{"img_actor": toActor},
			map[string]any{"img_actor": fromActor, "img_name": imageKey},
		)
		if err != nil {
			return err
		}
		images += n
	}
	env.Printf("Reassigned %d revisions and %d images of %s from %s to %s.\n", revisions, images, imageKey, s.From, s.To)
	return nil
}

const scrubbedIP = "0.0.0.0"

type piiUpdate struct {
	table string
	set   map[string]any
	// where maps a column to the key of the value to match.
	where map[string]string
}

// piiUpdates are the IP and header columns scrubbed per table. Match values
// are looked up by key: actor, user, oldname.
func piiUpdates(newName string) []piiUpdate {
	ip := func(table, col, whereCol, key string) piiUpdate {
		return piiUpdate{table: table, set: map[string]any{col: scrubbedIP}, where: map[string]string{whereCol: key}}
	}
	return []piiUpdate{
		ip("ajaxpoll_vote", "poll_ip", "poll_actor", "actor"),
		ip("Comments", "Comment_IP", "Comment_actor", "actor"),
		ip("flow_tree_revision", "tree_orig_user_ip", "tree_orig_user_id", "user"),
		ip("flow_revision", "rev_user_ip", "rev_user_id", "user"),
		ip("flow_revision", "rev_mod_user_ip", "rev_mod_user_id", "user"),
		ip("flow_revision", "rev_edit_user_ip", "rev_edit_user_id", "user"),
		{
			table: "moderation",
			set:   map[string]any{"mod_header_xff": "", "mod_header_ua": "", "mod_ip": scrubbedIP},
			where: map[string]string{"mod_user": "user"},
		},
		{
			table: "moderation",
			set:   map[string]any{"mod_user_text": newName},
			where: map[string]string{"mod_user_text": "oldname"},
		},
		ip("Vote", "vote_ip", "vote_actor", "actor"),
		ip("wikiforum_category", "wfc_added_user_ip", "wfc_added_actor", "actor"),
		ip("wikiforum_category", "wfc_edited_user_ip", "wfc_edited_actor", "actor"),
		ip("wikiforum_forums", "wff_last_post_user_ip", "wff_last_post_actor", "actor"),
		ip("wikiforum_forums", "wff_added_user_ip", "wff_added_actor", "actor"),
		ip("wikiforum_forums", "wff_edited_user_ip", "wff_edited_actor", "actor"),
		ip("wikiforum_forums", "wff_deleted_user_ip", "wff_deleted_actor", "actor"),
		ip("wikiforum_threads", "wft_user_ip", "wft_actor", "actor"),
		ip("wikiforum_threads", "wft_deleted_user_ip", "wft_deleted_actor", "actor"),
		ip("wikiforum_threads", "wft_edit_user_ip", "wft_edit_actor", "actor"),
		ip("wikiforum_threads", "wft_closed_user_ip", "wft_closed_actor", "actor"),
		ip("wikiforum_threads", "wft_last_post_user_ip", "wft_last_post_actor", "actor"),
		ip("wikiforum_replies", "wfr_user_ip", "wfr_actor", "actor"),
		ip("wikiforum_replies", "wfr_deleted_user_ip", "wfr_deleted_actor", "actor"),
		ip("wikiforum_replies", "wfr_edit_user_ip", "wfr_edit_actor", "actor"),
		ip("recentchanges", "rc_ip", "rc_actor", "actor"),
		{
			table: "user",
			set:   map[string]any{"user_email": "", "user_real_name": ""},
			where: map[string]string{"user_name": "newname"},
		},
	}
}

// RemovePII scrubs identifying data of a renamed account.
type RemovePII struct {
	noArgs
	OldName string
	NewName string
}

func (s *RemovePII) Metadata() Metadata {
	return Metadata{
		ID:          "remove-pii",
		Name:        "Remove PII",
		Description: "Removes PII information from users (e.g email addresses, ip address and other identifying information).",
	}
}

func (s *RemovePII) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.OldName, "oldname", "", "Old name")
	fs.StringVar(&s.NewName, "newname", "", "New name")
}

func (s *RemovePII) Run(ctx context.Context, env *Env) error {
	if s.OldName == "" || s.NewName == "" {
		return fatalf("--oldname and --newname are required.")
	}
	if !validUserName(s.NewName, false) {
		return fatalf("User %s does not exist!", s.NewName)
	}
	oldName := userName(s.OldName)
	newName := userName(s.NewName)

	db, err := env.wikiDB(ctx)
	if err != nil {
		return err
	}
	userID, err := db.UserID(ctx, newName)
	if errors.Is(err, store.ErrNotFound) {
		return fatalf("User %s does not exist!", s.NewName)
	}
	if err != nil {
		return err
	}
	keys := map[string]any{"user": userID, "oldname": oldName, "newname": newName}
	actorID, err := db.ActorID(ctx, newName)
	switch {
	case err == nil:
		keys["actor"] = actorID
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if ok, err := db.TableExists(ctx, "user_profile"); err != nil {
		return err
	} else if ok && keys["actor"] != nil {
		if _, err := db.Delete(ctx, "user_profile", map[string]any{"up_actor": actorID}); err != nil {
			return err
		}
	}

	var updated int64
	for _, u := range piiUpdates(newName) {
		ok, err := s.applicable(ctx, db, u)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		where := make(map[string]any, len(u.where))
		for col, key := range u.where {
			if v, ok := keys[key]; ok {
				where[col] = v
			}
		}
		if len(where) != len(u.where) {
			continue
		}
		n, err := db.Update(ctx, u.table, u.set, where)
		if err != nil {
			return err
		}
		updated += n
	}

	deleted, err := s.deleteRenameLogs(ctx, db, oldName, newName)
	if err != nil {
		return err
	}
	env.Printf("Scrubbed %d rows and deleted %d log entries for %s.\n", updated, deleted, newName)

	return s.lockCentralUser(ctx, env, newName)
}

// applicable reports whether the table and every touched column exist.
func (s *RemovePII) applicable(ctx context.Context, db *store.Store, u piiUpdate) (bool, error) {
	ok, err := db.TableExists(ctx, u.table)
	if err != nil || !ok {
		return false, err
	}
	cols := make([]string, 0, len(u.set)+len(u.where))
	for col := range u.set {
		cols = append(cols, col)
	}
	for col := range u.where {
		cols = append(cols, col)
	}
	for _, col := range cols {
		ok, err := db.ColumnExists(ctx, u.table, col)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *RemovePII) deleteRenameLogs(ctx context.Context, db *store.Store, oldName, newName string) (int64, error) {
	global, err := db.Delete(ctx, "logging", map[string]any{
		"log_type":   "gblrename",
		"log_action": "rename",
		"log_title":  "CentralAuth/" + wiki.Normalize(newName),
	})
	if err != nil {
		return 0, err
	}
	local, err := db.Delete(ctx, "logging", map[string]any{
		"log_type":   "renameuser",
		"log_action": "renameuser",
		"log_title":  wiki.Normalize(oldName),
	})
	if err != nil {
		return global, err
	}
	return global + local, nil
}

func (s *RemovePII) lockCentralUser(ctx context.Context, env *Env, name string) error {
	if env.Config.CentralAuthDatabase == "" {
		return nil
	}
	central, err := env.DB.Database(ctx, env.Config.CentralAuthDatabase)
	if err != nil {
		return err
	}
	account, err := central.CentralUser(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		env.Printf("No central account for %s.\n", name)
		return nil
	}
	if err != nil {
		return err
	}
	if err := central.ScrubCentralUser(ctx, account); err != nil {
		return err
	}
	env.Printf("Locked central account %s.\n", name)
	return nil
}
