package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/wiki"
)

const autoCreateSkipReason = "Blocking automatic account creation is not allowed"

// AbuseFilterShouldFilterAction exempts automatic account creation from
// AbuseFilter. It returns false when the action must not be filtered.
func (h *Handler) AbuseFilterShouldFilterAction(vars map[string]string, skipReasons *[]string) bool {
	if vars["action"] != "autocreateaccount" {
		return true
	}
	if skipReasons != nil {
		*skipReasons = append(*skipReasons, autoCreateSkipReason)
	}
	return false
}

// readableSpecialPages stay readable on private wikis so users can log in.
var readableSpecialPages = []string{
	"CentralAutoLogin",
	"CentralLogin",
	"ConfirmEmail",
	"CreateAccount",
	"Notifications",
	"OAuth",
	"ResetPassword",
	"Watchlist",
}

// TitleReadWhitelist reports whether title is readable without the read right.
func (h *Handler) TitleReadWhitelist(title wiki.Title) bool {
	if title.Equal(h.mainPage()) {
		return true
	}
	if !title.IsSpecial() {
		return false
	}
	root := wiki.Normalize(title.RootText())
	return slices.Contains(readableSpecialPages, root)
}

func (h *Handler) mainPage() wiki.Title {
	text := "Main Page"
	if h.messages != nil {
		if msg, ok := h.messages.Text("mainpage"); ok && msg != "" {
			text = msg
		}
	}
	return wiki.Title{Namespace: wiki.NSMain, Text: text}
}

// UserGetRightsRemove strips read on the staff wiki from registered users
// whose central account is not on the staff access list. A failed lookup
// strips read as well.
func (h *Handler) UserGetRightsRemove(ctx context.Context, user wiki.User, rights []string) (out []string, err error) {
	start := time.Now()
	defer func() { h.observe("UserGetRightsRemove", start, err) }()

	if h.cfg.DBName != h.cfg.StaffWiki || !user.Registered {
		return rights, nil
	}
	if h.db == nil {
		return withoutRead(rights), fmt.Errorf("%w: database", ErrUnavailable)
	}
	central, err := h.db.Database(ctx, h.cfg.CentralAuthDatabase)
	if err != nil {
		return withoutRead(rights), err
	}
	account, err := central.CentralUser(ctx, user.Name)
	if errors.Is(err, store.ErrNotFound) {
		return rights, nil
	}
	if err != nil {
		return withoutRead(rights), err
	}
	if h.cfg.IsStaffAccount(account.ID) {
		return rights, nil
	}
	logger := h.logger("UserGetRightsRemove")
	logger.Debug().Str("user", user.Name).Int64("central_id", account.ID).Msg("read removed on staff wiki")
	return withoutRead(rights), nil
}

func withoutRead(rights []string) []string {
	out := make([]string, 0, len(rights))
	for _, right := range rights {
		if right == "read" || slices.Contains(out, right) {
			continue
		}
		out = append(out, right)
	}
	return out
}

// GlobalUserPageWikis lists the wikis from the CreateWiki databases cache.
// ok is false when the cache file does not exist.
func (h *Handler) GlobalUserPageWikis() ([]string, bool, error) {
	data, err := os.ReadFile(filepath.Join(h.cfg.CacheDirectory, "databases.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read databases cache: %w", err)
	}
	var cache struct {
		Combi map[string]json.RawMessage `json:"combi"`
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, false, fmt.Errorf("decode databases cache: %w", err)
	}
	wikis := make([]string, 0, len(cache.Combi))
	for name := range cache.Combi {
		wikis = append(wikis, name)
	}
	slices.Sort(wikis)
	return wikis, true, nil
}

// MimeMagicInit returns extra MIME type lines.
func (h *Handler) MimeMagicInit() []string {
	return []string{"text/plain txt off"}
}
