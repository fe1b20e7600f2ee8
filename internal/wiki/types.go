package wiki

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namespace numbers used by the hooks.
const (
	NSSpecial   = -1
	NSMain      = 0
	NSMediaWiki = 8
)

// ChangeType mirrors the host's rc_type values.
type ChangeType int

const (
	ChangeEdit       ChangeType = 0
	ChangeNew        ChangeType = 1
	ChangeLog        ChangeType = 3
	ChangeExternal   ChangeType = 5
	ChangeCategorize ChangeType = 6
)

func (c ChangeType) String() string {
	switch c {
	case ChangeEdit:
		return "edit"
	case ChangeNew:
		return "new"
	case ChangeLog:
		return "log"
	case ChangeExternal:
		return "external"
	case ChangeCategorize:
		return "categorize"
	default:
		return "unknown"
	}
}

// Title is a page title split into namespace and text.
type Title struct {
	Namespace int    `json:"namespace"`
	Text      string `json:"text"`
	// NamespaceName is the localized namespace prefix, empty for main.
	NamespaceName string `json:"namespace_name,omitempty"`
}

// PrefixedText renders the title the way it is shown to readers.
func (t Title) PrefixedText() string {
	text := strings.ReplaceAll(t.Text, "_", " ")
	prefix := t.NamespaceName
	if prefix == "" {
		switch t.Namespace {
		case NSSpecial:
			prefix = "Special"
		case NSMediaWiki:
			prefix = "MediaWiki"
		}
	}
	if prefix == "" {
		return text
	}
	return prefix + ":" + text
}

func (t Title) IsSpecial() bool {
	return t.Namespace == NSSpecial
}

// RootText returns the text before the first slash.
func (t Title) RootText() string {
	root, _, _ := strings.Cut(t.Text, "/")
	return root
}

// Equal compares titles the way the host does: namespace and normalized text.
func (t Title) Equal(other Title) bool {
	return t.Namespace == other.Namespace && Normalize(t.Text) == Normalize(other.Text)
}

// Normalize converts spaces to underscores and upper-cases the first letter.
func Normalize(text string) string {
	return UcFirst(strings.ReplaceAll(strings.TrimSpace(text), " ", "_"))
}

// UcFirst upper-cases the first rune.
func UcFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// User is the acting user as seen by the host.
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
}

// RecentChange carries the rc_* attributes the feed and log-email hooks read.
type RecentChange struct {
	ID        int64      `json:"rc_id"`
	Type      ChangeType `json:"rc_type"`
	Title     Title      `json:"title"`
	UserText  string     `json:"rc_user_text"`
	Comment   string     `json:"rc_comment_text"`
	LogType   string     `json:"rc_log_type,omitempty"`
	LogAction string     `json:"rc_log_action,omitempty"`
	ThisOldID int64      `json:"rc_this_oldid"`
	LastOldID int64      `json:"rc_last_oldid"`
	OldLen    *int       `json:"rc_old_len,omitempty"`
	NewLen    *int       `json:"rc_new_len,omitempty"`
	Patrolled bool       `json:"rc_patrolled"`
	Minor     bool       `json:"rc_minor"`
	Bot       bool       `json:"rc_bot"`
}

// State is the CreateWiki status of the current wiki.
type State struct {
	Closed  bool `json:"closed"`
	Private bool `json:"private"`
	// Inactive is "", "true"/"1" or "exempt".
	Inactive string `json:"inactive"`
}

// IsInactive reports whether the inactive notice applies.
func (s State) IsInactive() bool {
	switch strings.ToLower(strings.TrimSpace(s.Inactive)) {
	case "", "0", "false", "exempt":
		return false
	default:
		return true
	}
}
