package ircfeed

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

const (
	// HiddenRenameGroup members do not have their renameuser entries broadcast.
	HiddenRenameGroup = "trustandsafety"

	bold      = "\x02"
	colour    = "\x03"
	bigShrink = -500
)

// GroupLookup resolves the global groups of an account.
type GroupLookup interface {
	GlobalGroups(ctx context.Context, name string) ([]string, error)
}

// Formatter renders RecentChange values as IRC lines.
type Formatter struct {
	cfg    config.IRC
	groups GroupLookup
}

func NewFormatter(cfg config.IRC, groups GroupLookup) *Formatter {
	return &Formatter{cfg: cfg, groups: groups}
}

// Line formats rc for feed. It returns false when the change must not be
// broadcast.
func (f *Formatter) Line(ctx context.Context, feed config.Feed, rc wiki.RecentChange, actionComment string) (string, bool) {
	if rc.Type == wiki.ChangeCategorize {
		return "", false
	}
	if rc.Type == wiki.ChangeLog && rc.LogType == "renameuser" && f.hiddenRename(ctx, rc.UserText) {
		return "", false
	}

	var title string
	if rc.Type == wiki.ChangeLog {
		title = wiki.Title{Namespace: wiki.NSSpecial, Text: "Log/" + rc.LogType}.PrefixedText()
	} else {
		title = rc.Title.PrefixedText()
	}
	title = CleanupForIRC(title)

	patrolling := f.cfg.UseRCPatrol || (rc.Type == wiki.ChangeNew && f.cfg.UseNPPatrol)

	url := ""
	if rc.Type != wiki.ChangeLog {
		var query string
		if rc.Type == wiki.ChangeNew {
			query = "?oldid=" + strconv.FormatInt(rc.ThisOldID, 10)
		} else {
			query = "?diff=" + strconv.FormatInt(rc.ThisOldID, 10) + "&oldid=" + strconv.FormatInt(rc.LastOldID, 10)
		}
		if patrolling {
			query += "&rcid=" + strconv.FormatInt(rc.ID, 10)
		}
		url = f.cfg.CanonicalServer + f.cfg.Script + query
	}

	user := CleanupForIRC(rc.UserText)

	var comment, flag string
	if rc.Type == wiki.ChangeLog {
		target := rc.Title.PrefixedText()
		comment = CleanupForIRC(strings.ReplaceAll(actionComment,
			"[["+target+"]]",
			"[["+colour+"02"+target+colour+"10]]"))
		flag = rc.LogAction
	} else {
		comment = CleanupForIRC(rc.Comment)
		if !rc.Patrolled && patrolling {
			flag += "!"
		}
		if rc.Type == wiki.ChangeNew {
			flag += "N"
		}
		if rc.Minor {
			flag += "M"
		}
		if rc.Bot {
			flag += "B"
		}
	}

	var titleString string
	if prefix, ok := f.interwikiPrefix(feed); ok {
		titleString = colour + "14[[" + colour + "03" + prefix + ":" + colour + "07" + title + colour + "14]]"
	} else {
		titleString = colour + "14[[" + colour + "07" + title + colour + "14]]"
	}

	var b strings.Builder
	b.WriteString(titleString)
	b.WriteString(colour + "4 " + flag + colour + "10 ")
	b.WriteString(colour + "02" + url + colour + " ")
	b.WriteString(colour + "5*" + colour + " ")
	b.WriteString(colour + "03" + user + colour + " ")
	b.WriteString(colour + "5*" + colour + " ")
	b.WriteString(SizeDiff(rc.OldLen, rc.NewLen) + " ")
	b.WriteString(colour + "10" + comment + colour + "\n")
	return b.String(), true
}

// SizeDiff renders the byte delta, bolding large removals. Unknown lengths
// render as an empty string.
func SizeDiff(oldLen, newLen *int) string {
	if oldLen == nil || newLen == nil {
		return ""
	}
	diff := *newLen - *oldLen
	s := strconv.Itoa(diff)
	switch {
	case diff < bigShrink:
		s = bold + s + bold
	case diff >= 0:
		s = "+" + s
	}
	return "(" + s + ")"
}

// charReference matches terminated references only. "&amp" without the
// semicolon stays literal.
var charReference = regexp.MustCompile(`&(?:[A-Za-z0-9]+|#[0-9]+|#[xX][0-9A-Fa-f]+);`)

// CleanupForIRC decodes character references, turns newlines into spaces and
// drops carriage returns.
func CleanupForIRC(text string) string {
	text = charReference.ReplaceAllStringFunc(text, decodeReference)
	return strings.NewReplacer("\n", " ", "\r", "").Replace(text)
}

// decodeReference returns ref unchanged when it names no entity or an invalid
// code point.
func decodeReference(ref string) string {
	body := ref[1 : len(ref)-1]
	if !strings.HasPrefix(body, "#") {
		decoded := html.UnescapeString(ref)
		// A partial match like "&ampx;" decodes only its prefix.
		if decoded == ref || (strings.HasSuffix(decoded, ";") && body != "semi") {
			return ref
		}
		return decoded
	}
	digits, base := body[1:], 10
	if digits[0] == 'x' || digits[0] == 'X' {
		digits, base = digits[1:], 16
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil || !validCodepoint(rune(n)) {
		return ref
	}
	return string(rune(n))
}

func validCodepoint(r rune) bool {
	return r == 0x09 || r == 0x0a || r == 0x0d ||
		(r >= 0x20 && r <= 0xd7ff) ||
		(r >= 0xe000 && r <= 0xfffd) ||
		(r >= 0x10000 && r <= 0x10ffff)
}

func (f *Formatter) interwikiPrefix(feed config.Feed) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(feed.InterwikiPrefix)) {
	case "", "false":
		return "", false
	case "true":
		if len(f.cfg.LocalInterwikis) == 0 {
			return "", false
		}
		return f.cfg.LocalInterwikis[0], true
	default:
		return feed.InterwikiPrefix, true
	}
}

func (f *Formatter) hiddenRename(ctx context.Context, user string) bool {
	if f.groups == nil {
		return false
	}
	groups, err := f.groups.GlobalGroups(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("global group lookup failed")
		return false
	}
	return slices.Contains(groups, HiddenRenameGroup)
}
