package hooks

import (
	"html"
	"slices"
	"strings"

	"github.com/danmuck/magicctl/internal/wiki"
)

// overridableMessages are the core messages the farm rewords under a
// miraheze- prefixed key.
var overridableMessages = []string{
	"centralauth-groupname",
	"dberr-problems",
	"dberr-again",
	"globalblocking-ipblocked",
	"globalblocking-ipblocked-range",
	"globalblocking-ipblocked-xff",
	"privacypage",
	"prefs-help-realname",
	"newsignuppage-loginform-tos",
	"newsignuppage-must-accept-tos",
	"importtext",
	"importdump-help-reason",
	"importdump-help-target",
	"importdump-help-upload-file",
	"oathauth-step1",
	"centralauth-merge-method-admin-desc",
	"centralauth-merge-method-admin",
	"restriction-protect",
	"restriction-delete",
	"wikibase-sitelinks-miraheze",
	"centralauth-login-error-locked",
	"snapwikiskin",
	"skinname-snapwikiskin",
	"uploadtext",
	"group-checkuser",
	"group-checkuser-member",
	"grouppage-checkuser",
	"group-bureaucrat",
	"grouppage-bureaucrat",
	"group-bureaucrat-member",
	"group-sysop",
	"grouppage-sysop",
	"group-sysop-member",
	"group-interface-admin",
	"grouppage-interface-admin",
	"group-interface-admin-member",
	"group-bot",
	"grouppage-bot",
	"group-bot-member",
	"grouppage-user",
}

// MessageCacheGet maps an overridable key to its miraheze- variant unless a
// local MediaWiki: page already overrides the plain key.
func (h *Handler) MessageCacheGet(key string) string {
	if !slices.Contains(overridableMessages, key) {
		return key
	}
	if h.messages != nil && h.messages.PageExists(wiki.UcFirst(key), h.cfg.LanguageCode) {
		return key
	}
	return "miraheze-" + key
}

// SkinAddFooterLinks adds the terms of service and donation links to the
// places footer.
func (h *Handler) SkinAddFooterLinks(key string, items map[string]string) {
	if key != "places" {
		return
	}
	items["termsofservice"] = h.footerLink("termsofservice", "termsofservicepage")
	items["donate"] = h.footerLink("miraheze-donate", "miraheze-donatepage")
}

func (h *Handler) footerLink(desc, page string) string {
	if h.messages == nil {
		return ""
	}
	label, ok := h.messages.Text(desc)
	if !ok {
		return ""
	}
	target, ok := h.messages.Text(page)
	target = strings.TrimSpace(target)
	if !ok || target == "" {
		return ""
	}
	href := "/wiki/" + titleEncoder.Replace(urlencode(wiki.Normalize(target)))
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + `</a>`
}

// titleEncoder restores the characters article paths leave readable.
var titleEncoder = strings.NewReplacer(
	"%3B", ";", "%40", "@", "%24", "$", "%21", "!", "%2A", "*",
	"%28", "(", "%29", ")", "%2C", ",", "%2F", "/", "%7E", "~", "%3A", ":",
)

const (
	noticeOpen = `<div class="wikitable" style="text-align: center; width: 90%; margin-left: auto; margin-right:auto; padding: 15px; border: 4px solid black; background-color: #EEE;"> <span class="plainlinks"> <img src="https://`
	noticeIcon = `" align="left" style="width:80px;height:90px;">`
	noticeEnd  = `</span></div>`

	lockIcon     = "/metawiki/0/02/Wiki_lock.png"
	inactiveIcon = "/metawiki/5/5f/Out_of_date_clock_icon.png"
)

// SiteNoticeAfter appends the closed or inactive banner for the wiki state.
func (h *Handler) SiteNoticeAfter(notice string, state wiki.State) string {
	var icon, key string
	switch {
	case state.Closed:
		icon, key = lockIcon, "miraheze-sitenotice-closed"
	case state.IsInactive():
		icon, key = inactiveIcon, "miraheze-sitenotice-inactive"
	default:
		return notice
	}
	if state.Private {
		key += "-private"
	}
	text := key
	if h.messages != nil {
		if msg, ok := h.messages.Text(key); ok {
			text = msg
		}
	}
	return notice + noticeOpen + h.cfg.StaticHost + icon + noticeIcon + text + noticeEnd
}
