package hooks

import (
	"net/url"
	"strings"
)

// LinkResult is the rewritten anchor for a global interwiki link.
type LinkResult struct {
	Text  string `json:"text"`
	Href  string `json:"href"`
	Class string `json:"class"`
	Title string `json:"title"`
}

const interwikiPrefix = "mh"

// HTMLPageLinkRendererEnd turns [[mh:wiki:Page]] (optionally namespaced as
// 0:mh:wiki:Page) into a link to that wiki. ok is false for other targets.
func (h *Handler) HTMLPageLinkRendererEnd(target, text string) (LinkResult, bool) {
	tooltip := target
	// An unpiped link shows its target; only then is the text replaced.
	useText := strings.ToLower(target) != strings.ToLower(text)

	parts := strings.Split(target, ":")
	if len(parts) < 2 {
		return LinkResult{}, false
	}
	if parts[0] == "0" {
		parts = parts[1:]
	}
	if len(parts) < 2 || strings.ToLower(parts[0]) != interwikiPrefix {
		return LinkResult{}, false
	}

	wikiName := strings.ToLower(parts[1])
	page := strings.Join(parts[2:], ":")
	if !useText {
		text = page
	}
	if text == "" {
		text = wikiName
	}
	return LinkResult{
		Text:  text,
		Href:  h.wikiURL(wikiName, page),
		Class: "extiw",
		Title: tooltip,
	}, true
}

// InitializeArticleMaybeRedirect returns the hard redirect for a page titled
// mh:wiki:Page.
func (h *Handler) InitializeArticleMaybeRedirect(title string) (string, bool) {
	parts := strings.Split(title, ":")
	if len(parts) < 3 || strings.ToLower(parts[0]) != interwikiPrefix {
		return "", false
	}
	return h.wikiURL(strings.ToLower(parts[1]), strings.Join(parts[2:], ":")), true
}

func (h *Handler) wikiURL(wikiName, page string) string {
	return "https://" + wikiName + "." + h.cfg.Domain + "/wiki/" + urlencode(strings.ReplaceAll(page, " ", "_"))
}

// urlencode matches form encoding with "~" escaped as well.
func urlencode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "~", "%7E")
}
