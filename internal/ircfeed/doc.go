// Package ircfeed formats recent changes as IRC colour-coded lines and sends
// them to the configured UDP relays.
package ircfeed
