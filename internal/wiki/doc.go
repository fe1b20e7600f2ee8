// Package wiki holds the plain values hooks receive from the wiki host:
// titles, users, recent changes and per-wiki state flags.
package wiki
