// Package store issues the SQL the hooks and maintenance scripts need against
// databases whose schema belongs to the wiki host.
//
// Ownership boundary:
// - registry (cw_wikis), ManageWiki rows (mw_*), echo and central auth reads/writes
// - per-cluster schema listing and database drops
// - connection pooling keyed by cluster host and database name
//
// Schema creation and migrations are owned by the host and never happen here.
package store
