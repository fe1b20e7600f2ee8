// Package swift manages the object-storage containers that hold each wiki's
// media.
//
// Ownership boundary:
// - container naming (prefix-dbname-zone) and parsing
// - Backend implementations: the swift CLI and the goose client
// - wiki-level container lifecycle (delete, rename) in Manager
//
// Auth policy and container ACLs beyond private creation belong to the
// storage cluster, not to this package.
package swift
