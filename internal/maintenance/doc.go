// Package maintenance holds the operator scripts run through magicctl.
//
// Ownership boundary:
// - script contract, metadata registry and execution env
// - registry, cluster and object-storage consistency checks
// - per-wiki data repair (PII, image ownership, settings, caches)
// - operator-triggered CreateWiki hooks
//
// Scripts write progress text to Env.Out. Fatal conditions are returned as
// *FatalError and carry the process exit code.
package maintenance
