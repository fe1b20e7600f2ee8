// Package hooks implements the wiki host's extension points for the farm.
//
// Ownership boundary:
//   - CreateWiki lifecycle side effects (static dirs, swift containers, echo and
//     ManageWiki rows, job-queue keys)
//   - link, redirect, message and footer rewriting
//   - read whitelist, rights removal and site notices
//   - log-action emails
//
// Every dependency is an interface so the host glue (hookd, magicctl, tests)
// decides which services are live. Multi-step hooks are best effort: every
// step runs and the step failures are joined.
package hooks
