// Package tools provides command execution helpers shared by hooks and
// maintenance scripts.
//
// Ownership boundary:
// - command execution on the local host (os/exec)
//
// - command execution on a remote host over ssh
//
// - host filesystem probes built on the runner
package tools
