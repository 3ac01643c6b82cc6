// Package core is the orchestration layer.  It composes listeners,
// sessions and the router into complete operational modes and provides
// a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  proto  →  session  →  core  →  cmd (CLI)
//
// The router sits beside the stack: every mode hands requests to the
// same router.Handler.
package core

import "context"

// Mode is a complete operational mode of the service (serving sockets
// or answering invocation events).  Each mode owns its full lifecycle
// from setup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
