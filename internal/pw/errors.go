// Package pw talks to the PipeWire server through its command-line tools:
// one long-running `pw-dump --monitor` subprocess streams the registry
// snapshot followed by incremental updates, and `pw-link` performs link
// creation and destruction. Keeping the protocol behind the CLI avoids a
// cgo dependency on libpipewire while preserving the full object model.
package pw

import (
	"errors"
	"fmt"
)

// ErrAlreadyLinked is returned by CreateLink when the server reports the
// port pair is already connected. Callers treat it as success.
var ErrAlreadyLinked = errors.New("ports already linked")

// LinkRejectedError is a typed server rejection of a link request, for
// example a format mismatch between the ports. Reconciliation logs these
// per pair and carries on.
type LinkRejectedError struct {
	Source string
	Sink   string
	Reason string
}

func (e *LinkRejectedError) Error() string {
	return fmt.Sprintf("link %s -> %s rejected: %s", e.Source, e.Sink, e.Reason)
}

// IsRejected reports whether err is a server link rejection.
func IsRejected(err error) bool {
	var rejected *LinkRejectedError
	return errors.As(err, &rejected)
}
