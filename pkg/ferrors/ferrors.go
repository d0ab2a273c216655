// Package ferrors defines the sentinel error categories used across the
// module (spec §7): transport, protocol, predicate evaluation, local I/O,
// remote command, timeout, and validation. A package wraps one of these
// with fmt.Errorf's %w so a caller can classify the failure with
// errors.Is. pkg/alias and pkg/controller wrap ErrValidation this way;
// the other packages return their own wrapped errors (pkg/store, for
// one, defines its own ErrNotFound).
//
// This is the one ambient concern built on the standard library rather
// than a third-party errors package: the corpus's error libraries
// (pkg/errors-style stack traces, multierror aggregation) solve problems
// this module doesn't have — every error here is already attributed to
// exactly one verb/query and wrapped at exactly one layer, so stdlib
// error wrapping is sufficient and nothing upstream needs a stack trace.
package ferrors

import "errors"

var (
	// ErrTransport covers bus publish/subscribe/disconnect failures.
	ErrTransport = errors.New("transport error")
	// ErrProtocol covers malformed envelopes, unknown verbs, seq mismatches.
	ErrProtocol = errors.New("protocol error")
	// ErrPredicate covers predicate type mismatches during evaluation.
	ErrPredicate = errors.New("predicate evaluation error")
	// ErrLocalIO covers store read/write and file transfer failures.
	ErrLocalIO = errors.New("local I/O error")
	// ErrRemoteCommand covers a nonzero exit code from a run/launch/spawn.
	ErrRemoteCommand = errors.New("remote command error")
	// ErrTimeout covers watchdog expiry with an incomplete group.
	ErrTimeout = errors.New("timeout")
	// ErrValidation covers invalid key names, reserved keys, missing
	// required arguments.
	ErrValidation = errors.New("validation error")
)
