// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.
//
// loro-go-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// loro-go-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with loro-go-core. If not, see <http://www.gnu.org/licenses/>.

package common

import "errors"

// Tier 3 — operational precondition errors. Returned as-is; no state
// mutation precedes them.
var (
	ErrUndoGroupAlreadyStarted = errors.New("undo group already started")
	ErrCASFailed               = errors.New("compare-and-swap failed: stored value did not match old")
)

// Tier 2 — causal errors. Surfaced alongside a best-effort result, never in
// place of one (callers still get the version vector reflecting whatever
// did apply).
var (
	ErrImportUpdatesOutdatedVersion = errors.New("import depends on a version older than the shallow root")
	ErrUnknownDepPeer               = errors.New("change depends on an id from a peer never observed")
)

// Tier 1 — data-integrity errors. Always surfaced, never recovered;
// decoding is all-or-nothing.
var (
	ErrDecodeChecksumMismatch = errors.New("checksum mismatch")
	ErrBadMagic               = errors.New("bad magic bytes")
	ErrBadSchemaVersion       = errors.New("unsupported schema version")
	ErrTruncated              = errors.New("truncated input")
	ErrBlockCountTooLarge     = errors.New("block count exceeds sanity limit")
	ErrUnsupportedOutdated    = errors.New("outdated blob format is not supported by this codec")
)

// DecodeError wraps a tier-1 failure with a human-readable reason, keeping
// the original sentinel reachable via errors.Is/errors.Unwrap.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode error: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode error: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError builds a DecodeError, defaulting Err to a generic sentinel
// when the caller has no more specific cause to attach.
func NewDecodeError(reason string, cause error) *DecodeError {
	if cause == nil {
		cause = errors.New("decode failed")
	}
	return &DecodeError{Reason: reason, Err: cause}
}
