// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "errors"

// Error taxonomy shared by the billing and directory clients.
//
// Leaf clients return these wrapped with %w; callers branch with errors.Is.
// Expected conditions (missing identifier, empty list) are reported as
// empty/false results, never as errors across the component boundary.
var (
	// ErrStoreUnavailable means the billing store could not be reached or
	// queried. Fatal for the current run: reconciling against an empty
	// eligible set would mass-delete the directory.
	ErrStoreUnavailable = errors.New("billing store unavailable")

	// ErrTransport is a network or protocol failure talking to the
	// directory backend, including malformed payloads.
	ErrTransport = errors.New("directory transport failure")

	// ErrRejected means the directory backend answered but reported
	// success=false.
	ErrRejected = errors.New("directory backend rejected request")

	// ErrNotFound means an identifier was absent where one was expected.
	ErrNotFound = errors.New("not found")
)
