package storage

import "errors"

// ErrNotFound is returned when a group (or content blob) does not exist in
// any consulted backend. Distinct from ErrAccessDenied so callers can tell
// "this does not exist" from "you may not see this".
var ErrNotFound = errors.New("not found")

// ErrAccessDenied is returned when the caller's wallet address fails the
// access check. Never retried.
var ErrAccessDenied = errors.New("access denied")

// ErrDuplicateGroup is returned by a create when the group id already
// exists. Non-fatal: the create path resolves it by returning the existing
// record, so well-behaved callers never see it.
var ErrDuplicateGroup = errors.New("group already exists")

// ErrStoreUnavailable is returned once every endpoint of a backend has
// failed. Retryable by the caller.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrTimeout is returned when an outbound call exceeds its deadline. Never
// retried silently.
var ErrTimeout = errors.New("operation timed out")

// ErrInvalidArgument is returned for malformed addresses or payloads
// rejected at the boundary.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrInviteUsed is returned when joining with an invite code that has
// already been consumed.
var ErrInviteUsed = errors.New("invite code already used")

// ErrInviteExpired is returned when joining with an invite code past its
// expiry, even if unused.
var ErrInviteExpired = errors.New("invite code expired")

// ErrGroupFull is returned when joining a group that has reached its
// member limit.
var ErrGroupFull = errors.New("group is full")
