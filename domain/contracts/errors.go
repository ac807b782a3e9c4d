// Package contracts defines the repository and client interfaces the
// application and workflow layers depend on, plus the error sentinels the
// provider client categorizes its failures into.
package contracts

import "errors"

var (
	// ErrNotFound means the target resource already vanished upstream.
	// Expected absence, not a failure, on leaf fetches and deletes.
	ErrNotFound = errors.New("resource not found")

	// ErrRetryLater covers throttling and transient provider failures.
	ErrRetryLater = errors.New("temporary provider error, retry later")

	// ErrInvalidRequest means the request was malformed or rejected and
	// retrying it unchanged cannot succeed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrReauthRequired means the organisation's credential was rejected
	// and needs the external refresh flow.
	ErrReauthRequired = errors.New("reauthentication required")
)
