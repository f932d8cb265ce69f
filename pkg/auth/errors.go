package auth

import "errors"

var (
	// ErrEmptyUserToken signals an absent User-Token header.
	ErrEmptyUserToken = errors.New("user token is empty")

	// ErrImproperUserToken signals a malformed User-Token header. The
	// expected format is "<uuidv4>:<api_key>".
	ErrImproperUserToken = errors.New("user token must have the form '<uuid>:<api_key>'")

	// ErrAuthenticationFailed signals an unknown user or an api key mismatch.
	// The message is deliberately generic.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationFailed signals insufficient scopes for the requested
	// resource or operation.
	ErrAuthorizationFailed = errors.New("authorization failed")
)
