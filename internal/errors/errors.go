package errors

import "errors"

// Session errors.
var (
	ErrUnauthorized = errors.New("session is no longer valid")
	ErrEmptyToken   = errors.New("backend returned an empty access token")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
