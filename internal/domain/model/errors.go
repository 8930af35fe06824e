package model

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrUnknownStrategy  = errors.New("unknown strategy")
)
