package common

import "errors"

var (
	// lookup errors
	ErrNotFound = errors.New("not found")

	// request errors
	ErrInvalidKey      = errors.New("invalid image key")
	ErrInvalidImage    = errors.New("invalid image")
	ErrInvalidBridgeID = errors.New("invalid bridge id")
	ErrQuotaExceeded   = errors.New("upload quota exceeded")

	// admin gate errors
	ErrUnauthorized = errors.New("unauthorized")
)
