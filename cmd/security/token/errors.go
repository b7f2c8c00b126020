package token

import "errors"

// Public, stable errors for callers.
var (
	ErrScopeKeyMissing  = errors.New("scope hash key missing")
	ErrScopeKeyTooShort = errors.New("scope hash key too short")
	ErrScopeKeyTooLong  = errors.New("scope hash key too long")
	ErrRandom           = errors.New("random source failed")
)
