package totp

import "errors"

var (
	ErrInvalidFormat      = errors.New("code must be 6 digits")
	ErrInvalidSecret      = errors.New("secret is not valid base32")
	ErrMissingSecret      = errors.New("missing secret")
	ErrMissingIssuer      = errors.New("missing issuer")
	ErrMissingAccountName = errors.New("missing account name")
	ErrRandomSource       = errors.New("failed reading from random source")
)
