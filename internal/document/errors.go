package document

import "errors"

// Every error below is recoverable at the request boundary; anything else
// coming out of this package is an internal fault.
var (
	ErrValidation     = errors.New("document: validation failed")
	ErrInvalidFormat  = errors.New("document: invalid format")
	ErrNotFound       = errors.New("document: not found")
	ErrSignerNotFound = errors.New("document: signer not found or not active")
	ErrForbidden      = errors.New("document: forbidden")
	ErrInvalidState   = errors.New("document: invalid state")
	ErrAlreadySigned  = errors.New("document: already signed")
	ErrStorage        = errors.New("document: storage failure")
)
