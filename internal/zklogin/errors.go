package zklogin

import "errors"

var (
	// ErrCorruptKeyEncoding marks an unusable stored ephemeral key; the key
	// store recovers from it internally and never lets it escape LoadOrCreate.
	ErrCorruptKeyEncoding = errors.New("zklogin: corrupt ephemeral key encoding")
	// ErrAddressDerivation is returned when the provider SDK yields no
	// candidate addresses for an identity token.
	ErrAddressDerivation = errors.New("zklogin: no candidate address derived")
	// ErrMissingProof is returned when a composite signature is assembled
	// without proof material.
	ErrMissingProof = errors.New("zklogin: missing proof")
)
