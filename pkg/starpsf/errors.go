package starpsf

import "errors"

var (
	// ErrConfiguration reports an unsupported or inconsistent setup, such as a
	// model evaluated with a context dimensionality other than 2.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrRange reports an index or length outside the declared bounds.
	ErrRange = errors.New("out of range")

	// ErrResourceExhausted reports a sample or buffer allocation that exceeds
	// the configured limits. No partial state is kept when it is returned.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrUnknownFormat reports an encoded model whose type tag or version has
	// no registered decoder.
	ErrUnknownFormat = errors.New("unknown model format")
)
