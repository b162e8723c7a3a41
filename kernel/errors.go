package kernel

import "errors"

var (
	ErrInvalidKernel      = errors.New("gipuma: kernel configuration is invalid")
	ErrMalformedFrameInfo = errors.New("gipuma: malformed frame info")
	ErrInvalidFrameSize   = errors.New("gipuma: frame dimensions must be positive")
	ErrUnknownOp          = errors.New("gipuma: unknown operator")
)
