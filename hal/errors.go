package hal

import "github.com/cockroachdb/errors"

// Backend results that callers branch on. Backends mark their native errors
// with these so errors.Is works across the boundary.
var (
	ErrOutOfMemory   = errors.New("hal: out of memory")
	ErrDeviceLost    = errors.New("hal: device lost")
	ErrNotMappable   = errors.New("hal: memory is not host visible")
	ErrPoolExhausted = errors.New("hal: descriptor pool exhausted")
)
