package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// Setup failures. None of them is retried.
var (
	ErrUnsupportedLayer     = errors.New("gfx: requested layer is not available")
	ErrUnsupportedExtension = errors.New("gfx: requested extension is not available")
	ErrNoSuitableDevice     = errors.New("gfx: no suitable physical device")
	ErrIncompatibleSurface  = errors.New("gfx: surface format changed; render pass is incompatible")
)

// Resource failures.
var (
	ErrDescriptorPoolExhausted = errors.New("gfx: descriptor pool exhausted")
	ErrOutOfDeviceMemory       = errors.New("gfx: out of device memory")
	ErrNoMemoryType            = errors.New("gfx: no memory type satisfies the request")
	ErrNotHostVisible          = errors.New("gfx: buffer is not host visible")
	ErrDeviceLost              = errors.New("gfx: device lost")
)

// Invariant violations caught when debug checks are enabled.
var (
	ErrSyncMisuse       = errors.New("gfx: synchronization misuse")
	ErrUnwrittenBinding = errors.New("gfx: descriptor binding was never written")
)

// classify marks backend errors with the matching gfx sentinel and wraps
// them with the failing operation.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, hal.ErrOutOfMemory):
		err = errors.Mark(err, ErrOutOfDeviceMemory)
	case errors.Is(err, hal.ErrDeviceLost):
		err = errors.Mark(err, ErrDeviceLost)
	case errors.Is(err, hal.ErrPoolExhausted):
		err = errors.Mark(err, ErrDescriptorPoolExhausted)
	case errors.Is(err, hal.ErrNotMappable):
		err = errors.Mark(err, ErrNotHostVisible)
	}
	return errors.Wrap(err, op)
}
