package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// Fence is a host-visible completion signal. With debug checks enabled it
// tracks whether a signal is pending so a wait that could never return is
// reported as ErrSyncMisuse instead of hanging.
type Fence struct {
	dev    *LogicalDevice
	handle hal.Fence
	// armed is true while the fence is signaled or has a submission
	// pending that will signal it.
	armed bool
}

func (d *LogicalDevice) createFence(signaled bool) (*Fence, error) {
	h, err := d.hal.CreateFence(signaled)
	if err != nil {
		return nil, classify(err, "create fence")
	}
	return &Fence{dev: d, handle: h, armed: signaled}, nil
}

func (f *Fence) Handle() hal.Fence { return f.handle }

// Wait blocks until the fence signals. There is no timeout.
func (f *Fence) Wait() error {
	if f.dev.debug && !f.armed {
		return errors.Wrap(ErrSyncMisuse, "wait on a fence that was never submitted")
	}
	return classify(f.dev.hal.WaitForFences(f.handle), "wait for fence")
}

// Reset returns the fence to the unsignaled state. It must only be reset
// immediately before the submission that will signal it again.
func (f *Fence) Reset() error {
	if err := f.dev.hal.ResetFences(f.handle); err != nil {
		return classify(err, "reset fence")
	}
	f.armed = false
	return nil
}

// Signaled polls the fence without blocking.
func (f *Fence) Signaled() (bool, error) {
	ok, err := f.dev.hal.FenceSignaled(f.handle)
	return ok, classify(err, "query fence")
}

func (f *Fence) submitted() { f.armed = true }

func (f *Fence) Destroy() {
	if f == nil || f.handle == 0 {
		return
	}
	f.dev.hal.DestroyFence(f.handle)
	f.handle = 0
}

// Semaphore orders GPU work; the host never waits on it.
type Semaphore struct {
	dev    *LogicalDevice
	handle hal.Semaphore
}

func (d *LogicalDevice) createSemaphore() (*Semaphore, error) {
	h, err := d.hal.CreateSemaphore()
	if err != nil {
		return nil, classify(err, "create semaphore")
	}
	return &Semaphore{dev: d, handle: h}, nil
}

func (s *Semaphore) Handle() hal.Semaphore { return s.handle }

func (s *Semaphore) Destroy() {
	if s == nil || s.handle == 0 {
		return
	}
	s.dev.hal.DestroySemaphore(s.handle)
	s.handle = 0
}
