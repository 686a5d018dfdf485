package gfx

import (
	"github.com/emberkit/ember/hal"
)

// Surface is the presentable target created from a window.
type Surface struct {
	handle hal.Surface
	inst   hal.Instance
	win    hal.Window
}

func createSurface(inst hal.Instance, win hal.Window) (*Surface, error) {
	h, err := inst.CreateSurface(win)
	if err != nil {
		return nil, classify(err, "create surface")
	}
	return &Surface{handle: h, inst: inst, win: win}, nil
}

func (s *Surface) Handle() hal.Surface { return s.handle }

// PixelSize returns the current drawable size of the window. A zero
// dimension means the window is minimized.
func (s *Surface) PixelSize() (int, int) {
	return s.win.PixelSize()
}

func (s *Surface) destroy() {
	if s == nil || s.handle == 0 {
		return
	}
	s.inst.DestroySurface(s.handle)
	s.handle = 0
}
