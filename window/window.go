// Package window opens an SDL2 window that the vulkan backend can present
// to.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
)

// EventKind classifies window events the render loop cares about.
type EventKind int

const (
	EventQuit EventKind = iota
	EventResized
	EventMinimized
	EventRestored
)

func (k EventKind) String() string {
	switch k {
	case EventQuit:
		return "quit"
	case EventResized:
		return "resized"
	case EventMinimized:
		return "minimized"
	case EventRestored:
		return "restored"
	}
	return "unknown"
}

// Event is a window event. Width and Height are the drawable size in
// pixels for EventResized.
type Event struct {
	Kind          EventKind
	Width, Height int
}

// Window is a resizable SDL2 window created for Vulkan rendering. SDL must
// be driven from the thread that created the window.
type Window struct {
	sdl *sdl.Window
}

// Open initialises SDL video and creates the window.
func Open(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}
	w, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &Window{sdl: w}, nil
}

// Handle returns the *sdl.Window.
func (w *Window) Handle() any { return w.sdl }

// PixelSize is the drawable size. A minimized window reports 0x0.
func (w *Window) PixelSize() (int, int) {
	if w.sdl.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.sdl.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *Window) InstanceExtensions() []string {
	return w.sdl.VulkanGetInstanceExtensions()
}

func (w *Window) SetTitle(title string) { w.sdl.SetTitle(title) }

// PollEvents drains the SDL event queue.
func (w *Window) PollEvents() []Event {
	var out []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			out = append(out, Event{Kind: EventQuit})
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				out = append(out, Event{Kind: EventQuit})
			}
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				out = append(out, Event{Kind: EventMinimized})
			case sdl.WINDOWEVENT_RESTORED:
				out = append(out, Event{Kind: EventRestored})
			case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
				width, height := w.PixelSize()
				out = append(out, Event{Kind: EventResized, Width: width, Height: height})
			}
		}
	}
	return out
}

// Close destroys the window and shuts SDL down.
func (w *Window) Close() {
	if w.sdl != nil {
		w.sdl.Destroy()
		w.sdl = nil
	}
	sdl.Quit()
}
