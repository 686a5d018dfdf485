package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "quit", EventQuit.String())
	assert.Equal(t, "resized", EventResized.String())
	assert.Equal(t, "minimized", EventMinimized.String())
	assert.Equal(t, "restored", EventRestored.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
