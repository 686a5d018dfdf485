package gfx

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/internal/fakehal"
)

func TestUploadBufferRoundTrip(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)

	for _, usage := range []BufferUsage{BufferVertex, BufferIndex, BufferUniform} {
		t.Run(usage.String(), func(t *testing.T) {
			b, err := r.dev.UploadBuffer(usage, data)
			require.NoError(t, err)
			defer b.Destroy()

			assert.Equal(t, len(data), b.Size())
			got, err := r.dev.ReadBuffer(b)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestUploadBufferReleasesStaging(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	before := r.fake.Live()

	b, err := r.dev.UploadBuffer(BufferVertex, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	after := r.fake.Live()
	assert.Equal(t, before[fakehal.KindBuffer]+1, after[fakehal.KindBuffer])
	assert.Equal(t, before[fakehal.KindCommandBuffer], after[fakehal.KindCommandBuffer])
	assert.Equal(t, before[fakehal.KindFence], after[fakehal.KindFence])

	b.Destroy()
	assert.Equal(t, before, r.fake.Live())
}

func TestUploadBufferRejectsEmpty(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	_, err := r.dev.UploadBuffer(BufferVertex, nil)
	assert.Error(t, err)
}

func TestWriteDeviceLocalBuffer(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	b, err := r.dev.CreateBuffer(BufferVertex, 64)
	require.NoError(t, err)
	defer b.Destroy()

	err = b.Write(make([]byte, 16))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotHostVisible))
}

func TestWriteBufferTooLarge(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	b, err := r.dev.CreateBuffer(BufferUniform, 16)
	require.NoError(t, err)
	defer b.Destroy()
	assert.Error(t, b.Write(make([]byte, 17)))
}

func TestCreateBufferOutOfMemory(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	before := r.fake.Live()
	r.fake.FailAllocations = true

	_, err := r.dev.CreateBuffer(BufferUniform, 256)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfDeviceMemory))
	assert.Equal(t, before, r.fake.Live())

	_, err = r.dev.UploadTexture([]byte{1, 2, 3, 4}, 1, 1, 4)
	assert.True(t, errors.Is(err, ErrOutOfDeviceMemory))
	assert.Equal(t, before, r.fake.Live())
}

func TestFindMemoryType(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	pd := r.dev.PhysicalDevice()

	idx, err := pd.FindMemoryType(0b11, hal.MemoryHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = pd.FindMemoryType(0b11, hal.MemoryDeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = pd.FindMemoryType(0b01, hal.MemoryHostVisible)
	assert.True(t, errors.Is(err, ErrNoMemoryType))
}

func TestExpandRGBA(t *testing.T) {
	tests := []struct {
		name     string
		pixels   []byte
		channels int
		want     []byte
	}{
		{"grey", []byte{10, 20}, 1, []byte{10, 10, 10, 0xff, 20, 20, 20, 0xff}},
		{"grey alpha", []byte{10, 1, 20, 2}, 2, []byte{10, 10, 10, 1, 20, 20, 20, 2}},
		{"rgb", []byte{1, 2, 3, 4, 5, 6}, 3, []byte{1, 2, 3, 0xff, 4, 5, 6, 0xff}},
		{"rgba", []byte{1, 2, 3, 4, 5, 6, 7, 8}, 4, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRGBA(tt.pixels, 2, 1, tt.channels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExpandRGBA([]byte{1, 2, 3}, 2, 1, 1)
	assert.Error(t, err)
	_, err = ExpandRGBA(nil, 0, 1, 4)
	assert.Error(t, err)
	_, err = ExpandRGBA(make([]byte, 10), 2, 1, 5)
	assert.Error(t, err)
}

func TestUploadTextureTransitionsLayout(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	pixels := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	}

	tex, err := r.dev.UploadTexture(pixels, 2, 2, 3)
	require.NoError(t, err)
	defer tex.Destroy()

	w, h := tex.Size()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	assert.NotZero(t, tex.Sampler())

	var mine []hal.ImageBarrier
	for _, b := range r.fake.Barriers() {
		if b.Image == tex.Image() {
			mine = append(mine, b)
		}
	}
	require.Len(t, mine, 2)
	assert.Equal(t, hal.LayoutUndefined, mine[0].OldLayout)
	assert.Equal(t, hal.LayoutTransferDst, mine[0].NewLayout)
	assert.Equal(t, hal.LayoutTransferDst, mine[1].OldLayout)
	assert.Equal(t, hal.LayoutShaderReadOnly, mine[1].NewLayout)
	assert.Equal(t, hal.StageFragmentShader, mine[1].DstStage)

	assert.Equal(t, hal.LayoutShaderReadOnly, r.fake.ImageLayout(tex.Image()))
	assert.Equal(t, []byte{
		255, 0, 0, 0xff, 0, 255, 0, 0xff,
		0, 0, 255, 0xff, 255, 255, 255, 0xff,
	}, r.fake.ImageData(tex.Image()))
	assert.Equal(t, 1, r.fake.Stats().ImageCopies)
}

func TestTextureDestroyReleasesEverything(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	before := r.fake.Live()

	tex, err := r.dev.UploadTexture([]byte{0x80}, 1, 1, 1)
	require.NoError(t, err)
	tex.Destroy()
	tex.Destroy()
	assert.Equal(t, before, r.fake.Live())
}
