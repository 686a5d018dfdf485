package gfx

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/internal/fakehal"
	"github.com/emberkit/ember/shader"
)

func TestFrameWithoutObjectsPresentsClear(t *testing.T) {
	r := newRig(t, DeviceConfig{ClearColor: [4]float32{0.1, 0.2, 0.3, 1}})

	require.True(t, r.frame(t, nil))

	stats := r.fake.Stats()
	assert.Equal(t, 1, stats.RenderPasses)
	assert.Zero(t, stats.Draws)
	assert.Equal(t, 1, stats.Presents)
	assert.Equal(t, []int{0}, r.fake.Presented())
	assert.Equal(t, FrameStats{Presented: 1}, r.dev.FrameLoop().Stats())
	assert.NoError(t, r.dev.Swapchain().FrameSet(0).Validate())
}

func TestFramesCycleContextsAndImages(t *testing.T) {
	r := newRig(t, DeviceConfig{MaxFramesInFlight: 2})
	loop := r.dev.FrameLoop()
	require.Len(t, loop.Frames(), 2)

	var slots []int
	for i := 0; i < 5; i++ {
		slots = append(slots, loop.Current())
		require.True(t, r.frame(t, nil))
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Equal(t, []int{0, 1, 2, 0, 1}, r.fake.Presented())
	assert.Equal(t, 5, r.fake.Stats().Submits)
	assert.Equal(t, 5, loop.Stats().Presented)
}

func TestBeginWaitsForImageHeldByOtherSlot(t *testing.T) {
	r := newRig(t, DeviceConfig{MaxFramesInFlight: 2})
	require.Equal(t, 3, r.dev.Swapchain().ImageCount())
	r.fake.DeferCompletion = true
	loop := r.dev.FrameLoop()
	slot0 := loop.Frames()[0].InFlight.Handle()
	slot1 := loop.Frames()[1].InFlight.Handle()
	before := len(r.fake.FenceWaits())

	for i := 0; i < 4; i++ {
		require.True(t, r.frame(t, nil))
	}

	// The fourth frame runs in slot 1 but gets image 0, which slot 0
	// rendered to, so it must wait on slot 0 as well.
	assert.Equal(t, []int{0, 1, 2, 0}, r.fake.Presented())
	assert.Equal(t, []hal.Fence{slot0, slot1, slot0, slot1, slot0}, r.fake.FenceWaits()[before:])
}

func TestFrameLoopStopsAfterRecordFailure(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	loop := r.dev.FrameLoop()
	boom := errors.New("mesh vanished")
	base := r.fake.Stats()

	f, err := loop.Begin()
	require.NoError(t, err)
	err = loop.End(f, func(*Recorder) error { return boom })
	require.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(loop.Err(), boom))

	for i := 0; i < 2; i++ {
		f, err = loop.Begin()
		assert.Nil(t, f)
		assert.True(t, errors.Is(err, boom))
	}
	assert.Equal(t, base.Acquires+1, r.fake.Stats().Acquires)
	assert.Equal(t, base.Submits, r.fake.Stats().Submits)
}

func TestFrameLoopStopsAfterSubmitFailure(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	loop := r.dev.FrameLoop()

	f, err := loop.Begin()
	require.NoError(t, err)
	// Signaling render-finished ahead of the submit makes the fake driver
	// reject it.
	_, _, err = r.fake.AcquireNextImage(r.dev.Swapchain().Handle(), f.Context.RenderFinished.Handle())
	require.NoError(t, err)
	err = loop.End(f, nil)
	require.Error(t, err)

	_, err = loop.Begin()
	require.Error(t, err)
	assert.True(t, errors.Is(err, loop.Err()))
}

func TestFrameUniformsWritten(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	loop := r.dev.FrameLoop()

	f, err := loop.Begin()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Same(t, f, loop.Active())
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 800}, f.Extent)

	block := make([]byte, FrameUniformSize)
	block[0] = 42
	require.NoError(t, f.WriteUniforms(block))
	require.NoError(t, loop.End(f, nil))
	assert.Nil(t, loop.Active())

	got, err := f.Context.Uniforms.Read()
	require.NoError(t, err)
	assert.Equal(t, block, got)
	w := r.fake.SetWrites(r.dev.Swapchain().FrameSet(f.ImageIndex).Handle())[0]
	assert.Equal(t, f.Context.Uniforms.Handle(), w.Buffer)
}

func TestAcquireOutOfDateAbandonsFrame(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	require.True(t, r.frame(t, nil))
	before := r.fake.Live()

	r.fake.AcquireScript = []hal.PresentStatus{hal.StatusOutOfDate}
	assert.False(t, r.frame(t, nil), "frame K is abandoned")
	assert.Equal(t, 1, r.dev.Swapchain().Recreations())

	require.True(t, r.frame(t, nil), "frame K+1 presents")
	stats := r.dev.FrameLoop().Stats()
	assert.Equal(t, FrameStats{Presented: 2, Abandoned: 1, Recreations: 1}, stats)
	assert.Equal(t, 2, r.fake.Stats().Presents)
	assert.Equal(t, before, r.fake.Live())

	r.dev.Destroy()
	assert.Empty(t, r.fake.Live(), "live kinds: %v", r.fake.LiveKinds())
}

func TestSurfaceResizeDetectedAtAcquire(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	r.adapter.Resize(640, 480)

	assert.False(t, r.frame(t, nil))
	require.True(t, r.frame(t, nil))
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, r.dev.Swapchain().Extent())
}

func TestSuboptimalPresentRecreates(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	r.fake.PresentScript = []hal.PresentStatus{hal.StatusSuboptimal}

	require.True(t, r.frame(t, nil))
	assert.Equal(t, 1, r.dev.Swapchain().Recreations())
	assert.Equal(t, 1, r.dev.FrameLoop().Stats().Presented)
	require.True(t, r.frame(t, nil))
}

func TestOutOfDatePresentCountsAsAbandoned(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	r.fake.PresentScript = []hal.PresentStatus{hal.StatusOutOfDate}

	require.True(t, r.frame(t, nil))
	stats := r.dev.FrameLoop().Stats()
	assert.Equal(t, 0, stats.Presented)
	assert.Equal(t, 1, stats.Abandoned)
	assert.Equal(t, 1, stats.Recreations)
}

func TestSuboptimalAcquireRecreatesAfterPresent(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	r.fake.AcquireScript = []hal.PresentStatus{hal.StatusSuboptimal}

	require.True(t, r.frame(t, nil))
	assert.Equal(t, 1, r.fake.Stats().Presents)
	assert.Equal(t, 1, r.dev.Swapchain().Recreations())
}

func TestFrameProtocolMisuse(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	loop := r.dev.FrameLoop()

	err := loop.End(nil, nil)
	assert.True(t, errors.Is(err, ErrSyncMisuse))

	f, err := loop.Begin()
	require.NoError(t, err)
	_, err = loop.Begin()
	assert.True(t, errors.Is(err, ErrSyncMisuse))
	require.NoError(t, loop.End(f, nil))
	assert.True(t, errors.Is(loop.End(f, nil), ErrSyncMisuse), "frame ended twice")
}

func TestDebugFenceNeverSubmitted(t *testing.T) {
	r := newRig(t, DeviceConfig{Debug: true})
	f, err := r.dev.createFence(false)
	require.NoError(t, err)
	defer f.Destroy()

	err = f.Wait()
	assert.True(t, errors.Is(err, ErrSyncMisuse))

	signaled, err := f.Signaled()
	require.NoError(t, err)
	assert.False(t, signaled)
}

func TestRecordDrawsObjects(t *testing.T) {
	r := newRig(t, DeviceConfig{Debug: true})
	stages := r.stages(t, testProgram())
	cache := r.dev.PipelineCache()
	p, err := cache.Acquire(stages)
	require.NoError(t, err)

	tex, err := r.dev.UploadTexture([]byte{255, 255, 255, 255}, 1, 1, 4)
	require.NoError(t, err)
	defer tex.Destroy()
	material, err := r.dev.MaterialPool().Allocate(r.dev.SetLayout(TierPerMaterial))
	require.NoError(t, err)
	require.NoError(t, material.WriteTexture(0, tex))

	stride := shader.PositionColorUV.Stride()
	vertices, err := r.dev.UploadBuffer(BufferVertex, make([]byte, 3*stride))
	require.NoError(t, err)
	defer vertices.Destroy()
	indices, err := r.dev.UploadBuffer(BufferIndex, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0})
	require.NoError(t, err)
	defer indices.Destroy()

	require.True(t, r.frame(t, func(rec *Recorder) error {
		for i := 0; i < 2; i++ {
			if err := rec.BindPipeline(p); err != nil {
				return err
			}
			if err := rec.BindMaterial(material); err != nil {
				return err
			}
			if err := rec.PushObject(make([]byte, ObjectPushSize)); err != nil {
				return err
			}
			if err := rec.DrawIndexed(vertices, indices, 3); err != nil {
				return err
			}
		}
		assert.Equal(t, 2, rec.Draws())
		return nil
	}))
	assert.Equal(t, 2, r.fake.Stats().Draws)
}

func TestRecorderRejectsMisorderedCommands(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	stages := r.stages(t, testProgram())
	p, err := r.dev.PipelineCache().Acquire(stages)
	require.NoError(t, err)
	vertices, err := r.dev.UploadBuffer(BufferVertex, make([]byte, 96))
	require.NoError(t, err)
	defer vertices.Destroy()

	require.True(t, r.frame(t, func(rec *Recorder) error {
		assert.Error(t, rec.PushObject(nil))
		assert.Error(t, rec.DrawIndexed(vertices, vertices, 3))
		require.NoError(t, rec.BindPipeline(p))
		assert.Error(t, rec.PushObject(make([]byte, ObjectPushSize+4)))
		assert.Error(t, rec.DrawIndexed(vertices, vertices, 3), "vertex buffer used as index buffer")
		return nil
	}))
	assert.Zero(t, r.fake.Stats().Draws)
}

func TestUnwrittenMaterialCaughtWhenDebugging(t *testing.T) {
	r := newRig(t, DeviceConfig{Debug: true})
	stages := r.stages(t, testProgram())
	p, err := r.dev.PipelineCache().Acquire(stages)
	require.NoError(t, err)
	material, err := r.dev.MaterialPool().Allocate(r.dev.SetLayout(TierPerMaterial))
	require.NoError(t, err)

	loop := r.dev.FrameLoop()
	f, err := loop.Begin()
	require.NoError(t, err)
	err = loop.End(f, func(rec *Recorder) error {
		if err := rec.BindPipeline(p); err != nil {
			return err
		}
		return rec.BindMaterial(material)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnwrittenBinding))
}

func TestPipelineCacheSharesPipelines(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	cache := r.dev.PipelineCache()
	prog := testProgram()
	stages := r.stages(t, prog)

	a, err := cache.Acquire(stages)
	require.NoError(t, err)
	b, err := cache.Acquire(stages)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, cache.Created())
	assert.Equal(t, 1, r.fake.Stats().PipelinesCreated)
	assert.Equal(t, prog.ID(), a.Key().Shader)

	other := prog
	other.DoubleSided = true
	c, err := cache.Acquire(r.stages(t, other))
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, cache.Len())

	cache.Release(a)
	assert.Equal(t, 2, cache.Len())
	cache.Release(b)
	assert.Equal(t, 1, cache.Len())
	assert.Zero(t, a.Handle())
	assert.Equal(t, 1, r.fake.Live()[fakehal.KindPipeline])
}

func TestPipelineSurvivesSwapchainRecreate(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	p, err := r.dev.PipelineCache().Acquire(r.stages(t, testProgram()))
	require.NoError(t, err)

	require.NoError(t, r.dev.Swapchain().Recreate())
	assert.NotZero(t, p.Handle())
	assert.Equal(t, 1, r.fake.Stats().PipelinesCreated)
}
