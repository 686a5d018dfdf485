package gfx

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/internal/fakehal"
)

func testWindow() *fakehal.Window {
	return &fakehal.Window{Width: 640, Height: 480, Extensions: []string{hal.ExtensionSurface}}
}

func TestCreateInstanceMissingLayer(t *testing.T) {
	loader := fakehal.NewLoader()
	loader.Layers = nil

	_, err := CreateInstance(loader, testWindow(), InstanceConfig{Validation: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedLayer))
	assert.Contains(t, err.Error(), hal.LayerValidation)
	assert.Nil(t, loader.LastInstance())
}

func TestCreateInstanceWithoutValidationSkipsLayers(t *testing.T) {
	loader := fakehal.NewLoader()
	loader.Layers = nil

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()
	assert.Empty(t, inst.Layers())
	assert.NotContains(t, inst.Extensions(), hal.ExtensionDebugUtils)
	assert.Nil(t, loader.LastInstance().Desc.Debug)
}

func TestCreateInstanceMissingExtension(t *testing.T) {
	loader := fakehal.NewLoader()
	win := testWindow()
	win.Extensions = append(win.Extensions, "VK_KHR_wayland_surface")

	_, err := CreateInstance(loader, win, InstanceConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedExtension))
	assert.Contains(t, err.Error(), "VK_KHR_wayland_surface")
}

func TestCreateInstancePortability(t *testing.T) {
	loader := fakehal.NewLoader()
	loader.Extensions = append(loader.Extensions, hal.ExtensionPortabilityEnumeration)

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()

	desc := loader.LastInstance().Desc
	assert.True(t, desc.PortabilityEnumeration)
	assert.Contains(t, desc.Extensions, hal.ExtensionPortabilityEnumeration)
}

func TestInstanceDestroyReleasesSurface(t *testing.T) {
	loader := fakehal.NewLoader()
	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)

	fake := loader.LastInstance()
	assert.Equal(t, 1, fake.LiveSurfaces())
	inst.Destroy()
	inst.Destroy()
	assert.Equal(t, 0, fake.LiveSurfaces())
	assert.True(t, fake.Destroyed())
}

func TestDebugMessagesRouteBySeverity(t *testing.T) {
	logs := captureLogs(t)
	loader := fakehal.NewLoader()
	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{Validation: true})
	require.NoError(t, err)
	defer inst.Destroy()

	fake := loader.LastInstance()
	require.True(t, fake.EmitDebug(hal.SeverityVerbose, "loader scan"))
	require.True(t, fake.EmitDebug(hal.SeverityInfo, "device found"))
	require.True(t, fake.EmitDebug(hal.SeverityWarning, "slow path"))
	require.True(t, fake.EmitDebug(hal.SeverityError, "bad handle"))
	require.True(t, fake.EmitDebug(hal.SeverityError, "bad handle again"))

	assert.Equal(t,
		[]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError, slog.LevelError},
		logs.levels("validation"))

	warnings, errs := inst.ValidationIssues()
	assert.EqualValues(t, 1, warnings)
	assert.EqualValues(t, 2, errs)
}

func TestDebugIssuesReachDefaultLoggerWhenUnset(t *testing.T) {
	SetLogger(nil)
	h := &captureHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })

	loader := fakehal.NewLoader()
	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{Validation: true})
	require.NoError(t, err)
	defer inst.Destroy()

	loader.LastInstance().EmitDebug(hal.SeverityWarning, "unused binding")
	loader.LastInstance().EmitDebug(hal.SeverityError, "bad layout")
	loader.LastInstance().EmitDebug(hal.SeverityInfo, "loader chatter")

	warnings, errs := inst.ValidationIssues()
	assert.EqualValues(t, 1, warnings)
	assert.EqualValues(t, 1, errs)
	assert.Equal(t, []slog.Level{slog.LevelWarn, slog.LevelError}, h.levels("validation"))
}

func TestSelectPhysicalDeviceSkipsUnsuitable(t *testing.T) {
	logs := captureLogs(t)
	loader := fakehal.NewLoader()
	noSwapchain := fakehal.NewAdapter("compute only")
	noSwapchain.Exts = map[string]struct{}{}
	noModes := fakehal.NewAdapter("no modes")
	noModes.Modes = nil
	good := fakehal.NewAdapter("good")
	loader.Adapters = []*fakehal.Adapter{noSwapchain, noModes, good}

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()

	pd, err := inst.SelectPhysicalDevice(nil)
	require.NoError(t, err)
	assert.Equal(t, "good", pd.Name)
	assert.Same(t, pd, inst.Selected())
	assert.Len(t, inst.PhysicalDevices(), 3)
	assert.Len(t, logs.levels("physical device rejected"), 2)
	assert.Equal(t, good.Props.PipelineCacheUUID, pd.PipelineCacheUUID)
}

func TestSelectPhysicalDeviceNoneSuitable(t *testing.T) {
	loader := fakehal.NewLoader()
	a := fakehal.NewAdapter("headless")
	a.PresentFamily = map[int]bool{}
	loader.Adapters = []*fakehal.Adapter{a}

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()

	_, err = inst.SelectPhysicalDevice(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
	details := strings.Join(errors.GetAllDetails(err), "\n")
	assert.Contains(t, details, "headless: no graphics and present queue families")
}

func TestSelectPhysicalDeviceRequiredExtension(t *testing.T) {
	loader := fakehal.NewLoader()
	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()

	_, err = inst.SelectPhysicalDevice([]string{"VK_KHR_ray_query"})
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
}

func TestResolveQueueFamilies(t *testing.T) {
	tests := []struct {
		name     string
		families []QueueFamilyInfo
		want     QueueFamilyIndices
		unique   []int
	}{
		{
			name:     "shared",
			families: []QueueFamilyInfo{{QueueFamily: hal.QueueFamily{Flags: hal.QueueGraphics}, Present: true}},
			want:     QueueFamilyIndices{Graphics: 0, Present: 0},
			unique:   []int{0},
		},
		{
			name: "separate",
			families: []QueueFamilyInfo{
				{QueueFamily: hal.QueueFamily{Flags: hal.QueueGraphics}},
				{QueueFamily: hal.QueueFamily{Flags: hal.QueueTransfer}, Present: true},
			},
			want:   QueueFamilyIndices{Graphics: 0, Present: 1},
			unique: []int{0, 1},
		},
		{
			name: "prefers combined family",
			families: []QueueFamilyInfo{
				{QueueFamily: hal.QueueFamily{Flags: hal.QueueGraphics}},
				{QueueFamily: hal.QueueFamily{Flags: hal.QueueTransfer}, Present: true},
				{QueueFamily: hal.QueueFamily{Flags: hal.QueueGraphics | hal.QueueCompute}, Present: true},
			},
			want:   QueueFamilyIndices{Graphics: 2, Present: 2},
			unique: []int{2},
		},
		{
			name:     "no present",
			families: []QueueFamilyInfo{{QueueFamily: hal.QueueFamily{Flags: hal.QueueGraphics}}},
			want:     QueueFamilyIndices{Graphics: 0, Present: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveQueueFamilies(tt.families)
			assert.Equal(t, tt.want, got)
			if tt.unique != nil {
				assert.True(t, got.Complete())
				assert.Equal(t, tt.unique, got.Unique())
			} else {
				assert.False(t, got.Complete())
			}
		})
	}
}

func TestLogicalDeviceRequestsDistinctQueueFamilies(t *testing.T) {
	loader := fakehal.NewLoader()
	a := loader.Adapters[0]
	a.Families = []hal.QueueFamily{{Flags: hal.QueueGraphics, Count: 1}, {Flags: hal.QueueTransfer, Count: 1}}
	a.PresentFamily = map[int]bool{1: true}

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()
	pd, err := inst.SelectPhysicalDevice(nil)
	require.NoError(t, err)
	dev, err := CreateLogicalDevice(inst, pd, DeviceConfig{})
	require.NoError(t, err)
	defer dev.Destroy()

	fake := loader.LastInstance().Device()
	assert.Equal(t, []int{0, 1}, fake.Desc.QueueFamilies)
	assert.Contains(t, fake.Desc.Extensions, hal.ExtensionSwapchain)
	assert.NotEqual(t, dev.GraphicsQueue(), dev.PresentQueue())
}

func TestLogicalDeviceFailureCleansUp(t *testing.T) {
	loader := fakehal.NewLoader()
	a := loader.Adapters[0]
	a.FormatFlags = map[hal.Format]hal.FormatFeatureFlags{}

	inst, err := CreateInstance(loader, testWindow(), InstanceConfig{})
	require.NoError(t, err)
	defer inst.Destroy()
	pd, err := inst.SelectPhysicalDevice(nil)
	require.NoError(t, err)

	_, err = CreateLogicalDevice(inst, pd, DeviceConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth format")

	fake := loader.LastInstance().Device()
	assert.Empty(t, fake.Live())
	assert.True(t, fake.Destroyed())
}

func TestLogicalDeviceDestroyLeavesNothing(t *testing.T) {
	r := newRig(t, DeviceConfig{})
	require.NotEmpty(t, r.fake.Live())
	r.dev.Destroy()
	assert.Empty(t, r.fake.Live(), "live kinds: %v", r.fake.LiveKinds())
	assert.True(t, r.fake.Destroyed())
}
