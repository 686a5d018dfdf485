package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/emberkit/ember/hal"
)

// QueueFamilyIndices holds the resolved queue families. -1 is unresolved.
type QueueFamilyIndices struct {
	Graphics int
	Present  int
}

func (q QueueFamilyIndices) Complete() bool {
	return q.Graphics >= 0 && q.Present >= 0
}

// Unique returns the distinct families, graphics first.
func (q QueueFamilyIndices) Unique() []int {
	if q.Graphics == q.Present {
		return []int{q.Graphics}
	}
	return []int{q.Graphics, q.Present}
}

type QueueFamilyInfo struct {
	hal.QueueFamily
	Present bool
}

// PhysicalDeviceInfo is an immutable snapshot of one adapter taken against
// the instance surface.
type PhysicalDeviceInfo struct {
	adapter hal.Adapter

	Name                 string
	VendorID             uint32
	DeviceID             uint32
	PipelineCacheUUID    uuid.UUID
	Features             hal.Features
	MaxSamplerAnisotropy float32

	MemoryTypes   []hal.MemoryType
	QueueFamilies []QueueFamilyInfo
	Extensions    map[string]struct{}

	Formats      []hal.SurfaceFormat
	PresentModes []hal.PresentMode
	Capabilities hal.SurfaceCapabilities

	Queues QueueFamilyIndices
}

func snapshotAdapter(a hal.Adapter, surface hal.Surface) (*PhysicalDeviceInfo, error) {
	props := a.Properties()
	pd := &PhysicalDeviceInfo{
		adapter:              a,
		Name:                 props.Name,
		VendorID:             props.VendorID,
		DeviceID:             props.DeviceID,
		PipelineCacheUUID:    props.PipelineCacheUUID,
		Features:             a.Features(),
		MaxSamplerAnisotropy: props.MaxSamplerAnisotropy,
		MemoryTypes:          a.MemoryTypes(),
		Queues:               QueueFamilyIndices{Graphics: -1, Present: -1},
	}

	var err error
	if pd.Extensions, err = a.Extensions(); err != nil {
		return nil, classify(err, "enumerate device extensions")
	}
	if pd.Capabilities, err = a.SurfaceCapabilities(surface); err != nil {
		return nil, classify(err, "query surface capabilities")
	}
	if pd.Formats, err = a.SurfaceFormats(surface); err != nil {
		return nil, classify(err, "query surface formats")
	}
	if pd.PresentModes, err = a.PresentModes(surface); err != nil {
		return nil, classify(err, "query present modes")
	}

	for idx, fam := range a.QueueFamilies() {
		present, err := a.SurfaceSupport(surface, idx)
		if err != nil {
			return nil, classify(err, "query surface support")
		}
		pd.QueueFamilies = append(pd.QueueFamilies, QueueFamilyInfo{QueueFamily: fam, Present: present})
	}
	pd.Queues = resolveQueueFamilies(pd.QueueFamilies)
	return pd, nil
}

// resolveQueueFamilies prefers a single family that does both graphics and
// present, otherwise the first of each.
func resolveQueueFamilies(families []QueueFamilyInfo) QueueFamilyIndices {
	q := QueueFamilyIndices{Graphics: -1, Present: -1}
	for idx, fam := range families {
		graphics := fam.Flags&hal.QueueGraphics != 0
		if graphics && fam.Present {
			return QueueFamilyIndices{Graphics: idx, Present: idx}
		}
		if graphics && q.Graphics < 0 {
			q.Graphics = idx
		}
		if fam.Present && q.Present < 0 {
			q.Present = idx
		}
	}
	return q
}

// rejection explains why the device cannot be used, or returns "".
func (pd *PhysicalDeviceInfo) rejection(required []string) string {
	for _, ext := range required {
		if _, ok := pd.Extensions[ext]; !ok {
			return "missing extension " + ext
		}
	}
	if len(pd.Formats) == 0 {
		return "no surface formats"
	}
	if len(pd.PresentModes) == 0 {
		return "no present modes"
	}
	if !pd.Queues.Complete() {
		return "no graphics and present queue families"
	}
	return ""
}

func (pd *PhysicalDeviceInfo) Adapter() hal.Adapter { return pd.adapter }

// HasExtension reports whether the device advertises ext.
func (pd *PhysicalDeviceInfo) HasExtension(ext string) bool {
	_, ok := pd.Extensions[ext]
	return ok
}

// FindMemoryType returns the first memory type allowed by typeBits that has
// all of props.
func (pd *PhysicalDeviceInfo) FindMemoryType(typeBits uint32, props hal.MemoryPropertyFlags) (int, error) {
	for i, t := range pd.MemoryTypes {
		if typeBits&(1<<uint(i)) != 0 && t.Properties&props == props {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoMemoryType, "type bits %#x, properties %#x", typeBits, uint32(props))
}

var depthCandidates = []hal.Format{
	hal.FormatD32SFloat,
	hal.FormatD32SFloatS8UInt,
	hal.FormatD24UNormS8UInt,
}

// DepthFormat picks the first depth format usable as an optimal-tiling
// depth attachment.
func (pd *PhysicalDeviceInfo) DepthFormat() (hal.Format, error) {
	for _, f := range depthCandidates {
		if pd.adapter.FormatFeatures(f)&hal.FormatFeatureDepthStencilAttachment != 0 {
			return f, nil
		}
	}
	return hal.FormatUndefined, errors.Wrap(ErrNoSuitableDevice, "no supported depth format")
}
