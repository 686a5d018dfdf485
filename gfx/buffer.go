package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

type BufferUsage int

const (
	// BufferVertex and BufferIndex live in device-local memory and are
	// filled through a staging copy.
	BufferVertex BufferUsage = iota
	BufferIndex
	// BufferUniform and BufferStaging live in host-visible, coherent memory.
	BufferUniform
	BufferStaging
)

func (u BufferUsage) String() string {
	switch u {
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	case BufferUniform:
		return "uniform"
	case BufferStaging:
		return "staging"
	}
	return "unknown"
}

// HostVisible reports whether buffers of this usage can be written directly.
func (u BufferUsage) HostVisible() bool {
	return u == BufferUniform || u == BufferStaging
}

func (u BufferUsage) flags() hal.BufferUsageFlags {
	switch u {
	case BufferVertex:
		return hal.BufferUsageVertex | hal.BufferUsageTransferDst | hal.BufferUsageTransferSrc
	case BufferIndex:
		return hal.BufferUsageIndex | hal.BufferUsageTransferDst | hal.BufferUsageTransferSrc
	case BufferUniform:
		return hal.BufferUsageUniform
	default:
		return hal.BufferUsageTransferSrc | hal.BufferUsageTransferDst
	}
}

func (u BufferUsage) memory() hal.MemoryPropertyFlags {
	if u.HostVisible() {
		return hal.MemoryHostVisible | hal.MemoryHostCoherent
	}
	return hal.MemoryDeviceLocal
}

type Buffer struct {
	dev    *LogicalDevice
	handle hal.Buffer
	mem    hal.Memory
	size   int
	usage  BufferUsage
}

// CreateBuffer allocates an unfilled buffer. Use UploadBuffer for vertex
// and index data.
func (d *LogicalDevice) CreateBuffer(usage BufferUsage, size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf("create %s buffer: invalid size %d", usage, size)
	}
	h, err := d.hal.CreateBuffer(size, usage.flags())
	if err != nil {
		return nil, classify(err, "create buffer")
	}
	b := &Buffer{dev: d, handle: h, size: size, usage: usage}

	req := d.hal.BufferMemoryRequirements(h)
	typ, err := d.pd.FindMemoryType(req.MemoryTypeBits, usage.memory())
	if err != nil {
		b.Destroy()
		return nil, errors.Wrapf(err, "create %s buffer", usage)
	}
	if b.mem, err = d.hal.AllocateMemory(req.Size, typ); err != nil {
		b.Destroy()
		return nil, classify(err, "allocate buffer memory")
	}
	if err := d.hal.BindBufferMemory(h, b.mem); err != nil {
		b.Destroy()
		return nil, classify(err, "bind buffer memory")
	}
	Logger().Debug("buffer created", "usage", usage, "size", size, "memory_type", typ)
	return b, nil
}

func (b *Buffer) Handle() hal.Buffer { return b.handle }
func (b *Buffer) Size() int          { return b.size }
func (b *Buffer) Usage() BufferUsage { return b.usage }

// Write copies data to the start of a host-visible buffer. Device-local
// buffers fail with ErrNotHostVisible.
func (b *Buffer) Write(data []byte) error {
	if !b.usage.HostVisible() {
		return errors.Wrapf(ErrNotHostVisible, "write to %s buffer", b.usage)
	}
	if len(data) > b.size {
		return errors.Newf("write of %d bytes to %d byte buffer", len(data), b.size)
	}
	mapped, err := b.dev.hal.MapMemory(b.mem, 0, len(data))
	if err != nil {
		return classify(err, "map buffer memory")
	}
	copy(mapped, data)
	b.dev.hal.UnmapMemory(b.mem)
	return nil
}

// Read copies the contents of a host-visible buffer.
func (b *Buffer) Read() ([]byte, error) {
	if !b.usage.HostVisible() {
		return nil, errors.Wrapf(ErrNotHostVisible, "read from %s buffer", b.usage)
	}
	mapped, err := b.dev.hal.MapMemory(b.mem, 0, b.size)
	if err != nil {
		return nil, classify(err, "map buffer memory")
	}
	out := append([]byte(nil), mapped...)
	b.dev.hal.UnmapMemory(b.mem)
	return out, nil
}

func (b *Buffer) Destroy() {
	if b == nil || b.handle == 0 {
		return
	}
	b.dev.hal.DestroyBuffer(b.handle)
	if b.mem != 0 {
		b.dev.hal.FreeMemory(b.mem)
	}
	b.handle, b.mem = 0, 0
}
