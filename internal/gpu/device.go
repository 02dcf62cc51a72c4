package gpu

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrBackendUnavailable is returned when the requested HAL backend is not
	// registered. Backends register themselves when their package is imported.
	ErrBackendUnavailable = errors.New("gpu: backend not available")

	// ErrNoAdapter is returned when the instance exposes no adapters.
	ErrNoAdapter = errors.New("gpu: no GPU adapters found")

	// ErrClosed is returned when using a device after Close.
	ErrClosed = errors.New("gpu: device closed")
)

// Device is an opened GPU device with its single queue.
//
// The queue is shared by every goroutine that renders. Submissions and
// other queue operations are serialized by the device; command encoders are
// created per submission so each goroutine records independently.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	info     gputypes.AdapterInfo

	// mu guards the queue and the in-flight list. completed is written
	// under mu and read without it.
	mu        sync.Mutex
	completed atomic.Uint64
	inflight  []submission
	closed    atomic.Bool
}

// submission is GPU work whose resources are released once it completes.
type submission struct {
	index   uint64
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
	release []func()
}

// Open creates an instance of the given HAL backend and opens a device on
// its preferred adapter. Discrete and integrated GPUs are preferred over
// software adapters.
func Open(backend gputypes.Backend) (*Device, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	slogger().Info("gpu: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType,
		"driver", selected.Info.Driver)

	return &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		info:     selected.Info,
	}, nil
}

// HAL returns the underlying HAL device for resource creation.
func (d *Device) HAL() hal.Device { return d.device }

// Info reports the selected adapter.
func (d *Device) Info() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch d.info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: d.info.Name, Type: t}
}

// CreateSurface creates a presentation surface for a native window.
func (d *Device) CreateSurface(display, window uintptr) (hal.Surface, error) {
	s, err := d.instance.CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}
	return s, nil
}

// Encode records one command buffer with record and submits it. The
// returned fence signals when the GPU has finished the submission.
//
// release functions run once the submission has completed; use them for
// resources that must outlive the recorded commands.
func (d *Device) Encode(label string, record func(enc hal.CommandEncoder) error, release ...func()) (*Fence, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: create command encoder: %w", label, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("gpu: %s: begin encoding: %w", label, err)
	}
	if err := record(encoder); err != nil {
		encoder.DiscardEncoding()
		encoder.Destroy()
		return nil, fmt.Errorf("gpu: %s: %w", label, err)
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("gpu: %s: end encoding: %w", label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		d.device.FreeCommandBuffer(cmd)
		encoder.Destroy()
		return nil, ErrClosed
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		encoder.Destroy()
		return nil, fmt.Errorf("gpu: %s: submit: %w", label, err)
	}
	d.inflight = append(d.inflight, submission{
		index:   index,
		encoder: encoder,
		cmd:     cmd,
		release: release,
	})
	d.retireLocked()
	return &Fence{dev: d, index: index}, nil
}

// Defer runs fn once every submission made so far has completed. fn runs
// immediately if nothing is in flight.
func (d *Device) Defer(fn func()) {
	d.mu.Lock()
	if n := len(d.inflight); n > 0 && !d.closed.Load() {
		last := &d.inflight[n-1]
		last.release = append(last.release, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// WriteBuffer writes data to buf through the queue.
func (d *Device) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrClosed
	}
	if err := d.queue.WriteBuffer(buf, offset, data); err != nil {
		return fmt.Errorf("gpu: write buffer: %w", err)
	}
	return nil
}

// WriteMapped copies data into buf through a CPU mapping. buf must be
// created with BufferUsageMapWrite and the GPU must no longer read the
// range. Unlike WriteBuffer it never touches the queue, so it does not wait
// for submissions of other goroutines.
func (d *Device) WriteMapped(buf hal.Buffer, offset uint64, data []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	m, err := d.device.MapBuffer(buf, offset, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("gpu: map buffer: %w", err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), len(data)), data)
	if err := d.device.UnmapBuffer(buf); err != nil {
		return fmt.Errorf("gpu: unmap buffer: %w", err)
	}
	return nil
}

// WriteTexture uploads tightly packed rows of pixels to layer 0 of tex.
func (d *Device) WriteTexture(tex *Texture, data []byte, bytesPerRow uint32) error {
	w, h := tex.Size()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrClosed
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex.HAL(), Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: bytesPerRow, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("gpu: write texture %q: %w", tex.config.Label, err)
	}
	return nil
}

// Present queues tex for presentation on surface.
func (d *Device) Present(surface hal.Surface, tex hal.SurfaceTexture) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrClosed
	}
	return d.queue.Present(surface, tex, []image.Rectangle(nil))
}

// Completed returns the index of the newest finished submission without
// blocking. If another goroutine holds the queue it returns the index seen
// by the last poll.
func (d *Device) Completed() uint64 {
	if !d.mu.TryLock() {
		return d.completed.Load()
	}
	defer d.mu.Unlock()
	d.retireLocked()
	return d.completed.Load()
}

// retireLocked frees the resources of every finished submission.
func (d *Device) retireLocked() {
	if d.closed.Load() {
		return
	}
	completed := d.queue.PollCompleted()
	d.completed.Store(completed)
	n := 0
	for _, s := range d.inflight {
		if s.index > completed {
			d.inflight[n] = s
			n++
			continue
		}
		d.free(s)
	}
	clear(d.inflight[n:])
	d.inflight = d.inflight[:n]
}

func (d *Device) free(s submission) {
	d.device.FreeCommandBuffer(s.cmd)
	s.encoder.Destroy()
	for _, fn := range s.release {
		fn()
	}
}

// WaitIdle blocks until the GPU has finished all submitted work and
// releases the resources of every submission.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return nil
	}
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: wait idle: %w", err)
	}
	d.retireLocked()
	return nil
}

// Close waits for the GPU and destroys the device and its instance.
// Resources created on the device must be destroyed first. Close is safe to
// call multiple times.
func (d *Device) Close() {
	if err := d.WaitIdle(); err != nil {
		slogger().Warn("gpu: close", "err", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return
	}
	for _, s := range d.inflight {
		d.free(s)
	}
	d.inflight = nil
	d.closed.Store(true)

	d.device.Destroy()
	d.instance.Destroy()
}

// Fence tracks the completion of one submission.
type Fence struct {
	dev   *Device
	index uint64
}

// Signalled reports whether the submission has finished. It never blocks:
// while another goroutine holds the queue it answers from the last poll,
// and a fence that is not yet seen as finished is retried later.
func (f *Fence) Signalled() (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.dev.closed.Load() {
		return false, ErrClosed
	}
	return f.dev.Completed() >= f.index, nil
}

// Index returns the submission index the fence waits for.
func (f *Fence) Index() uint64 { return f.index }
