//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const (
	// DefaultPollInterval is the sleep between event pumps while waiting
	// for an async completion.
	DefaultPollInterval = time.Millisecond

	// submitTimeout bounds the wait for in-flight work before its
	// resources are released.
	submitTimeout = 5 * time.Second
)

// AcquireOptions configures device acquisition.
type AcquireOptions struct {
	// Backend selects the HAL backend. Zero selects Vulkan.
	Backend gputypes.Backend

	// ValidateShaders compiles WGSL with naga before creating shader
	// modules so that shader errors surface with a source diagnostic.
	ValidateShaders bool

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// AdapterInfo describes the selected adapter.
type AdapterInfo struct {
	Name       string
	DeviceType gputypes.DeviceType
}

// Session is the compute context of one run: instance, device and queue.
// It must outlive every pipeline and buffer created from it.
type Session struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  AdapterInfo

	validate     bool
	pollInterval time.Duration

	ownsInstance bool
	ownsDevice   bool
	closed       bool
}

// acquireResult is delivered to the acquisition callback.
type acquireResult struct {
	device  hal.Device
	queue   hal.Queue
	adapter AdapterInfo
	err     error
}

// Acquire creates an instance on the configured HAL backend and acquires
// a compute device from it.
func Acquire(ctx context.Context, opts AcquireOptions) (*Session, error) {
	kind := opts.Backend
	if kind == 0 {
		kind = gputypes.BackendVulkan
	}
	backend, ok := hal.GetBackend(kind)
	if !ok {
		return nil, fmt.Errorf("%w: HAL backend %v not registered", ErrNoAdapter, kind)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoAdapter, err)
	}
	s, err := AcquireFromInstance(ctx, instance, opts)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	s.ownsInstance = true
	return s, nil
}

// AcquireFromInstance acquires a device from an existing instance. The
// instance stays owned by the caller.
//
// The adapter/device request is issued asynchronously and completes
// through a callback; the caller's goroutine pumps a poll loop until the
// completion flag is set or ctx is done.
func AcquireFromInstance(ctx context.Context, instance hal.Instance, opts AcquireOptions) (*Session, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var (
		done      atomic.Bool
		mu        sync.Mutex
		abandoned bool
		result    acquireResult
	)
	requestDevice(instance, func(r acquireResult) {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if r.device != nil {
				r.device.Destroy()
			}
			return
		}
		result = r
		done.Store(true)
	})

	if err := pollUntil(ctx, interval, done.Load, nil); err != nil {
		mu.Lock()
		if done.Load() && result.device != nil {
			result.device.Destroy()
		}
		abandoned = true
		mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	if result.err != nil {
		return nil, result.err
	}

	slogger().Info("gpu: adapter selected", "name", result.adapter.Name, "type", result.adapter.DeviceType)
	return &Session{
		instance:     instance,
		device:       result.device,
		queue:        result.queue,
		adapter:      result.adapter,
		validate:     opts.ValidateShaders,
		pollInterval: interval,
		ownsDevice:   true,
	}, nil
}

// requestDevice selects an adapter and opens a device off the calling
// goroutine, reporting the outcome through callback exactly once.
func requestDevice(instance hal.Instance, callback func(acquireResult)) {
	go func() {
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			callback(acquireResult{err: fmt.Errorf("%w: no adapters enumerated", ErrNoAdapter)})
			return
		}
		selected := &adapters[0]
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
				adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
		info := AdapterInfo{Name: selected.Info.Name, DeviceType: selected.Info.DeviceType}
		openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
		if err != nil {
			callback(acquireResult{adapter: info, err: fmt.Errorf("%w: open %q: %w", ErrNoDevice, info.Name, err)})
			return
		}
		callback(acquireResult{device: openDev.Device, queue: openDev.Queue, adapter: info})
	}()
}

// FromProvider wraps a device shared by a host application. The provider
// must expose HalDevice() and HalQueue() returning hal.Device and
// hal.Queue. The session never destroys a shared device.
func FromProvider(provider gpucontext.DeviceProvider, opts AcquireOptions) (*Session, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	slogger().Info("gpu: using shared device")
	return &Session{
		device:       device,
		queue:        queue,
		adapter:      AdapterInfo{Name: "shared"},
		validate:     opts.ValidateShaders,
		pollInterval: interval,
	}, nil
}

// Adapter returns the selected adapter description.
func (s *Session) Adapter() AdapterInfo { return s.adapter }

// Device returns the HAL device.
func (s *Session) Device() hal.Device { return s.device }

// Queue returns the HAL queue.
func (s *Session) Queue() hal.Queue { return s.queue }

// Close releases the device and instance when the session owns them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ownsDevice && s.device != nil {
		s.device.Destroy()
	}
	if s.ownsInstance && s.instance != nil {
		s.instance.Destroy()
	}
	s.device = nil
	s.queue = nil
	s.instance = nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// CreateBuffer allocates a device buffer. Sizes must be non-zero and
// 4-byte aligned.
func (s *Session) CreateBuffer(desc *BufferDescriptor) (*Buffer, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Size == 0 || desc.Size%4 != 0 {
		return nil, fmt.Errorf("%w: %w: %q size %d", ErrResource, ErrInvalidBufferSize, desc.Label, desc.Size)
	}
	raw, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create buffer %q: %w", ErrResource, desc.Label, err)
	}
	slogger().Debug("gpu: buffer created", "label", desc.Label, "size", desc.Size)
	return &Buffer{
		halBuffer:  raw,
		device:     s.device,
		queue:      s.queue,
		descriptor: *desc,
	}, nil
}

// WriteBuffer uploads data at offset 0. Failures wrap ErrResource.
func (s *Session) WriteBuffer(buf *Buffer, data []byte) error {
	raw := buf.Raw()
	if raw == nil {
		return fmt.Errorf("%w: write %q: %w", ErrResource, buf.Label(), ErrBufferDestroyed)
	}
	if s.queue == nil {
		return ErrSessionClosed
	}
	if err := s.queue.WriteBuffer(raw, 0, data); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrResource, buf.Label(), err)
	}
	return nil
}

// ReadBufferBlocking maps buf, copies size bytes and unmaps it before
// returning. The calling goroutine pumps PollMapAsync until the map
// callback fires or ctx is done.
func (s *Session) ReadBufferBlocking(ctx context.Context, buf *Buffer, size uint64) ([]byte, error) {
	var (
		done   atomic.Bool
		status MapStatus
	)
	err := buf.MapAsync(gputypes.MapModeRead, 0, size, func(st MapStatus) {
		status = st
		done.Store(true)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: map %q: %w", ErrReadback, buf.Label(), err)
	}
	pump := func() { buf.PollMapAsync() }
	if err := pollUntil(ctx, s.pollInterval, done.Load, pump); err != nil {
		buf.Unmap()
		return nil, fmt.Errorf("%w: map %q: %w", ErrReadback, buf.Label(), err)
	}
	if status != MapSuccess {
		return nil, fmt.Errorf("%w: map %q: status %v", ErrReadback, buf.Label(), status)
	}
	defer buf.Unmap()

	mapped, err := buf.GetMappedRange(0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadback, err)
	}
	out := make([]byte, len(mapped))
	copy(out, mapped)
	return out, nil
}

// pollUntil pumps events until done reports true. It sleeps interval
// between pumps and returns ctx.Err() if ctx ends first.
func pollUntil(ctx context.Context, interval time.Duration, done func() bool, pump func()) error {
	for {
		if pump != nil {
			pump()
		}
		if done() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(interval)
	}
}
