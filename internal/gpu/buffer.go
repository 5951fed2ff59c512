//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrInvalidBufferSize is returned for a zero or unaligned buffer size.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrMapPending is returned when a buffer is mapped or a map is pending.
	ErrMapPending = errors.New("gpu: buffer is already mapped or mapping is pending")

	// ErrBufferNotMapped is returned when reading an unmapped buffer.
	ErrBufferNotMapped = errors.New("gpu: buffer is not mapped")

	// ErrMapUsage is returned for a non-read map, a buffer without MapRead
	// usage, or a nil callback.
	ErrMapUsage = errors.New("gpu: invalid map request")

	// ErrInvalidMapRange is returned when the map range is out of bounds or
	// misaligned.
	ErrInvalidMapRange = errors.New("gpu: map range out of bounds")
)

// MapState is the host mapping state of a readback buffer.
type MapState uint8

// Map states.
const (
	MapUnmapped MapState = iota
	MapPending
	MapMapped
)

var mapStateNames = [...]string{"Unmapped", "Pending", "Mapped"}

func (s MapState) String() string {
	if int(s) < len(mapStateNames) {
		return mapStateNames[s]
	}
	return fmt.Sprintf("MapState(%d)", s)
}

// MapStatus is passed to a map callback when a request completes.
type MapStatus uint8

// Map completion statuses.
const (
	MapSuccess    MapStatus = iota
	MapRejected             // invalid mode, usage or range
	MapBusy                 // another mapping is pending
	MapDeviceLost           // the fence wait failed
	MapReadFailed           // the queue could not copy the buffer
	MapAborted              // unmapped or destroyed before completion
)

var mapStatusNames = [...]string{"Success", "Rejected", "Busy", "DeviceLost", "ReadFailed", "Aborted"}

func (s MapStatus) String() string {
	if int(s) < len(mapStatusNames) {
		return mapStatusNames[s]
	}
	return fmt.Sprintf("MapStatus(%d)", s)
}

// mapPollTimeout bounds a single fence check inside PollMapAsync.
const mapPollTimeout = time.Millisecond

// Buffer is a device buffer owned by one kernel invocation.
//
// Readback buffers follow the WebGPU protocol: MapAsync registers a
// completion callback, PollMapAsync is pumped until the submission that
// last wrote the buffer has completed and the callback has fired, then
// GetMappedRange exposes the bytes until Unmap.
type Buffer struct {
	mu sync.RWMutex

	halBuffer hal.Buffer
	device    hal.Device
	queue     hal.Queue

	descriptor BufferDescriptor

	mapState    MapState
	mapOffset   uint64
	mapSize     uint64
	mappedData  []byte
	mapCallback func(MapStatus)

	// fence and fenceValue identify the last submission writing the buffer.
	fence      hal.Fence
	fenceValue uint64

	destroyed bool
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.descriptor.Label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.descriptor.Size
}

// MapState returns the current mapping state.
func (b *Buffer) MapState() MapState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapState
}

// Raw returns the underlying buffer handle, or nil after Destroy.
func (b *Buffer) Raw() hal.Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil
	}
	return b.halBuffer
}

// trackSubmission records the submission whose completion makes the
// buffer contents host-visible.
func (b *Buffer) trackSubmission(fence hal.Fence, value uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fence = fence
	b.fenceValue = value
}

// MapAsync starts a read mapping of [offset, offset+size). The callback
// runs from PollMapAsync, or immediately with MapRejected or MapBusy when
// the request is refused.
func (b *Buffer) MapAsync(mode gputypes.MapMode, offset, size uint64, callback func(MapStatus)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrBufferDestroyed
	}
	if callback == nil {
		return fmt.Errorf("%w: nil callback", ErrMapUsage)
	}
	if b.mapState != MapUnmapped {
		callback(MapBusy)
		return ErrMapPending
	}
	if err := b.checkMapLocked(mode, offset, size); err != nil {
		callback(MapRejected)
		return err
	}

	b.mapState = MapPending
	b.mapOffset = offset
	b.mapSize = size
	b.mapCallback = callback
	return nil
}

// checkMapLocked validates a map request. WebGPU requires 8-byte aligned
// offsets; the size may run unaligned to the end of the buffer.
func (b *Buffer) checkMapLocked(mode gputypes.MapMode, offset, size uint64) error {
	const align uint64 = 8
	total := b.descriptor.Size
	switch {
	case mode != gputypes.MapModeRead:
		return fmt.Errorf("%w: mode %v", ErrMapUsage, mode)
	case !b.descriptor.Usage.Contains(gputypes.BufferUsageMapRead):
		return fmt.Errorf("%w: %q lacks MapRead usage", ErrMapUsage, b.descriptor.Label)
	case offset > total || size > total-offset:
		return fmt.Errorf("%w: [%d, %d) of %d", ErrInvalidMapRange, offset, offset+size, total)
	case offset%align != 0:
		return fmt.Errorf("%w: offset %d not %d-byte aligned", ErrInvalidMapRange, offset, align)
	case size%align != 0 && size != total-offset:
		return fmt.Errorf("%w: size %d not %d-byte aligned", ErrInvalidMapRange, size, align)
	}
	return nil
}

// PollMapAsync advances a pending mapping. It checks the tracked submission
// fence without blocking for more than mapPollTimeout; once the submission
// has completed it copies the buffer to host memory, transitions to Mapped
// and invokes the callback.
//
// Returns true if mapping is complete (success or failure).
// Returns false if mapping is still pending.
func (b *Buffer) PollMapAsync() bool {
	b.mu.Lock()

	if b.mapState != MapPending {
		b.mu.Unlock()
		return true
	}

	if b.destroyed {
		b.finishLocked(MapUnmapped, nil, MapAborted)
		return true
	}

	if b.fence != nil {
		ok, err := b.device.Wait(b.fence, b.fenceValue, mapPollTimeout)
		if err != nil {
			slogger().Warn("gpu: fence wait failed during map", "buffer", b.descriptor.Label, "err", err)
			b.finishLocked(MapUnmapped, nil, MapDeviceLost)
			return true
		}
		if !ok {
			b.mu.Unlock()
			return false
		}
	}

	data := make([]byte, b.mapSize)
	if err := b.queue.ReadBuffer(b.halBuffer, b.mapOffset, data); err != nil {
		slogger().Warn("gpu: buffer read failed during map", "buffer", b.descriptor.Label, "err", err)
		b.finishLocked(MapUnmapped, nil, MapReadFailed)
		return true
	}
	b.finishLocked(MapMapped, data, MapSuccess)
	return true
}

// finishLocked completes a pending mapping and invokes the callback outside
// the lock. It must be called with b.mu held and releases it.
func (b *Buffer) finishLocked(state MapState, data []byte, status MapStatus) {
	callback := b.mapCallback
	b.mapCallback = nil
	b.mapState = state
	b.mappedData = data
	b.mu.Unlock()
	if callback != nil {
		callback(status)
	}
}

// GetMappedRange returns the mapped bytes in [offset, offset+size), relative
// to the mapped range. The slice is valid until Unmap.
func (b *Buffer) GetMappedRange(offset, size uint64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrBufferDestroyed
	}
	if b.mapState != MapMapped {
		return nil, ErrBufferNotMapped
	}
	if offset+size > b.mapSize {
		return nil, fmt.Errorf("%w: range [%d, %d) exceeds mapped size %d", ErrInvalidMapRange, offset, offset+size, b.mapSize)
	}
	return b.mappedData[offset : offset+size], nil
}

// Unmap releases the host mapping. A pending mapping is cancelled with
// MapAborted.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	if b.mapState == MapPending {
		b.finishLocked(MapUnmapped, nil, MapAborted)
		return
	}
	b.mapState = MapUnmapped
	b.mappedData = nil
	b.mu.Unlock()
}

// Destroy releases the device buffer. It is safe to call more than once.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.mappedData = nil
	if b.halBuffer != nil && b.device != nil {
		b.device.DestroyBuffer(b.halBuffer)
	}
	b.halBuffer = nil
}
