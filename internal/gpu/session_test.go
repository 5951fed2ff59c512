//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newNoopSession acquires a session from a noop instance.
func newNoopSession(t *testing.T) *Session {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := AcquireFromInstance(ctx, instance, AcquireOptions{})
	if err != nil {
		instance.Destroy()
		t.Fatalf("AcquireFromInstance failed: %v", err)
	}
	t.Cleanup(func() {
		sess.Close()
		instance.Destroy()
	})
	return sess
}

func TestAcquireFromInstance(t *testing.T) {
	sess := newNoopSession(t)
	if sess.Device() == nil || sess.Queue() == nil {
		t.Fatal("expected device and queue")
	}
	if sess.Adapter().Name == "" {
		t.Error("expected adapter name")
	}
	if sess.pollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", sess.pollInterval, DefaultPollInterval)
	}
}

func TestSessionClose(t *testing.T) {
	sess := newNoopSession(t)
	sess.Close()
	sess.Close() // second close is a no-op

	_, err := sess.CreateBuffer(&BufferDescriptor{Label: "x", Size: 16, Usage: gputypes.BufferUsageStorage})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("CreateBuffer after Close: got %v, want ErrSessionClosed", err)
	}
	if _, err := sess.CreatePipeline("x", "", nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("CreatePipeline after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestCreateBufferSize(t *testing.T) {
	sess := newNoopSession(t)

	tests := []struct {
		name string
		size uint64
		ok   bool
	}{
		{"zero", 0, false},
		{"unaligned", 6, false},
		{"aligned", 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := sess.CreateBuffer(&BufferDescriptor{Label: tt.name, Size: tt.size, Usage: gputypes.BufferUsageStorage})
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				defer buf.Destroy()
				if buf.Size() != tt.size || buf.Label() != tt.name {
					t.Errorf("got size %d label %q", buf.Size(), buf.Label())
				}
				return
			}
			if !errors.Is(err, ErrResource) || !errors.Is(err, ErrInvalidBufferSize) {
				t.Errorf("got %v, want ErrResource wrapping ErrInvalidBufferSize", err)
			}
		})
	}
}

func TestReadBufferBlocking(t *testing.T) {
	sess := newNoopSession(t)
	buf, err := sess.CreateBuffer(&BufferDescriptor{
		Label: "readback",
		Size:  32,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer buf.Destroy()

	data, err := sess.ReadBufferBlocking(context.Background(), buf, 32)
	if err != nil {
		t.Fatalf("ReadBufferBlocking failed: %v", err)
	}
	if len(data) != 32 {
		t.Errorf("len = %d, want 32", len(data))
	}
	if buf.MapState() != MapUnmapped {
		t.Errorf("state after read = %v, want unmapped", buf.MapState())
	}
}

func TestReadBufferBlockingRequiresMapRead(t *testing.T) {
	sess := newNoopSession(t)
	buf, err := sess.CreateBuffer(&BufferDescriptor{Label: "storage", Size: 16, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer buf.Destroy()

	_, err = sess.ReadBufferBlocking(context.Background(), buf, 16)
	if !errors.Is(err, ErrReadback) || !errors.Is(err, ErrMapUsage) {
		t.Errorf("got %v, want ErrReadback wrapping ErrMapUsage", err)
	}
}

func TestPollUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pumps := 0
	err := pollUntil(ctx, time.Microsecond, func() bool { return false }, func() {
		pumps++
		if pumps == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if pumps != 3 {
		t.Errorf("pumps = %d, want 3", pumps)
	}
}

func TestPollUntilDone(t *testing.T) {
	n := 0
	err := pollUntil(context.Background(), time.Microsecond, func() bool { return n >= 2 }, func() { n++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("pumps = %d, want 2", n)
	}
}

// fakeProvider implements gpucontext.DeviceProvider with configurable HAL
// accessors.
type fakeProvider struct {
	device any
	queue  any
}

func (p *fakeProvider) Device() gpucontext.Device             { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue               { return nil }
func (p *fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p *fakeProvider) HalDevice() any                        { return p.device }
func (p *fakeProvider) HalQueue() any                         { return p.queue }

// bareProvider lacks the HAL accessors.
type bareProvider struct{}

func (bareProvider) Device() gpucontext.Device             { return nil }
func (bareProvider) Queue() gpucontext.Queue               { return nil }
func (bareProvider) Adapter() gpucontext.Adapter           { return nil }
func (bareProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }

func TestFromProvider(t *testing.T) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer openDev.Device.Destroy()

	var device hal.Device = openDev.Device
	sess, err := FromProvider(&fakeProvider{device: device, queue: openDev.Queue}, AcquireOptions{})
	if err != nil {
		t.Fatalf("FromProvider failed: %v", err)
	}
	if sess.Adapter().Name != "shared" {
		t.Errorf("adapter = %q, want shared", sess.Adapter().Name)
	}
	sess.Close() // must not destroy the shared device
	if sess.ownsDevice {
		t.Error("shared session must not own the device")
	}

	if _, err := FromProvider(bareProvider{}, AcquireOptions{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("bare provider: got %v, want ErrNoDevice", err)
	}
	if _, err := FromProvider(&fakeProvider{device: "nope", queue: openDev.Queue}, AcquireOptions{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("wrong device type: got %v, want ErrNoDevice", err)
	}
	if _, err := FromProvider(&fakeProvider{device: device, queue: 42}, AcquireOptions{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("wrong queue type: got %v, want ErrNoDevice", err)
	}
}

// failingQueue is a queue whose uploads fail, as after a device loss.
type failingQueue struct {
	hal.Queue
}

func (failingQueue) WriteBuffer(hal.Buffer, uint64, []byte) error {
	return errors.New("device lost")
}

// withFailingUploads swaps the session queue for the duration of the test.
func withFailingUploads(t *testing.T, sess *Session) {
	t.Helper()
	orig := sess.queue
	sess.queue = failingQueue{Queue: orig}
	t.Cleanup(func() { sess.queue = orig })
}

func TestWriteBufferReportsQueueFailure(t *testing.T) {
	sess := newNoopSession(t)
	buf, err := sess.CreateBuffer(&BufferDescriptor{
		Label: "input",
		Size:  16,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer buf.Destroy()

	if err := sess.WriteBuffer(buf, make([]byte, 16)); err != nil {
		t.Fatalf("WriteBuffer on a healthy queue: %v", err)
	}
	withFailingUploads(t, sess)
	err = sess.WriteBuffer(buf, make([]byte, 16))
	if !errors.Is(err, ErrResource) {
		t.Errorf("got %v, want ErrResource", err)
	}
}
