package wavelane

import (
	"errors"
	"fmt"
	"time"
)

// errMockFailure stands in for an arbitrary non-invalidated device failure.
var errMockFailure = errors.New("mock device failure")

// mockEndpoint is a test double for the §6-style endpoint collaborator. It
// hands out a single mockDeviceClient and counts acquire/release calls so
// tests can assert resource balance on every construction path.
type mockEndpoint struct {
	device *mockDeviceClient

	buildErr error
	builds   int
	released int
}

func newMockEndpoint(bufferFrames uint32) *mockEndpoint {
	return &mockEndpoint{
		device: &mockDeviceClient{
			bufferFrames: bufferFrames,
			support:      FormatSupported,
		},
	}
}

func (e *mockEndpoint) BuildAudioClient() (DeviceClient, error) {
	if e.buildErr != nil {
		return nil, e.buildErr
	}

	e.builds++
	return e.device, nil
}

func (e *mockEndpoint) Release() {
	e.released++
}

// balanced reports whether every handle handed out was released.
func (e *mockEndpoint) balanced() bool {
	d := e.device
	if d.released != e.builds {
		return false
	}
	if d.render != nil && d.render.released != d.renderServed {
		return false
	}
	return true
}

// mockDeviceClient simulates the device transport layer. Individual
// handshake steps can be made to fail, and the padding poll follows a
// scripted schedule (the last entry repeats).
type mockDeviceClient struct {
	bufferFrames uint32

	support    FormatSupport
	substitute *WireFormat

	supportErr error
	initErr    error
	sizeErr    error
	serviceErr error
	paddingErr error
	startErr   error
	stopErr    error

	paddingSchedule []uint32
	paddingCalls    int

	initialized  bool
	initDuration time.Duration
	initFormat   WireFormat

	startCalls int
	stopCalls  int

	render       *mockRenderClient
	renderServed int
	released     int

	// releaseOrder records handle releases across the device and its render
	// client, for teardown ordering assertions.
	releaseOrder []string
}

func (d *mockDeviceClient) IsFormatSupported(candidate WireFormat) (FormatSupport, *WireFormat, error) {
	if d.supportErr != nil {
		return FormatUnsupported, nil, d.supportErr
	}

	if d.support == FormatSubstituted {
		return FormatSubstituted, d.substitute, nil
	}

	return d.support, nil, nil
}

func (d *mockDeviceClient) Initialize(bufferDuration time.Duration, format WireFormat) error {
	if d.initErr != nil {
		return d.initErr
	}

	d.initialized = true
	d.initDuration = bufferDuration
	d.initFormat = format
	return nil
}

func (d *mockDeviceClient) BufferSize() (uint32, error) {
	if d.sizeErr != nil {
		return 0, d.sizeErr
	}

	return d.bufferFrames, nil
}

func (d *mockDeviceClient) RenderService() (RenderClient, error) {
	if d.serviceErr != nil {
		return nil, d.serviceErr
	}

	if d.render == nil {
		d.render = &mockRenderClient{device: d, bytesPerFrame: int(d.initFormat.BlockAlign)}
	}
	d.renderServed++
	return d.render, nil
}

func (d *mockDeviceClient) CurrentPadding() (uint32, error) {
	if d.paddingErr != nil {
		return 0, d.paddingErr
	}

	idx := d.paddingCalls
	d.paddingCalls++

	if len(d.paddingSchedule) == 0 {
		return 0, nil
	}
	if idx >= len(d.paddingSchedule) {
		idx = len(d.paddingSchedule) - 1
	}
	return d.paddingSchedule[idx], nil
}

func (d *mockDeviceClient) Start() error {
	if d.startErr != nil {
		return d.startErr
	}

	d.startCalls++
	return nil
}

func (d *mockDeviceClient) Stop() error {
	if d.stopErr != nil {
		return d.stopErr
	}

	d.stopCalls++
	return nil
}

func (d *mockDeviceClient) Release() {
	d.released++
	d.releaseOrder = append(d.releaseOrder, "device")
}

// mockRenderClient simulates the render service: claims hand out scratch
// regions and commits record a copy of the claimed bytes, in order, so tests
// can verify the consumed stream byte for byte.
type mockRenderClient struct {
	device        *mockDeviceClient
	bytesPerFrame int

	acquireErr error
	commitErr  error

	claimed       []byte
	claimedFrames uint32

	committed     [][]byte
	commitFrames  []uint32
	acquires      int
	commits       int
	released      int
}

func (r *mockRenderClient) AcquireBuffer(frames uint32) ([]byte, error) {
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}

	if r.claimed != nil {
		return nil, fmt.Errorf("overlapping claim: %d frames already out", r.claimedFrames)
	}

	r.acquires++
	r.claimed = make([]byte, int(frames)*r.bytesPerFrame)
	r.claimedFrames = frames
	return r.claimed, nil
}

func (r *mockRenderClient) CommitBuffer(frames uint32) error {
	if r.commitErr != nil {
		return r.commitErr
	}

	if r.claimed == nil {
		return errors.New("commit without claim")
	}

	span := make([]byte, int(frames)*r.bytesPerFrame)
	copy(span, r.claimed)

	r.commits++
	r.committed = append(r.committed, span)
	r.commitFrames = append(r.commitFrames, frames)
	r.claimed = nil
	r.claimedFrames = 0
	return nil
}

func (r *mockRenderClient) Release() {
	r.released++
	r.device.releaseOrder = append(r.device.releaseOrder, "render")
}
