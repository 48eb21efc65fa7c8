package wavelane

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testRequest() Format {
	return Format{Channels: 2, SampleRate: 44100, Sample: SampleI16}
}

// testTuning polls fast so blocking tests finish quickly.
func testTuning() Tuning {
	return Tuning{PollInterval: time.Microsecond}
}

func invalidatedErr() error {
	return fmt.Errorf("mock: %w", ErrDeviceInvalidated)
}

func TestSessionNegotiatesRequestedFormat(t *testing.T) {
	endpoint := newMockEndpoint(4096)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	if s.ChannelCount() != 2 {
		t.Errorf("channels: expected 2, got %d", s.ChannelCount())
	}
	if s.SampleRate() != 44100 {
		t.Errorf("sample rate: expected 44100, got %d", s.SampleRate())
	}
	if s.BytesPerFrame() != 4 {
		t.Errorf("bytes per frame: expected 4, got %d", s.BytesPerFrame())
	}
	if s.MaxFramesInBuffer() != 4096 {
		t.Errorf("max frames: expected 4096, got %d", s.MaxFramesInBuffer())
	}
	if s.Substituted() {
		t.Error("expected no format substitution")
	}

	sf, err := s.SampleFormat()
	if err != nil {
		t.Fatalf("SampleFormat failed: %v", err)
	}
	if sf != SampleI16 {
		t.Errorf("sample format: expected %v, got %v", SampleI16, sf)
	}

	device := endpoint.device
	if !device.initialized {
		t.Fatal("device was never initialized")
	}
	if device.initDuration != defaultBufferDuration {
		t.Errorf("buffer duration hint: expected %v, got %v", defaultBufferDuration, device.initDuration)
	}
	if device.initFormat.Tag != wavePCM {
		t.Errorf("wire format tag: expected %d, got %d", wavePCM, device.initFormat.Tag)
	}
}

func TestSessionAdoptsSubstitutedFormat(t *testing.T) {
	endpoint := newMockEndpoint(2048)
	endpoint.device.support = FormatSubstituted
	endpoint.device.substitute = &WireFormat{
		Tag:            wavePCM,
		Channels:       2,
		SamplesPerSec:  48000,
		AvgBytesPerSec: 2 * 48000 * 2,
		BlockAlign:     4,
		BitsPerSample:  16,
	}

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	if !s.Substituted() {
		t.Error("expected the substitution to be surfaced")
	}
	if s.SampleRate() != 48000 {
		t.Errorf("sample rate: expected the substituted 48000, got %d", s.SampleRate())
	}

	// The device must have been initialized with the substitute, not the request.
	if endpoint.device.initFormat.SamplesPerSec != 48000 {
		t.Errorf("initialized with rate %d, expected 48000", endpoint.device.initFormat.SamplesPerSec)
	}
}

func TestSessionFormatUnsupported(t *testing.T) {
	endpoint := newMockEndpoint(2048)
	endpoint.device.support = FormatUnsupported

	if _, err := NewSession(testLogger(), endpoint, testRequest(), testTuning()); !errors.Is(err, ErrFormatNotSupported) {
		t.Fatalf("expected ErrFormatNotSupported, got %v", err)
	}

	if !endpoint.balanced() {
		t.Error("device resources leaked after format rejection")
	}
}

func TestSessionDeviceInvalidatedAtBuild(t *testing.T) {
	endpoint := newMockEndpoint(2048)
	endpoint.buildErr = invalidatedErr()

	if _, err := NewSession(testLogger(), endpoint, testRequest(), testTuning()); !errors.Is(err, ErrDeviceNotAvailable) {
		t.Fatalf("expected ErrDeviceNotAvailable, got %v", err)
	}

	if !endpoint.balanced() {
		t.Error("device resources leaked after failed client build")
	}
}

func TestSessionHandshakeFailureCleanup(t *testing.T) {
	steps := []struct {
		name     string
		sabotage func(*mockDeviceClient, error)
	}{
		{"format support query", func(d *mockDeviceClient, err error) { d.supportErr = err }},
		{"stream initialization", func(d *mockDeviceClient, err error) { d.initErr = err }},
		{"buffer size query", func(d *mockDeviceClient, err error) { d.sizeErr = err }},
		{"render service", func(d *mockDeviceClient, err error) { d.serviceErr = err }},
	}

	for _, step := range steps {
		t.Run(step.name+"/invalidated", func(t *testing.T) {
			endpoint := newMockEndpoint(2048)
			step.sabotage(endpoint.device, invalidatedErr())

			_, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
			if !errors.Is(err, ErrDeviceNotAvailable) {
				t.Fatalf("expected ErrDeviceNotAvailable, got %v", err)
			}
			if !endpoint.balanced() {
				t.Error("device resources leaked")
			}
		})

		t.Run(step.name+"/fatal", func(t *testing.T) {
			endpoint := newMockEndpoint(2048)
			step.sabotage(endpoint.device, errMockFailure)

			_, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
			if !IsFatal(err) {
				t.Fatalf("expected a fatal error, got %v", err)
			}
			if !errors.Is(err, errMockFailure) {
				t.Errorf("fatal error should wrap the device failure, got %v", err)
			}
			if !endpoint.balanced() {
				t.Error("device resources leaked")
			}
		})
	}
}

func TestPlayPauseIdempotent(t *testing.T) {
	endpoint := newMockEndpoint(2048)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	if s.Playing() {
		t.Fatal("new session should not be playing")
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("repeated Play failed: %v", err)
	}
	if endpoint.device.startCalls != 1 {
		t.Errorf("expected a single Start device call, got %d", endpoint.device.startCalls)
	}
	if !s.Playing() {
		t.Error("session should be playing")
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("repeated Pause failed: %v", err)
	}
	if endpoint.device.stopCalls != 1 {
		t.Errorf("expected a single Stop device call, got %d", endpoint.device.stopCalls)
	}
	if s.Playing() {
		t.Error("session should be paused")
	}
}

func TestPlayFailureKeepsState(t *testing.T) {
	endpoint := newMockEndpoint(2048)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	endpoint.device.startErr = errMockFailure

	if err := s.Play(); !IsFatal(err) {
		t.Fatalf("expected a fatal error, got %v", err)
	}
	if s.Playing() {
		t.Error("playing flag must not flip when the device call fails")
	}
}

func TestAcquireBlocksUntilCapacity(t *testing.T) {
	endpoint := newMockEndpoint(256)
	// Full for two polls, then 16 frames free up.
	endpoint.device.paddingSchedule = []uint32{256, 256, 240}

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	lease, err := s.Acquire(1024)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if endpoint.device.paddingCalls < 3 {
		t.Errorf("expected at least 3 padding polls, got %d", endpoint.device.paddingCalls)
	}
	if lease.FrameCount() != 16 {
		t.Errorf("expected a 16-frame lease, got %d", lease.FrameCount())
	}

	if err := lease.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
}

func TestAcquireClampsToRequest(t *testing.T) {
	endpoint := newMockEndpoint(1024)
	endpoint.device.paddingSchedule = []uint32{0} // whole buffer free

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	// 32 samples at 2 bytes each over 4-byte frames = 16 frames.
	lease, err := s.Acquire(32)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if lease.FrameCount() != 16 {
		t.Errorf("expected lease clamped to 16 frames, got %d", lease.FrameCount())
	}
	if len(lease.Samples()) != 32 {
		t.Errorf("expected a 32-sample view, got %d", len(lease.Samples()))
	}

	if err := lease.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
}

func TestAcquireSecondLeaseFails(t *testing.T) {
	endpoint := newMockEndpoint(1024)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	lease, err := s.Acquire(64)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := s.Acquire(64); !errors.Is(err, ErrLeaseOutstanding) {
		t.Fatalf("expected ErrLeaseOutstanding, got %v", err)
	}

	if err := lease.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// Finishing the lease unblocks the render path.
	next, err := s.Acquire(64)
	if err != nil {
		t.Fatalf("Acquire after Finish failed: %v", err)
	}
	if err := next.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
}

func TestAcquireRequestTooSmall(t *testing.T) {
	endpoint := newMockEndpoint(1024)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	// One 2-byte sample cannot cover a 4-byte frame.
	if _, err := s.Acquire(1); !errors.Is(err, ErrRequestTooSmall) {
		t.Fatalf("expected ErrRequestTooSmall, got %v", err)
	}
}

func TestAcquireFatalOnPaddingFailure(t *testing.T) {
	endpoint := newMockEndpoint(1024)
	endpoint.device.paddingErr = errMockFailure

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Acquire(64); !IsFatal(err) {
		t.Fatalf("expected a fatal error, got %v", err)
	}
}

func TestSampleFormatUnsupportedBitDepth(t *testing.T) {
	endpoint := newMockEndpoint(1024)
	endpoint.device.support = FormatSubstituted
	endpoint.device.substitute = &WireFormat{
		Tag:            wavePCM,
		Channels:       2,
		SamplesPerSec:  44100,
		AvgBytesPerSec: 2 * 44100 * 3,
		BlockAlign:     6,
		BitsPerSample:  24,
	}

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	if _, err := s.SampleFormat(); !errors.Is(err, ErrSampleFormatUnsupported) {
		t.Fatalf("expected ErrSampleFormatUnsupported for 24-bit, got %v", err)
	}
}

func TestCloseReleasesExactlyOnceInOrder(t *testing.T) {
	endpoint := newMockEndpoint(1024)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("repeated Close failed: %v", err)
	}

	device := endpoint.device
	if device.released != 1 {
		t.Errorf("device client released %d times, expected 1", device.released)
	}
	if device.render.released != 1 {
		t.Errorf("render client released %d times, expected 1", device.render.released)
	}

	// Reverse-acquisition order: render service before device client.
	if len(device.releaseOrder) != 2 || device.releaseOrder[0] != "render" || device.releaseOrder[1] != "device" {
		t.Errorf("unexpected release order: %v", device.releaseOrder)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	endpoint := newMockEndpoint(1024)

	s, err := NewSession(testLogger(), endpoint, testRequest(), testTuning())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.Acquire(64); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Acquire after Close: expected ErrSessionClosed, got %v", err)
	}
	if err := s.Play(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Play after Close: expected ErrSessionClosed, got %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Pause after Close: expected ErrSessionClosed, got %v", err)
	}
}
