package wavelane

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// defaultBufferDuration is the latency hint passed to the device when no
	// tuning override is given. One second of buffered audio is a safe hint
	// for shared-mode streams.
	defaultBufferDuration = time.Second

	// defaultPollInterval is how long the lease acquisition loop suspends
	// between padding polls while the ring buffer is full.
	defaultPollInterval = time.Millisecond
)

// Tuning holds the session's adjustable timing knobs. The zero value selects
// the defaults.
type Tuning struct {
	// BufferDuration is the latency hint handed to the device at stream
	// initialization. The device may round it to its own period granularity.
	BufferDuration time.Duration

	// PollInterval is the suspension between ring buffer capacity polls in
	// Acquire. Shorter intervals reduce jitter at the cost of wakeups.
	PollInterval time.Duration
}

// DefaultTuning returns the standard timing knobs.
func DefaultTuning() Tuning {
	return Tuning{
		BufferDuration: defaultBufferDuration,
		PollInterval:   defaultPollInterval,
	}
}

func (t Tuning) withDefaults() Tuning {
	if t.BufferDuration <= 0 {
		t.BufferDuration = defaultBufferDuration
	}
	if t.PollInterval <= 0 {
		t.PollInterval = defaultPollInterval
	}
	return t
}

// Session is one negotiated, initialized playback stream against a single
// audio endpoint. It owns the device client and render service handles for
// its whole lifetime and is the sole producer into the device ring buffer;
// the device consumes asynchronously on its own timer thread.
//
// A Session is safe to hand across goroutines but holds no internal locking:
// only one goroutine may operate it at a time.
type Session struct {
	logger *zap.SugaredLogger

	client DeviceClient
	render RenderClient

	maxFramesInBuffer uint32
	channelCount      int
	bytesPerFrame     int
	sampleRate        int
	bitsPerSample     int

	substituted bool
	playing     bool
	closed      bool

	// lease is the currently outstanding buffer lease, nil when none. The
	// device corrupts frame ordering if two claims overlap, so Acquire
	// refuses to issue a second lease instead of trusting the caller.
	lease *Lease

	pollInterval time.Duration
}

// acquisition tracks device resources obtained during the handshake so every
// early return releases exactly the acquired prefix, in reverse order.
type acquisition struct {
	releasers []interface{ Release() }
	committed bool
}

func (a *acquisition) track(r interface{ Release() }) {
	a.releasers = append(a.releasers, r)
}

func (a *acquisition) commit() {
	a.committed = true
}

func (a *acquisition) abort() {
	if a.committed {
		return
	}

	for i := len(a.releasers) - 1; i >= 0; i-- {
		a.releasers[i].Release()
	}
}

// NewSession negotiates a playback stream against the endpoint. The request
// is a starting point for negotiation: if the device offers a substitute
// format, the substitute wins and the session's accessors report it (see
// Substituted). Construction fails with ErrDeviceNotAvailable when the device
// reports itself invalidated, ErrFormatNotSupported when it rejects the
// format outright, and a FatalError for anything else. No device resource
// stays acquired after a failed construction.
func NewSession(logger *zap.SugaredLogger, endpoint Endpoint, request Format, tuning Tuning) (*Session, error) {
	logger = logger.Named("session")
	tuning = tuning.withDefaults()

	client, err := endpoint.BuildAudioClient()
	if err != nil {
		if errors.Is(err, ErrDeviceInvalidated) {
			logger.Warnw("Device invalidated while building audio client", "error", err)
			return nil, ErrDeviceNotAvailable
		}

		return nil, &FatalError{Op: "build audio client", Err: err}
	}

	acquired := &acquisition{}
	acquired.track(client)
	defer acquired.abort()

	candidate := request.wireFormat()

	support, substitute, err := client.IsFormatSupported(candidate)
	if err != nil {
		return nil, classifyHandshakeError("query format support", err)
	}

	resolved := candidate
	substituted := false

	switch support {
	case FormatSupported:
	case FormatSubstituted:
		resolved = *substitute
		substituted = true
		logger.Debugw("Device substituted the requested format",
			"requested", request,
			"channels", resolved.Channels,
			"sampleRate", resolved.SamplesPerSec,
			"bitsPerSample", resolved.BitsPerSample)
	case FormatUnsupported:
		return nil, ErrFormatNotSupported
	}

	if err := client.Initialize(tuning.BufferDuration, resolved); err != nil {
		return nil, classifyHandshakeError("initialize stream", err)
	}

	maxFrames, err := client.BufferSize()
	if err != nil {
		return nil, classifyHandshakeError("query buffer size", err)
	}

	render, err := client.RenderService()
	if err != nil {
		return nil, classifyHandshakeError("obtain render service", err)
	}
	acquired.track(render)

	acquired.commit()

	s := &Session{
		logger:            logger,
		client:            client,
		render:            render,
		maxFramesInBuffer: maxFrames,
		channelCount:      int(resolved.Channels),
		bytesPerFrame:     int(resolved.BlockAlign),
		sampleRate:        int(resolved.SamplesPerSec),
		bitsPerSample:     int(resolved.BitsPerSample),
		substituted:       substituted,
		pollInterval:      tuning.PollInterval,
	}

	logger.Debugw("Created audio session",
		"channels", s.channelCount,
		"sampleRate", s.sampleRate,
		"bitsPerSample", s.bitsPerSample,
		"maxFramesInBuffer", s.maxFramesInBuffer,
		"substituted", s.substituted)

	return s, nil
}

// classifyHandshakeError maps a handshake step failure onto the error
// taxonomy: device-invalidated is recoverable by choosing another endpoint,
// everything else is fatal.
func classifyHandshakeError(op string, err error) error {
	if errors.Is(err, ErrDeviceInvalidated) {
		return ErrDeviceNotAvailable
	}

	return &FatalError{Op: op, Err: err}
}

// ChannelCount returns the negotiated channel count.
func (s *Session) ChannelCount() int {
	return s.channelCount
}

// SampleRate returns the negotiated sample rate in Hz.
func (s *Session) SampleRate() int {
	return s.sampleRate
}

// BytesPerFrame returns the byte width of one interleaved frame.
func (s *Session) BytesPerFrame() int {
	return s.bytesPerFrame
}

// MaxFramesInBuffer returns the device ring buffer capacity in frames.
func (s *Session) MaxFramesInBuffer() uint32 {
	return s.maxFramesInBuffer
}

// Substituted reports whether the device substituted the caller's requested
// format during negotiation. When true, the accessors describe the
// substitute, not the request.
func (s *Session) Substituted() bool {
	return s.substituted
}

// SampleFormat returns the negotiated sample representation. Only 16-bit
// integer PCM is recognized; any other negotiated depth is a capability gap
// reported as ErrSampleFormatUnsupported, never guessed at.
func (s *Session) SampleFormat() (SampleFormat, error) {
	if s.bitsPerSample == 16 {
		return SampleI16, nil
	}

	return 0, ErrSampleFormatUnsupported
}

// Playing reports the current transport state.
func (s *Session) Playing() bool {
	return s.playing
}

// Acquire claims up to maxSamples sample elements worth of frames for
// writing. It polls the device fill level and suspends for the tuned poll
// interval while the ring buffer is full, so it can block for several
// buffer periods; the returned lease always covers at least one frame.
//
// At most one lease may be outstanding: acquiring again before finishing the
// previous lease fails with ErrLeaseOutstanding.
func (s *Session) Acquire(maxSamples int) (*Lease, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.lease != nil {
		return nil, ErrLeaseOutstanding
	}

	requested := maxSamples * SampleI16.ByteSize() / s.bytesPerFrame
	if requested <= 0 {
		return nil, ErrRequestTooSmall
	}
	requestedFrames := uint32(requested)

	for {
		padding, err := s.client.CurrentPadding()
		if err != nil {
			return nil, &FatalError{Op: "query buffer padding", Err: err}
		}

		free := s.maxFramesInBuffer - padding
		if free == 0 {
			time.Sleep(s.pollInterval)
			continue
		}

		frames := free
		if requestedFrames < frames {
			frames = requestedFrames
		}

		raw, err := s.render.AcquireBuffer(frames)
		if err != nil {
			return nil, &FatalError{Op: "acquire render buffer", Err: err}
		}

		lease := &Lease{
			session: s,
			render:  s.render,
			raw:     raw,
			frames:  frames,
		}
		s.lease = lease

		return lease, nil
	}
}

// Play starts the stream. Calling it on an already-playing session performs
// no device call.
func (s *Session) Play() error {
	if s.closed {
		return ErrSessionClosed
	}

	if s.playing {
		return nil
	}

	if err := s.client.Start(); err != nil {
		return &FatalError{Op: "start stream", Err: err}
	}

	s.playing = true

	return nil
}

// Pause stops the stream. Calling it on an already-paused session performs
// no device call.
func (s *Session) Pause() error {
	if s.closed {
		return ErrSessionClosed
	}

	if !s.playing {
		return nil
	}

	if err := s.client.Stop(); err != nil {
		return &FatalError{Op: "stop stream", Err: err}
	}

	s.playing = false

	return nil
}

// Close releases the render service and then the device client, exactly
// once, regardless of transport state. Closing with a lease still
// outstanding is a caller bug; it is logged and the handles are released
// anyway.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}

	if s.lease != nil {
		s.logger.Warnw("Closing session with an unfinished buffer lease",
			"frames", s.lease.frames)
	}

	s.render.Release()
	s.client.Release()
	s.closed = true

	s.logger.Debug("Released audio session resources")

	return nil
}
