// Package wavelane negotiates low-latency playback sessions against a native
// audio endpoint and streams PCM into the device ring buffer through a safe
// acquire/fill/finish lease protocol.
package wavelane

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wavelane/wavelane/pkg/wavelane/util"
)

// Player ties a configuration, an endpoint, a sample source and a session
// into a run loop that keeps the device ring buffer fed until the source
// ends or the process is interrupted.
type Player struct {
	logger      *zap.SugaredLogger
	notifier    Notifier
	config      *CanonicalConfig
	endpoint    Endpoint
	session     *Session
	source      SampleSource
	stopChannel chan bool
	version     string
	verbose     bool
}

// leaseChunkDivisor sizes each lease request relative to one second of
// audio: a tenth of a second per lease keeps acquire latency low without
// starving the device between refills.
const leaseChunkDivisor = 10

// NewPlayer creates a new Player instance.
func NewPlayer(logger *zap.SugaredLogger, verbose bool) (*Player, error) {
	logger = logger.Named("player")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create notifier", "error", err)
		return nil, err
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create configuration", "error", err)
		return nil, err
	}

	p := &Player{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Player instance created successfully")
	return p, nil
}

// Initialize loads configuration, negotiates the playback session and starts
// running the player until the source ends or an interrupt arrives.
func (p *Player) Initialize() error {
	p.logger.Debug("Initializing player")

	if err := p.config.Load(); err != nil {
		p.logger.Errorw("Failed to load configuration", "error", err)
		return err
	}

	source, err := p.openSource()
	if err != nil {
		p.logger.Errorw("Failed to open sample source", "error", err)
		return err
	}
	p.source = source

	endpoint, err := DefaultEndpoint(p.logger)
	if err != nil {
		p.handlePlaybackError(err)
		return err
	}
	p.endpoint = endpoint

	request := Format{
		Channels:   source.Channels(),
		SampleRate: source.SampleRate(),
		Sample:     SampleI16,
	}

	session, err := NewSession(p.logger, endpoint, request, p.config.Tuning)
	if err != nil {
		p.handlePlaybackError(err)
		endpoint.Release()
		return err
	}
	p.session = session

	if session.Substituted() {
		p.logger.Warnw("Device substituted the requested format, playback may be distorted",
			"requestedRate", request.SampleRate,
			"negotiatedRate", session.SampleRate())
	}

	p.setupInterruptHandler()
	p.run()

	return nil
}

// SetVersion sets the application version for logging purposes.
func (p *Player) SetVersion(version string) {
	p.version = version
}

// Verbose indicates whether the player runs in verbose mode.
func (p *Player) Verbose() bool {
	return p.verbose
}

// openSource picks the sample source from configuration: a WAV or MP3 file
// when a source path is set, a generated tone otherwise.
func (p *Player) openSource() (SampleSource, error) {
	playback := p.config.Playback

	if playback.SourcePath == "" {
		p.logger.Debugw("No source path configured, generating tone",
			"frequency", playback.ToneFrequency)
		return NewToneSource(playback.Channels, playback.SampleRate, playback.ToneFrequency), nil
	}

	switch strings.ToLower(filepath.Ext(playback.SourcePath)) {
	case ".wav":
		return NewWAVSource(playback.SourcePath)
	case ".mp3":
		return NewMP3Source(playback.SourcePath)
	default:
		p.notifier.Notify("Unsupported source file!",
			"Only .wav and .mp3 sources are supported.")
		return nil, ErrSampleFormatUnsupported
	}
}

func (p *Player) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		p.logger.Debugw("Interrupt received", "signal", signal)
		p.signalStop()
	}()
}

func (p *Player) run() {
	p.logger.Info("Run loop starting")

	go p.config.WatchConfigFileChanges()

	go func() {
		defer p.recoverFromPanic()

		if err := p.stream(); err != nil {
			p.handlePlaybackError(err)
			p.signalStop()
		}
	}()

	<-p.stopChannel
	p.logger.Debug("Stop signal received")

	if err := p.stop(); err != nil {
		p.logger.Warnw("Error during shutdown", "error", err)
		os.Exit(1)
	}

	os.Exit(0)
}

// stream drives the acquire/fill/finish cycle until the source is drained.
func (p *Player) stream() error {
	if err := p.session.Play(); err != nil {
		return err
	}

	chunk := p.session.SampleRate() * p.session.ChannelCount() / leaseChunkDivisor

	for {
		lease, err := p.session.Acquire(chunk)
		if err != nil {
			return err
		}

		samples := lease.Samples()

		n, err := p.source.ReadSamples(samples)
		if err != nil && err != io.EOF {
			// The claim still has to be committed to unblock the render path.
			zeroSamples(samples)
			if finishErr := lease.Finish(); finishErr != nil {
				return finishErr
			}
			return err
		}

		// The device plays whatever the unwritten tail holds, so silence it.
		zeroSamples(samples[n:])

		if finishErr := lease.Finish(); finishErr != nil {
			return finishErr
		}

		if err == io.EOF {
			p.logger.Info("Source drained, stopping playback")
			p.signalStop()
			return nil
		}
	}
}

func zeroSamples(samples []int16) {
	for i := range samples {
		samples[i] = 0
	}
}

// handlePlaybackError maps session errors onto user-facing notifications,
// mirroring the error taxonomy: the two recoverable construction errors get
// actionable messages, everything else is stream-fatal.
func (p *Player) handlePlaybackError(err error) {
	switch {
	case errors.Is(err, ErrDeviceNotAvailable):
		p.logger.Warnw("Audio device not available", "error", err)
		p.notifier.Notify("Audio device not available!",
			"Plug in an output device or pick another endpoint and try again.")
	case errors.Is(err, ErrFormatNotSupported):
		p.logger.Warnw("Requested format not supported", "error", err)
		p.notifier.Notify("Audio format not supported!",
			"The device rejected the requested format. Try a different sample rate.")
	case errors.Is(err, ErrPlatformUnsupported):
		p.logger.Warnw("No native audio transport on this platform", "error", err)
	case IsFatal(err):
		p.logger.Errorw("Unrecoverable device failure", "error", err)
		p.notifier.Notify("Playback failed!", "Check logs for more details.")
	default:
		p.logger.Warnw("Unknown error during playback", "error", err)
	}
}

func (p *Player) signalStop() {
	p.logger.Debug("Sending stop signal")
	p.stopChannel <- true
}

func (p *Player) stop() error {
	p.logger.Info("Shutting down player")

	p.config.StopWatchingConfigFile()

	if p.session != nil {
		if err := p.session.Pause(); err != nil {
			p.logger.Warnw("Failed to pause session during shutdown", "error", err)
		}
		p.session.Close()
	}

	if p.source != nil {
		p.source.Close()
	}

	if p.endpoint != nil {
		p.endpoint.Release()
	}

	p.logger.Sync()
	return nil
}
