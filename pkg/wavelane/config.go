package wavelane

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/wavelane/wavelane/pkg/wavelane/util"
)

// CanonicalConfig provides centralized access to configuration fields
type CanonicalConfig struct {
	Playback PlaybackInfo
	Tuning   Tuning

	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan struct{}

	reloadConsumers []chan bool

	userConfig *viper.Viper
}

// PlaybackInfo groups the requested stream settings
type PlaybackInfo struct {
	Channels      int
	SampleRate    int
	SourcePath    string
	ToneFrequency float64
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."

	configType                = "yaml"
	configKeyChannels         = "channel_count"
	configKeySampleRate       = "sample_rate"
	configKeySourcePath       = "source_path"
	configKeyToneFrequency    = "tone_frequency"
	configKeyPollIntervalMS   = "poll_interval_ms"
	configKeyBufferDurationMS = "buffer_duration_ms"

	defaultChannels      = 2
	defaultSampleRate    = 44100
	defaultToneFrequency = 440.0

	// Debounce window between a config file event and the actual reload,
	// since editors fire several events per save.
	configReloadDelay = 100 * time.Millisecond
)

// allowedChannelCounts are the channel layouts the shared-mode render path
// is known to handle.
var allowedChannelCounts = []int{1, 2}

// NewConfig initializes the configuration manager
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    make([]chan bool, 0),
		stopWatcherChannel: make(chan struct{}),
	}

	cc.userConfig = initializeViper(userConfigName, userConfigPath, map[string]interface{}{
		configKeyChannels:         defaultChannels,
		configKeySampleRate:       defaultSampleRate,
		configKeySourcePath:       "",
		configKeyToneFrequency:    defaultToneFrequency,
		configKeyPollIntervalMS:   int(defaultPollInterval / time.Millisecond),
		configKeyBufferDurationMS: int(defaultBufferDuration / time.Millisecond),
	})

	logger.Debug("Created configuration instance")

	return cc, nil
}

// initializeViper creates and configures a Viper instance
func initializeViper(name, path string, defaults map[string]interface{}) *viper.Viper {
	config := viper.New()
	config.SetConfigName(name)
	config.SetConfigType(configType)
	config.AddConfigPath(path)

	for key, value := range defaults {
		config.SetDefault(key, value)
	}

	return config
}

// Load reads and validates the configuration file
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading user configuration", "path", userConfigFilepath)

	if !util.FileExists(userConfigFilepath) {
		cc.logger.Warnw("Configuration file not found, using defaults", "path", userConfigFilepath)
		return cc.populateFromViper()
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		return cc.handleConfigError(err)
	}

	return cc.populateFromViper()
}

// handleConfigError processes errors during config file loading
func (cc *CanonicalConfig) handleConfigError(err error) error {
	cc.logger.Warnw("Failed to load configuration", "error", err)

	if strings.Contains(err.Error(), "yaml:") {
		cc.notifier.Notify("Invalid configuration format!",
			"Ensure the YAML file is properly formatted.")
	} else {
		cc.notifier.Notify("Error loading configuration!", "Check logs for more details.")
	}
	return fmt.Errorf("read user config: %w", err)
}

// populateFromViper reads configuration fields into structured fields
func (cc *CanonicalConfig) populateFromViper() error {
	cc.Playback = PlaybackInfo{
		Channels:      cc.validateChannels(cc.userConfig.GetInt(configKeyChannels)),
		SampleRate:    cc.validateSampleRate(cc.userConfig.GetInt(configKeySampleRate)),
		SourcePath:    cc.userConfig.GetString(configKeySourcePath),
		ToneFrequency: cc.userConfig.GetFloat64(configKeyToneFrequency),
	}
	cc.Tuning = Tuning{
		PollInterval:   time.Duration(cc.userConfig.GetInt(configKeyPollIntervalMS)) * time.Millisecond,
		BufferDuration: time.Duration(cc.userConfig.GetInt(configKeyBufferDurationMS)) * time.Millisecond,
	}

	cc.logger.Debugw("Configuration populated successfully",
		"playback", cc.Playback,
		"tuning", cc.Tuning)
	return nil
}

// validateChannels checks for a supported channel count, returning the default if invalid
func (cc *CanonicalConfig) validateChannels(channels int) int {
	if funk.ContainsInt(allowedChannelCounts, channels) {
		return channels
	}
	cc.logger.Warnw("Unsupported channel count specified, using default",
		"invalidValue", channels, "defaultValue", defaultChannels)
	return defaultChannels
}

// validateSampleRate checks for a valid sample rate, returning the default if invalid
func (cc *CanonicalConfig) validateSampleRate(sampleRate int) int {
	if sampleRate > 0 {
		return sampleRate
	}
	cc.logger.Warnw("Invalid sample rate specified, using default",
		"invalidValue", sampleRate, "defaultValue", defaultSampleRate)
	return defaultSampleRate
}

// SubscribeToChanges returns a channel that receives a value whenever the
// configuration is reloaded from disk
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)
	return c
}

// WatchConfigFileChanges blocks and reloads the configuration whenever the
// file changes on disk, until StopWatchingConfigFile is called
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		cc.logger.Debugw("User config file changed", "event", event.String())

		// Let the editor finish writing before re-reading
		<-time.After(configReloadDelay)

		if err := cc.Load(); err != nil {
			cc.logger.Warnw("Failed to reload config file", "error", err)
			return
		}

		for _, consumer := range cc.reloadConsumers {
			consumer <- true
		}
	})

	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
}

// StopWatchingConfigFile signals the watcher to shut down
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- struct{}{}
}
