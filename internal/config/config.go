// Package config loads the focus's configuration, adapted from the
// teacher's pkg/config: a CONFIG-environment-variable-or-file YAML loader
// with a validation pass, extended here with spec.md §6's dual
// hierarchical/legacy-flat configuration surface.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/conference"
	"github.com/signalmesh/focus/internal/telemetry"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// CodecConfig bounds one audio/video codec's negotiated payload types
// (configuration surface keys codec.<name>.*).
type CodecConfig struct {
	Enabled        bool `yaml:"enabled"`
	PayloadType    int  `yaml:"payloadType"`
	RTXPayloadType int  `yaml:"rtxPayloadType"`
}

// RTPExtensionConfig bounds one RTP header extension's negotiated id
// (configuration surface keys rtpExtensions.<name>.*).
type RTPExtensionConfig struct {
	Enabled bool `yaml:"enabled"`
	ID      int  `yaml:"id"`
}

// ConferenceConfig is the YAML shape of conference.Config; durations are
// expressed in whole seconds, matching the teacher's KeepAliveTimeout
// convention in pkg/conference/config.go.
type ConferenceConfig struct {
	MaxAudioSenders                int   `yaml:"maxAudioSenders"`
	MaxVideoSenders                int   `yaml:"maxVideoSenders"`
	MaxSourcesPerEndpoint           int   `yaml:"maxSourcesPerEndpoint"`
	MaxGroupsPerEndpoint            int   `yaml:"maxGroupsPerEndpoint"`
	SingleParticipantTimeoutSeconds int   `yaml:"singleParticipantTimeout"`
	SessionExpirationTimeoutSeconds int   `yaml:"sessionExpirationTimeout"`
	InviteConcurrency               int64 `yaml:"inviteConcurrency"`
}

// ToDomain builds the conference.Config this section describes.
func (c ConferenceConfig) ToDomain(highStressThreshold float64) conference.Config {
	return conference.Config{
		MaxAudioSenders:           c.MaxAudioSenders,
		MaxVideoSenders:           c.MaxVideoSenders,
		MaxSourcesPerEndpoint:     c.MaxSourcesPerEndpoint,
		MaxGroupsPerEndpoint:      c.MaxGroupsPerEndpoint,
		SingleParticipantTimeout:  time.Duration(c.SingleParticipantTimeoutSeconds) * time.Second,
		SessionExpirationTimeout:  time.Duration(c.SessionExpirationTimeoutSeconds) * time.Second,
		InviteConcurrency:         c.InviteConcurrency,
		BridgeHighStressThreshold: highStressThreshold,
	}
}

// BridgeConfig is the YAML shape of the bridge registry/selector's knobs.
type BridgeConfig struct {
	LostSeconds                  int     `yaml:"lost"`
	FailureResetThresholdSeconds int     `yaml:"failureResetThreshold"`
	HighStressThreshold          float64 `yaml:"highStressThreshold"`
}

// ToDomain builds the bridge.Config this section describes.
func (b BridgeConfig) ToDomain() bridge.Config {
	return bridge.Config{
		Lost:                  time.Duration(b.LostSeconds) * time.Second,
		FailureResetThreshold: time.Duration(b.FailureResetThresholdSeconds) * time.Second,
	}
}

// Config is the focus's full configuration.
type Config struct {
	Conference    ConferenceConfig              `yaml:"conference"`
	Bridge        BridgeConfig                  `yaml:"bridge"`
	Codecs        map[string]CodecConfig        `yaml:"codec"`
	RTPExtensions map[string]RTPExtensionConfig `yaml:"rtpExtensions"`
	Telemetry     telemetry.Config              `yaml:"telemetry"`
	LogLevel      string                        `yaml:"log"`

	// Legacy is the flat key-value namespace (e.g. "conference.maxAudioSenders"
	// -> "6"); values here override the hierarchical section above when both
	// name the same setting (spec.md §6).
	Legacy map[string]string `yaml:"legacy"`
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// Load tries the CONFIG environment variable first, then falls back to path.
func Load(path string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}
		return LoadFromPath(path)
	}
	return config, nil
}

// LoadFromEnv loads the config from the CONFIG environment variable.
func LoadFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}
	return LoadFromString(configEnv)
}

// LoadFromPath loads the config from a YAML file.
func LoadFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return LoadFromString(string(file))
}

// LoadFromString parses config from a YAML document, applies legacy
// flat-key overrides, and validates the result.
func LoadFromString(document string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(document), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
	}

	if err := applyLegacy(&config); err != nil {
		return nil, fmt.Errorf("failed to apply legacy config overrides: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Conference.MaxAudioSenders < 0 || c.Conference.MaxVideoSenders < 0 {
		return errors.New("config: sender limits must not be negative")
	}
	if c.Bridge.HighStressThreshold < 0 || c.Bridge.HighStressThreshold > 1 {
		return errors.New("config: bridge.highStressThreshold must be in [0,1]")
	}
	return nil
}
