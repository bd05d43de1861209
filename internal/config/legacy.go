package config

import (
	"fmt"
	"strconv"
	"strings"
)

// applyLegacy overlays config.Legacy's flat key-value pairs onto the
// hierarchical sections already populated from YAML. Per spec.md §6,
// legacy values take precedence whenever both namespaces name the same
// setting; keys not recognized here are rejected rather than silently
// ignored, since a typo'd legacy key would otherwise fail open.
func applyLegacy(config *Config) error {
	for key, value := range config.Legacy {
		if ok, err := applyCodecOrExtensionKey(config, key, value); ok {
			if err != nil {
				return fmt.Errorf("legacy key %q: %w", key, err)
			}
			continue
		}

		setter, ok := legacySetters[key]
		if !ok {
			return fmt.Errorf("unrecognized legacy config key %q", key)
		}
		if err := setter(config, value); err != nil {
			return fmt.Errorf("legacy key %q: %w", key, err)
		}
	}
	return nil
}

var legacySetters = map[string]func(*Config, string) error{
	"conference.maxAudioSenders": func(c *Config, v string) error {
		return setInt(&c.Conference.MaxAudioSenders, v)
	},
	"conference.maxVideoSenders": func(c *Config, v string) error {
		return setInt(&c.Conference.MaxVideoSenders, v)
	},
	"conference.maxSourcesPerEndpoint": func(c *Config, v string) error {
		return setInt(&c.Conference.MaxSourcesPerEndpoint, v)
	},
	"conference.maxGroupsPerEndpoint": func(c *Config, v string) error {
		return setInt(&c.Conference.MaxGroupsPerEndpoint, v)
	},
	"conference.singleParticipantTimeout": func(c *Config, v string) error {
		return setInt(&c.Conference.SingleParticipantTimeoutSeconds, v)
	},
	"bridge.failureResetThreshold": func(c *Config, v string) error {
		return setInt(&c.Bridge.FailureResetThresholdSeconds, v)
	},
	"bridge.highStressThreshold": func(c *Config, v string) error {
		return setFloat(&c.Bridge.HighStressThreshold, v)
	},
}

// applyCodecOrExtensionKey handles the two open-ended namespaces
// (codec.<name>.* and rtpExtensions.<name>.*) that legacySetters can't
// enumerate in advance. Returns ok=false if key doesn't belong to either.
func applyCodecOrExtensionKey(config *Config, key, value string) (bool, error) {
	switch {
	case strings.HasPrefix(key, "codec."):
		name, field, ok := splitNamespaced(key, "codec.")
		if !ok {
			return true, fmt.Errorf("malformed codec key")
		}
		if config.Codecs == nil {
			config.Codecs = make(map[string]CodecConfig)
		}
		entry := config.Codecs[name]
		if err := setCodecField(&entry, field, value); err != nil {
			return true, err
		}
		config.Codecs[name] = entry
		return true, nil

	case strings.HasPrefix(key, "rtpExtensions."):
		name, field, ok := splitNamespaced(key, "rtpExtensions.")
		if !ok {
			return true, fmt.Errorf("malformed rtpExtensions key")
		}
		if config.RTPExtensions == nil {
			config.RTPExtensions = make(map[string]RTPExtensionConfig)
		}
		entry := config.RTPExtensions[name]
		if err := setExtensionField(&entry, field, value); err != nil {
			return true, err
		}
		config.RTPExtensions[name] = entry
		return true, nil
	}
	return false, nil
}

func splitNamespaced(key, prefix string) (name, field string, ok bool) {
	rest := strings.TrimPrefix(key, prefix)
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func setCodecField(c *CodecConfig, field, value string) error {
	switch field {
	case "enabled":
		return setBool(&c.Enabled, value)
	case "payloadType":
		return setInt(&c.PayloadType, value)
	case "rtxPayloadType":
		return setInt(&c.RTXPayloadType, value)
	default:
		return fmt.Errorf("unknown codec field %q", field)
	}
}

func setExtensionField(e *RTPExtensionConfig, field, value string) error {
	switch field {
	case "enabled":
		return setBool(&e.Enabled, value)
	case "id":
		return setInt(&e.ID, value)
	default:
		return fmt.Errorf("unknown rtpExtensions field %q", field)
	}
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer: %w", err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("not a float: %w", err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("not a boolean: %w", err)
	}
	*dst = b
	return nil
}
