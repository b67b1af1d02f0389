// Package config loads the runtime's environment-driven settings (spec
// §6.4) via koanf: struct defaults layered under environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// SecurityMode is spec §6.4's security_mode enum.
type SecurityMode string

const (
	SecurityBearer SecurityMode = "bearer"
	SecurityMTLS   SecurityMode = "mtls"
	SecurityNone   SecurityMode = "none"
)

// Config is every recognized option from spec §6.4.
type Config struct {
	DefaultTimeoutSeconds     int               `koanf:"default_timeout_seconds"`
	MaxRetries                int               `koanf:"max_retries"`
	RetryDelayMS              int               `koanf:"retry_delay_ms"`
	CircuitOpenThreshold      int               `koanf:"circuit_open_threshold"`
	CircuitCooldownMS         int               `koanf:"circuit_cooldown_ms"`
	MaxInFlightPerDestination int               `koanf:"max_in_flight_per_destination"`
	MaxQueuedPerDestination   int               `koanf:"max_queued_per_destination"`
	MaxParallelSteps          int               `koanf:"max_parallel_steps"`
	HotReloadEnabled          bool              `koanf:"hot_reload_enabled"`
	SecurityMode              SecurityMode      `koanf:"security_mode"`
	AuthToken                 string            `koanf:"auth_token"`
	KnownAgents               map[string]string `koanf:"known_agents"`
}

// Defaults mirrors spec §4.6/§4.8's documented defaults.
func Defaults() Config {
	return Config{
		DefaultTimeoutSeconds:     30,
		MaxRetries:                3,
		RetryDelayMS:              1000,
		CircuitOpenThreshold:      5,
		CircuitCooldownMS:         30000,
		MaxInFlightPerDestination: 64,
		MaxQueuedPerDestination:   256,
		MaxParallelSteps:          8,
		HotReloadEnabled:          true,
		SecurityMode:              SecurityNone,
		KnownAgents:               map[string]string{},
	}
}

// envPrefix is the prefix every recognized environment variable carries,
// e.g. AGENTCORE_MAX_RETRIES maps to max_retries.
const envPrefix = "AGENTCORE_"

// Load builds a Config from Defaults() overridden by AGENTCORE_*
// environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}

	if err := k.Load(env.Provider(env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, envPrefix))
			return key, v
		},
	}), nil); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		WeaklyTypedInput: true, // env values arrive as strings; coerce to int/bool
		Result:           &cfg,
	})
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}
	if err := decoder.Decode(k.All()); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}
	return &cfg, nil
}

// RetryDelay is RetryDelayMS as a time.Duration.
func (c Config) RetryDelay() time.Duration { return time.Duration(c.RetryDelayMS) * time.Millisecond }

// CircuitCooldown is CircuitCooldownMS as a time.Duration.
func (c Config) CircuitCooldown() time.Duration {
	return time.Duration(c.CircuitCooldownMS) * time.Millisecond
}

// DefaultTimeout is DefaultTimeoutSeconds as a time.Duration.
func (c Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}
