// Package clientconfig centralises configuration for the hive client
// runtime, mirroring the env + optional file loader used across the rest of
// the codebase (spec.md §6 Configuration).
package clientconfig

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"

	"github.com/hiveswarm/hive/internal/hiveerr"
)

// ClientConfig holds every option the runtime recognizes. It is immutable
// after construction: internal/runtime reads it once during Init and never
// mutates it.
type ClientConfig struct {
	// Gateways lists the initial set of gateway endpoints the transport may
	// dial. Ignored when GatewayListProvider is "redis".
	Gateways []string `mapstructure:"gateways"`

	// GatewayListProvider selects how the gateway address list is resolved:
	// "static" (use Gateways as-is) or "redis" (watch a Redis set).
	GatewayListProvider string `mapstructure:"gateway_list_provider"`
	RedisAddr           string `mapstructure:"redis_addr"`
	RedisKey            string `mapstructure:"redis_key"`

	// ResponseTimeout bounds how long an outbound two-way request waits for
	// a response before its retry hook fires. Overridden to
	// DebuggerResponseTimeout when DebuggerAttached is true (spec.md §4.2).
	ResponseTimeout         time.Duration `mapstructure:"response_timeout"`
	DebuggerAttached        bool          `mapstructure:"debugger_attached"`
	DebuggerResponseTimeout time.Duration `mapstructure:"debugger_response_timeout"`

	// MaxClockSkew is added to a message's computed expiration to absorb
	// cross-node clock drift (spec.md §4.2, §4.4 step 6).
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`

	// DropExpiredMessages enables IsExpirable stamping for outbound
	// requests; see grain.ExpirationPolicy.
	DropExpiredMessages bool `mapstructure:"drop_expired_messages"`

	// MaxResendCount bounds the TryResend budget; see grain.ResendPolicy.
	MaxResendCount int `mapstructure:"max_resend_count"`

	// UseStandardSerializer selects the json-iterator-backed serializer
	// instead of the default gob-based deep copier.
	UseStandardSerializer bool `mapstructure:"use_standard_serializer"`

	// PreferredFamily and NetInterface name a local address family ("tcp4",
	// "tcp6", or "" for either) and an interface (empty for the default
	// route). They are loaded and carried here only; no component of the
	// runtime reads them, and the transport does not bind a listening
	// endpoint.
	PreferredFamily string `mapstructure:"preferred_family"`
	NetInterface    string `mapstructure:"net_interface"`

	// DNSHostName is loaded and carried here only; no component of the
	// runtime reads it, so it appears neither in telemetry rows nor in log
	// fields, and an empty value is left empty.
	DNSHostName string `mapstructure:"dns_hostname"`

	// StatisticsProviderName names the statsprovider plugin that
	// runtime.InitDefault looks up to publish client telemetry. It is an
	// input only: nothing writes it back after Init.
	StatisticsProviderName string `mapstructure:"statistics_provider_name"`

	// StatsFlushInterval controls how often internal/clientstats samples
	// and flushes counters.
	StatsFlushInterval time.Duration `mapstructure:"stats_flush_interval"`

	// StatsBulkCap is the external publisher's bulk-write row cap
	// (spec.md §4.9, §8 R7).
	StatsBulkCap int `mapstructure:"stats_bulk_cap"`

	// DeploymentID identifies the deployment for telemetry partition keys.
	DeploymentID string `mapstructure:"deployment_id"`

	// AuthSecret, if set, is used to HMAC-sign a short-lived bearer token
	// (pkg/auth) presented to the gateway as grpctransport.Config.AuthToken.
	// Empty means the transport connects without an authorization header.
	AuthSecret string `mapstructure:"auth_secret"`

	// AuthIssuer is stamped as the signed token's "iss" claim; the gateway
	// peer verifies it matches its own configured issuer.
	AuthIssuer string `mapstructure:"auth_issuer"`

	// AuthTokenTTL bounds how long the signed bearer token remains valid;
	// InitDefault re-signs on every call, so this only needs to outlast a
	// single Start's handshake.
	AuthTokenTTL time.Duration `mapstructure:"auth_token_ttl"`
}

// DefaultConfig returns a ClientConfig with conservative defaults, mirroring
// the rest of the codebase's DefaultConfig convention.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		GatewayListProvider:     "static",
		ResponseTimeout:         30 * time.Second,
		DebuggerResponseTimeout: 30 * time.Minute,
		MaxClockSkew:            5 * time.Second,
		DropExpiredMessages:     true,
		MaxResendCount:          2,
		StatsFlushInterval:      30 * time.Second,
		StatsBulkCap:            200,
		DeploymentID:            "default",
		AuthIssuer:              "hive-client",
		AuthTokenTTL:            5 * time.Minute,
	}
}

// Load reads configuration from envPrefix-prefixed environment variables and
// an optional file, merging over DefaultConfig. An empty filePath means
// env-only. Unlike the agent/gateway loaders this keeps viper.New() scoped
// to this call so tests can load multiple independent configs.
func Load(filePath, envPrefix string) (ClientConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.AutomaticEnv()
		// Unmarshal only sees keys viper knows about, so bind each field's
		// key to its prefixed environment variable explicitly.
		t := reflect.TypeOf(cfg)
		for i := 0; i < t.NumField(); i++ {
			if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
				_ = v.BindEnv(key)
			}
		}
	}
	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return ClientConfig{}, fmt.Errorf("clientconfig: read config file: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("clientconfig: unmarshal: %w", err)
	}
	return cfg, Validate(cfg)
}

// Validate rejects configurations that would make Start meaningless,
// causing the caller to fail fast with hiveerr.ErrConfigInvalid rather than
// wedge later inside the transport (spec.md §4.8 Init, §7 ConfigInvalid).
func Validate(cfg ClientConfig) error {
	switch {
	case cfg.GatewayListProvider == "static" && len(cfg.Gateways) == 0:
		return fmt.Errorf("clientconfig: static provider requires at least one gateway: %w", hiveerr.ErrConfigInvalid)
	case cfg.GatewayListProvider == "redis" && cfg.RedisAddr == "":
		return fmt.Errorf("clientconfig: redis provider requires redis_addr: %w", hiveerr.ErrConfigInvalid)
	case cfg.ResponseTimeout <= 0:
		return fmt.Errorf("clientconfig: response_timeout must be positive: %w", hiveerr.ErrConfigInvalid)
	case cfg.StatsBulkCap <= 0:
		return fmt.Errorf("clientconfig: stats_bulk_cap must be positive: %w", hiveerr.ErrConfigInvalid)
	}
	return nil
}

// EffectiveResponseTimeout applies the debugger-attached override (spec.md
// §4.2 Timer semantics): the value is fixed once at registration time, never
// re-read per resend.
func (c ClientConfig) EffectiveResponseTimeout() time.Duration {
	if c.DebuggerAttached {
		return c.DebuggerResponseTimeout
	}
	return c.ResponseTimeout
}

func (c ClientConfig) ExpirationPolicy() (expirable bool, clockSkew time.Duration, responseTimeout time.Duration) {
	return c.DropExpiredMessages, c.MaxClockSkew, c.EffectiveResponseTimeout()
}
