package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment,
// e.g. log_level is read from HEXPIPE_LOG_LEVEL.
const EnvPrefix = "HEXPIPE"

const (
	// DefaultBufferSize is the relay chunk size in bytes
	DefaultBufferSize = 8192

	// MinBufferSize is the smallest accepted relay chunk size
	MinBufferSize = 1024

	// DefaultDialTimeout bounds how long a tunnel target dial may take
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxTunnels bounds concurrently open tunnels in a server
	DefaultMaxTunnels = 64

	// DefaultSASExpiry is the lifetime of generated hybrid connection tokens
	DefaultSASExpiry = time.Hour
)

// Config holds shared configuration values for hexpipe components
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// LogFormat selects console or json log output
	LogFormat string

	// Mode selects plain targets (local) or an Azure Relay hybrid connection (remote)
	Mode Mode

	// BufferSize is the chunk size used by byte relays
	BufferSize int

	// DialTimeout bounds target dials made by tunnel servers
	DialTimeout time.Duration

	// AwaitTimeout bounds waits on tunnels and pipelines; zero waits forever
	AwaitTimeout time.Duration

	// MaxTunnels bounds concurrently open tunnels per server
	MaxTunnels int

	// RelayNamespace is the Azure Relay namespace (remote mode)
	RelayNamespace string

	// HybridConnection is the hybrid connection name (remote mode)
	HybridConnection string

	// SASKeyName is the shared access policy name (remote mode)
	SASKeyName string

	// SASKey is the base64 shared access key (remote mode)
	SASKey string

	// SASExpiry is the lifetime of generated SAS tokens
	SASExpiry time.Duration
}

// Load creates a Config by reading from environment variables
// and applying defaults where values are not set
func Load() *Config {
	return fromViper(newViper())
}

// LoadFile creates a Config from a configuration file, with environment
// variables taking precedence over file values
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("buffer_size", DefaultBufferSize)
	v.SetDefault("dial_timeout", DefaultDialTimeout)
	v.SetDefault("await_timeout", time.Duration(0))
	v.SetDefault("max_tunnels", DefaultMaxTunnels)
	v.SetDefault("relay_namespace", "")
	v.SetDefault("hybrid_connection", "")
	v.SetDefault("sas_key_name", "")
	v.SetDefault("sas_key", "")
	v.SetDefault("sas_expiry", DefaultSASExpiry)
	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		Mode:             Mode(strings.ToLower(v.GetString("mode"))),
		BufferSize:       v.GetInt("buffer_size"),
		DialTimeout:      v.GetDuration("dial_timeout"),
		AwaitTimeout:     v.GetDuration("await_timeout"),
		MaxTunnels:       v.GetInt("max_tunnels"),
		RelayNamespace:   v.GetString("relay_namespace"),
		HybridConnection: v.GetString("hybrid_connection"),
		SASKeyName:       v.GetString("sas_key_name"),
		SASKey:           v.GetString("sas_key"),
		SASExpiry:        v.GetDuration("sas_expiry"),
	}
}

// Validate checks that configuration values are usable, reporting every problem at once
func (c *Config) Validate() error {
	var problems []string

	if !c.Mode.IsValid() {
		problems = append(problems, fmt.Sprintf("%s_MODE must be local or remote (got %q)", EnvPrefix, c.Mode))
	}
	if c.BufferSize < MinBufferSize {
		problems = append(problems, fmt.Sprintf("%s_BUFFER_SIZE must be at least %d", EnvPrefix, MinBufferSize))
	}
	if c.DialTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s_DIAL_TIMEOUT must be positive", EnvPrefix))
	}
	if c.AwaitTimeout < 0 {
		problems = append(problems, fmt.Sprintf("%s_AWAIT_TIMEOUT must not be negative", EnvPrefix))
	}
	if c.MaxTunnels < 1 {
		problems = append(problems, fmt.Sprintf("%s_MAX_TUNNELS must be at least 1", EnvPrefix))
	}

	if c.Mode == ModeRemote {
		var missing []string
		if c.RelayNamespace == "" {
			missing = append(missing, EnvPrefix+"_RELAY_NAMESPACE")
		}
		if c.HybridConnection == "" {
			missing = append(missing, EnvPrefix+"_HYBRID_CONNECTION")
		}
		if c.SASKeyName == "" {
			missing = append(missing, EnvPrefix+"_SAS_KEY_NAME")
		}
		if c.SASKey == "" {
			missing = append(missing, EnvPrefix+"_SAS_KEY")
		}
		if len(missing) > 0 {
			problems = append(problems, "missing required configuration: "+strings.Join(missing, ", "))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
