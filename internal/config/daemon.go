package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. KEYGLOW_LOG_LEVEL.
const EnvPrefix = "KEYGLOW"

// Daemon is the process-level configuration of the device manager.
type Daemon struct {
	SocketDir            string        `mapstructure:"socket_dir" validate:"required,abs_path"`
	LogLevel             string        `mapstructure:"log_level" validate:"log_level"`
	HumanLogs            bool          `mapstructure:"human_logs"`
	DeviceConfig         string        `mapstructure:"device_config" validate:"required"`
	UpdateTimeout        time.Duration `mapstructure:"update_timeout" validate:"gt=0"`
	InitTimeout          time.Duration `mapstructure:"init_timeout" validate:"gt=0"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" validate:"gte=1,lte=100"`
	Influx               Influx        `mapstructure:"influx"`
}

// Influx selects where device timings are exported.
type Influx struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org" validate:"required_if=Enabled true"`
	Bucket        string        `mapstructure:"bucket" validate:"required_if=Enabled true"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// DefaultSocketDir is $XDG_RUNTIME_DIR when set, the temp dir otherwise.
func DefaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// DefaultDeviceConfig is devices.yaml under the user config directory.
func DefaultDeviceConfig() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "keyglow", "devices.yaml")
}

// NewViper returns a viper instance carrying defaults and env bindings. When
// path is empty keyglow.yaml is searched in the working directory and the
// user and system config directories.
func NewViper(path string) *viper.Viper {
	v := viper.New()

	v.SetDefault("socket_dir", DefaultSocketDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("human_logs", false)
	v.SetDefault("device_config", DefaultDeviceConfig())
	v.SetDefault("update_timeout", "250ms")
	v.SetDefault("init_timeout", "5s")
	v.SetDefault("shutdown_timeout", "2s")
	v.SetDefault("max_consecutive_errors", 3)
	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.batch_size", 100)
	v.SetDefault("influx.flush_interval", "1s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("keyglow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "keyglow"))
	}
	v.AddConfigPath("/etc/keyglow")
	return v
}

// BindFlags lets command-line flags override file and env values. Flags are
// matched by name with dashes mapped to underscores.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func isKnownKey(key string) bool {
	switch key {
	case "socket_dir", "log_level", "human_logs", "device_config", "update_timeout",
		"init_timeout", "shutdown_timeout", "max_consecutive_errors":
		return true
	}
	return false
}

// LoadDaemon reads the config file if one exists, applies env and flag
// overrides and validates the result. A missing file is not an error when
// no explicit path was given.
func LoadDaemon(v *viper.Viper) (*Daemon, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, kgerrors.NewParseError(v.ConfigFileUsed(), extractLine(err), err)
		}
	}

	var cfg Daemon
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kgerrors.NewParseError(v.ConfigFileUsed(), 0, err)
	}

	if err := ValidateDaemon(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateDaemon checks field constraints.
func ValidateDaemon(cfg *Daemon) error {
	if cfg == nil {
		return kgerrors.NewValidationError("config", "configuration is nil", nil)
	}
	return convertValidationError(validatorInstance().Struct(cfg))
}
