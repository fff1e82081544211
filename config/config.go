// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config binds the settings of a coordination service client:
// the connect string, the retry policy handed to the client, the namespace
// prefixed to every path, and logging. Settings come from command line
// flags, ZKENSEMBLE_* environment variables, and an optional YAML, TOML or
// JSON file, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/bufbuild/zkensemble"
	"github.com/bufbuild/zkensemble/resolver"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	_envPrefix = "ZKENSEMBLE"

	_defaultConnectString = "localhost:2181"
	_defaultAddressFamily = "all"
	_defaultPollInterval  = time.Minute
)

var (
	// ErrInvalidNamespace is returned by Validate for a namespace that is not
	// a valid absolute path.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrInvalidRetry is returned by Validate for unusable retry settings.
	ErrInvalidRetry = errors.New("invalid retry policy")

	_addressFamilies = map[string]resolver.AddressFamilyAffinity{
		"all":         resolver.AllFamilies,
		"prefer-ipv4": resolver.PreferIPv4,
		"prefer-ipv6": resolver.PreferIPv6,
		"ipv4":        resolver.RequireIPv4,
		"ipv6":        resolver.RequireIPv6,
	}
)

// Config is the configuration of a coordination service client.
type Config struct {
	v *viper.Viper

	// ConnectString looks like "host:port,host:port,...[/chroot]". It must
	// list at least one live member of the ensemble, and should list all of
	// them in case one is temporarily unavailable.
	ConnectString string `mapstructure:"connect-string"`

	// Namespace is prefixed to every path used by the client. Typically it
	// is "/global" or the name of the local data center. If non-empty, it
	// must start with '/' and must not end with '/'.
	Namespace string `mapstructure:"namespace"`

	// AddressFamily is one of "all", "prefer-ipv4", "prefer-ipv6", "ipv4"
	// or "ipv6".
	AddressFamily string `mapstructure:"address-family"`

	// LookupTimeout bounds the resolution of the whole connect string. Zero
	// means no limit.
	LookupTimeout time.Duration `mapstructure:"lookup-timeout"`

	// PollInterval is how often the ensemble is resolved again when watching.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// Watch keeps the process running and reports ensemble changes.
	Watch bool `mapstructure:"watch"`

	Retry Retry `mapstructure:"retry"`
	Log   Log   `mapstructure:"log"`

	affinity resolver.AddressFamilyAffinity
}

// NewConfig creates a new config from command line arguments, the
// environment, and the file named by the --config flag, if any.
func NewConfig(arguments []string) (*Config, error) {
	cfg := &Config{}

	v, fs := configure()

	// parse from command line
	fs.String("config", "", "configuration file")
	err := fs.Parse(arguments)
	if err != nil {
		return nil, err
	}

	// read configuration from file
	if c, _ := fs.GetString("config"); c != "" {
		v.SetConfigFile(c)
		err = v.ReadInConfig()
		if err != nil {
			return nil, errors.Wrap(err, "read configuration file")
		}
	}

	err = v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal configuration")
	}

	cfg.v = v
	return cfg, nil
}

// Adjust generates default values for some fields (if they are empty)
func (c *Config) Adjust() error {
	c.ConnectString = strings.TrimSpace(c.ConnectString)
	if c.ConnectString == "" {
		c.ConnectString = _defaultConnectString
	}
	if c.AddressFamily == "" {
		c.AddressFamily = _defaultAddressFamily
	}
	if c.PollInterval <= 0 {
		c.PollInterval = _defaultPollInterval
	}
	c.Retry.Adjust()
	return errors.WithMessage(c.Log.Adjust(), "adjust log")
}

// Validate checks whether the configuration is valid. It should be called after Adjust
func (c *Config) Validate() error {
	if err := zkensemble.ParseConnectString(c.ConnectString); err != nil {
		return err
	}
	if err := ValidateNamespace(c.Namespace); err != nil {
		return err
	}
	affinity, ok := _addressFamilies[c.AddressFamily]
	if !ok {
		return errors.Errorf("unknown address family %q", c.AddressFamily)
	}
	c.affinity = affinity
	if c.LookupTimeout < 0 {
		return errors.Errorf("negative lookup timeout %s", c.LookupTimeout)
	}
	return c.Retry.Validate()
}

// NewProvider creates the provider of connection strings for the configured
// ensemble. It should be called after Validate.
func (c *Config) NewProvider(logger *zap.Logger) (*zkensemble.ResolvingProvider, error) {
	provider, err := zkensemble.NewResolvingProvider(c.ConnectString,
		zkensemble.WithHostResolver(resolver.NewDNSResolver(nil, c.affinity)),
		zkensemble.WithLookupTimeout(c.LookupTimeout),
		zkensemble.WithLogger(logger),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "create provider")
	}
	return provider, nil
}

// NamespacedPath prefixes path with the namespace. Path must start with '/'.
func (c *Config) NamespacedPath(path string) string {
	if path == "/" && c.Namespace != "" {
		return c.Namespace
	}
	return c.Namespace + path
}

// ConfigFileUsed returns the configuration file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// ValidateNamespace checks that namespace is empty, or is an absolute path
// with no empty, "." or ".." elements and no trailing '/'.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return nil
	}
	if !strings.HasPrefix(namespace, "/") {
		return errors.WithMessagef(ErrInvalidNamespace, "%q must start with '/'", namespace)
	}
	if namespace == "/" || strings.HasSuffix(namespace, "/") {
		return errors.WithMessagef(ErrInvalidNamespace, "%q must not end with '/'", namespace)
	}
	for _, element := range strings.Split(namespace[1:], "/") {
		switch element {
		case "":
			return errors.WithMessagef(ErrInvalidNamespace, "%q has an empty element", namespace)
		case ".", "..":
			return errors.WithMessagef(ErrInvalidNamespace, "%q has a relative element", namespace)
		}
		if strings.ContainsFunc(element, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
			return errors.WithMessagef(ErrInvalidNamespace, "%q has a control character", namespace)
		}
	}
	return nil
}

func configure() (*viper.Viper, *pflag.FlagSet) {
	v := viper.New()
	fs := pflag.NewFlagSet("zkensemble", pflag.ContinueOnError)

	// Viper settings
	v.SetEnvPrefix(_envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// ensemble settings
	fs.String("connect-string", _defaultConnectString, "connect string, e.g. zk1:2181,zk2:2181/chroot")
	fs.String("namespace", "", "namespace prefixed to every path, e.g. /global")
	fs.String("address-family", _defaultAddressFamily, "address family to resolve: all, prefer-ipv4, prefer-ipv6, ipv4 or ipv6")
	fs.Duration("lookup-timeout", 0, "time limit for resolving the connect string (0 means none)")
	fs.Duration("poll-interval", _defaultPollInterval, "interval between resolutions when watching")
	fs.Bool("watch", false, "keep running and report every change of the ensemble")
	_ = v.BindPFlag("connect-string", fs.Lookup("connect-string"))
	_ = v.BindPFlag("namespace", fs.Lookup("namespace"))
	_ = v.BindPFlag("address-family", fs.Lookup("address-family"))
	_ = v.BindPFlag("lookup-timeout", fs.Lookup("lookup-timeout"))
	_ = v.BindPFlag("poll-interval", fs.Lookup("poll-interval"))
	_ = v.BindPFlag("watch", fs.Lookup("watch"))

	// retry settings
	fs.Duration("retry-base-sleep-time", _defaultBaseSleepTime, "initial sleep time between connection retries")
	fs.Duration("retry-max-sleep-time", _defaultMaxSleepTime, "maximum sleep time between connection retries")
	fs.Int("retry-max-attempts", _defaultMaxAttempts, "maximum number of connection retries")
	_ = v.BindPFlag("retry.base-sleep-time", fs.Lookup("retry-base-sleep-time"))
	_ = v.BindPFlag("retry.max-sleep-time", fs.Lookup("retry-max-sleep-time"))
	_ = v.BindPFlag("retry.max-attempts", fs.Lookup("retry-max-attempts"))

	// log settings
	fs.String("log-level", _defaultLogLevel, "log level: debug, info, warn or error")
	fs.String("log-format", _defaultLogFormat, "log format: json or console")
	fs.StringSlice("log-output", []string{"stderr"}, "log output paths")
	fs.Bool("log-enable-rotation", false, "rotate log files written to output paths")
	_ = v.BindPFlag("log.level", fs.Lookup("log-level"))
	_ = v.BindPFlag("log.format", fs.Lookup("log-format"))
	_ = v.BindPFlag("log.output", fs.Lookup("log-output"))
	_ = v.BindPFlag("log.enable-rotation", fs.Lookup("log-enable-rotation"))
	v.SetDefault("log.rotate.max-size", _defaultRotateMaxSize)

	return v, fs
}
