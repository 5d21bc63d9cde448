// Package config loads the smoke runner configuration.
//
// Sources, lowest precedence first: built-in defaults, the config file
// (smoke.yaml), a .env file, environment variables, command-line flags.
// Credentials come from AUTH_USERNAME and AUTH_PASSWORD; every other key
// can be set from the environment with the SMOKE_ prefix, e.g.
// SMOKE_TARGET_URL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pessu/auth0-smoke/pkg/smoke"
	"github.com/pessu/auth0-smoke/pkg/smoke/browser"
)

const (
	EnvPrefix   = "SMOKE"
	EnvUsername = "AUTH_USERNAME"
	EnvPassword = "AUTH_PASSWORD"

	defaultConfigName = "smoke"
	defaultEnvFile    = ".env"
)

// Config is the runner configuration.
type Config struct {
	ProjectID         string `mapstructure:"project_id"`
	ChromeWebSecurity bool   `mapstructure:"chrome_web_security"`
	Headless          bool   `mapstructure:"headless"`
	ChromeBin         string `mapstructure:"chrome_bin"`

	TargetURL       string        `mapstructure:"target_url"`
	ExpectedName    string        `mapstructure:"expected_name"`
	ReturnMarker    string        `mapstructure:"return_marker"`
	RedirectTimeout time.Duration `mapstructure:"redirect_timeout"`
	AssertTimeout   time.Duration `mapstructure:"assert_timeout"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`

	Auth Auth `mapstructure:"auth"`
}

// Auth holds the identity provider credentials.
type Auth struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config path. It must exist when set;
	// otherwise smoke.yaml in the working directory is used if present.
	ConfigFile string
	// EnvFile defaults to .env in the working directory. Missing is fine.
	EnvFile string
	// Flags are bound on top of every other source. Flag names use dashes
	// where keys use underscores: --target-url sets target_url.
	Flags *pflag.FlagSet
}

// keys lists every known key with its default.
var keys = map[string]any{
	"project_id":          "auth0",
	"chrome_web_security": false,
	"headless":            true,
	"chrome_bin":          "",
	"target_url":          smoke.DefaultTargetURL,
	"expected_name":       smoke.DefaultExpectedName,
	"return_marker":       smoke.DefaultReturnMarker,
	"redirect_timeout":    smoke.DefaultRedirectTimeout,
	"assert_timeout":      smoke.DefaultAssertTimeout,
	"command_timeout":     browser.DefaultConfig().Timeout,
	"auth.username":       "",
	"auth.password":       "",
}

// Load resolves the configuration from all sources.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("auth.username", EnvUsername); err != nil {
		return nil, err
	}
	if err := v.BindEnv("auth.password", EnvPassword); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := applyEnvFile(v, envFile, opts.Flags); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := keys[key]; known && bindErr == nil {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// applyEnvFile treats the dotenv entries as environment variables that are
// not already set. A flag the user passed still wins.
func applyEnvFile(v *viper.Viper, path string, flags *pflag.FlagSet) error {
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	for _, name := range dv.AllKeys() {
		key, ok := envKey(name)
		if !ok {
			continue
		}
		if os.Getenv(strings.ToUpper(name)) != "" {
			continue
		}
		if flags != nil {
			if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil && f.Changed {
				continue
			}
		}
		v.Set(key, dv.GetString(name))
	}
	return nil
}

// envKey maps an environment variable name (lower-cased, as viper reports
// dotenv keys) to a config key.
func envKey(name string) (string, bool) {
	switch name {
	case strings.ToLower(EnvUsername):
		return "auth.username", true
	case strings.ToLower(EnvPassword):
		return "auth.password", true
	}
	prefix := strings.ToLower(EnvPrefix) + "_"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(name, prefix)
	if _, known := keys[key]; !known {
		return "", false
	}
	return key, true
}

// Flow maps the runner configuration onto the scenario configuration.
func (c *Config) Flow() smoke.Config {
	fc := smoke.DefaultConfig()
	fc.TargetURL = c.TargetURL
	fc.ExpectedName = c.ExpectedName
	fc.ReturnMarker = c.ReturnMarker
	fc.RedirectTimeout = c.RedirectTimeout
	fc.AssertTimeout = c.AssertTimeout
	fc.Username = c.Auth.Username
	fc.Password = c.Auth.Password
	return fc
}

// Browser maps the runner configuration onto the Chrome launch options.
func (c *Config) Browser() browser.Config {
	return browser.Config{
		Headless:          c.Headless,
		ChromeWebSecurity: c.ChromeWebSecurity,
		Bin:               c.ChromeBin,
		Timeout:           c.CommandTimeout,
	}
}

// String renders the configuration with the password masked.
func (c *Config) String() string {
	pw := ""
	if c.Auth.Password != "" {
		pw = "********"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "project_id:          %s\n", c.ProjectID)
	fmt.Fprintf(&b, "chrome_web_security: %t\n", c.ChromeWebSecurity)
	fmt.Fprintf(&b, "headless:            %t\n", c.Headless)
	fmt.Fprintf(&b, "target_url:          %s\n", c.TargetURL)
	fmt.Fprintf(&b, "expected_name:       %s\n", c.ExpectedName)
	fmt.Fprintf(&b, "return_marker:       %s\n", c.ReturnMarker)
	fmt.Fprintf(&b, "redirect_timeout:    %v\n", c.RedirectTimeout)
	fmt.Fprintf(&b, "assert_timeout:      %v\n", c.AssertTimeout)
	fmt.Fprintf(&b, "command_timeout:     %v\n", c.CommandTimeout)
	fmt.Fprintf(&b, "auth.username:       %s\n", c.Auth.Username)
	fmt.Fprintf(&b, "auth.password:       %s\n", pw)
	return b.String()
}
