package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"toggle-client/pkg/wire"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all configuration (file + env + flag overrides).
type Config struct {
	APIURL          string        `mapstructure:"api_url"`
	AppName         string        `mapstructure:"app_name"`
	InstanceID      string        `mapstructure:"instance_id"`
	ClientSecret    string        `mapstructure:"client_secret"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	DisableMetrics  bool          `mapstructure:"disable_metrics"`
	DefaultEnabled  bool          `mapstructure:"default_enabled"`
	Project         string        `mapstructure:"project"`
	NamePrefix      string        `mapstructure:"name_prefix"`
	// Tags are name:value pairs.
	Tags     []string `mapstructure:"tags"`
	LogLevel string   `mapstructure:"log_level"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

var defaults = map[string]any{
	"api_url":          "",
	"app_name":         "",
	"instance_id":      "",
	"client_secret":    "",
	"poll_interval":    15 * time.Second,
	"metrics_interval": 60 * time.Second,
	"request_timeout":  10 * time.Second,
	"disable_metrics":  false,
	"default_enabled":  false,
	"project":          "",
	"name_prefix":      "",
	"tags":             []string{},
	"log_level":        "info",
	"server.addr":      ":8080",
}

// Load reads an optional YAML file, then UNLEASH_* environment variables,
// then any changed flags in fs. An empty path looks for configs/togglectl.yaml.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("togglectl")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		_ = v.ReadInConfig() // optional; env can fully configure
	}

	v.SetEnvPrefix("UNLEASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKey(f.Name)
			if !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// flagKey maps a flag name such as poll-interval or addr to its config key.
func flagKey(name string) (string, bool) {
	key := strings.ReplaceAll(name, "-", "_")
	if _, ok := defaults[key]; ok {
		return key, true
	}
	if _, ok := defaults["server."+key]; ok {
		return "server." + key, true
	}
	return "", false
}

func validate(c *Config) error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api_url is required"))
	} else if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("api_url %q is not an http(s) url", c.APIURL))
	}
	if c.AppName == "" {
		errs = append(errs, errors.New("app_name is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.MetricsInterval <= 0 {
		errs = append(errs, errors.New("metrics_interval must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if _, err := c.TagFilters(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	if c.InstanceID == "" {
		c.InstanceID = defaultInstanceID()
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return nil
}

func defaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "togglectl-" + uuid.NewString()
}

// TagFilters parses Tags.
func (c Config) TagFilters() ([]wire.TagFilter, error) {
	out := make([]wire.TagFilter, 0, len(c.Tags))
	for _, t := range c.Tags {
		name, value, ok := strings.Cut(strings.TrimSpace(t), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("tag %q must be name:value", t)
		}
		out = append(out, wire.TagFilter{Name: name, Value: value})
	}
	return out, nil
}

// Query is the feature filter, or nil when no filter is configured.
func (c Config) Query() *wire.Query {
	tags, _ := c.TagFilters()
	if c.Project == "" && c.NamePrefix == "" && len(tags) == 0 {
		return nil
	}
	return &wire.Query{Project: c.Project, NamePrefix: c.NamePrefix, Tags: tags}
}
