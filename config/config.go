package config

import (
	"io/ioutil"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

const (
	SinkStdout = "stdout"
	SinkLog    = "log"
)

const (
	defaultInterval             = 3 * time.Second
	defaultMessagePrefix        = "New Message: "
	defaultTimeFormat           = "2006-01-02 15:04:05"
	defaultLogLevel             = "info"
	defaultMetricsFlushInterval = 10 * time.Second
)

// Duration is a time.Duration that decodes from a TOML string like "3s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

type ObserverConfig struct {
	Name string `toml:"name"`
	Sink string `toml:"sink"`
}

type NotifierConfig struct {
	Interval      Duration `toml:"interval"`
	MessagePrefix string   `toml:"message_prefix"`
	TimeFormat    string   `toml:"time_format"`
	NotifyOnStart bool     `toml:"notify_on_start"`

	Observers []ObserverConfig `toml:"observer"`

	MetricsAddr          string   `toml:"metrics_addr"`
	MetricsFlushInterval Duration `toml:"metrics_flush_interval"`
	LogDir               string   `toml:"log_dir"`
	LogLevel             string   `toml:"log_level"`
}

// NewDefaultConfig returns a config with one stdout observer.
func NewDefaultConfig() *NotifierConfig {
	cfg := &NotifierConfig{
		Observers: []ObserverConfig{{Name: "reader1", Sink: SinkStdout}},
	}
	cfg.adjust()
	return cfg
}

// NewNotifierConfig implements create a config of notifier server
func NewNotifierConfig(configPath string) (*NotifierConfig, error) {
	if len(configPath) == 0 {
		return nil, errors.New("config.NewNotifierConfig error, err: configpath is nil")
	}

	data, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewConfig(string(data))
}

// NewConfig creates a Config from data
func NewConfig(data string) (*NotifierConfig, error) {
	var cfg NotifierConfig

	_, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}

	cfg.adjust()
	if err = cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &cfg, nil
}

func (c *NotifierConfig) adjust() {
	if c.Interval.Duration == 0 {
		c.Interval.Duration = defaultInterval
	}
	if len(c.MessagePrefix) == 0 {
		c.MessagePrefix = defaultMessagePrefix
	}
	if len(c.TimeFormat) == 0 {
		c.TimeFormat = defaultTimeFormat
	}
	if len(c.LogLevel) == 0 {
		c.LogLevel = defaultLogLevel
	}
	if c.MetricsFlushInterval.Duration == 0 {
		c.MetricsFlushInterval.Duration = defaultMetricsFlushInterval
	}
	for i := range c.Observers {
		if len(c.Observers[i].Sink) == 0 {
			c.Observers[i].Sink = SinkStdout
		}
	}
}

func (c *NotifierConfig) validate() error {
	if c.Interval.Duration < 0 {
		return errors.Errorf("interval must be positive, got %s", c.Interval.Duration)
	}
	if c.MetricsFlushInterval.Duration < 0 {
		return errors.Errorf("metrics_flush_interval must be positive, got %s", c.MetricsFlushInterval.Duration)
	}
	for _, o := range c.Observers {
		if len(o.Name) == 0 {
			return errors.New("empty name not allowed for observer")
		}
	}
	return nil
}
