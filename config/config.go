package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/gorfid/rdm"
)

const CONFILE = "config.yml"

type Config struct {
	Serial     SerialConfig      `yaml:"Serial"`
	Reader     ReaderConfig      `yaml:"Reader"`
	Hardware   HardwareConfig    `yaml:"Hardware"`
	Indicator  IndicatorConfig   `yaml:"Indicator"`
	Tags       map[string]string `yaml:"Tags"`
	Simulation SimulationConfig  `yaml:"Simulation"`
	Web        WebConfig         `yaml:"Web"`
	Logging    LoggingConfig     `yaml:"Logging"`
}

type SerialConfig struct {
	Device      string        `yaml:"Device"`
	BaudRate    int           `yaml:"BaudRate"`
	DataBits    int           `yaml:"DataBits"`
	Parity      string        `yaml:"Parity"`
	StopBits    string        `yaml:"StopBits"`
	ReadTimeout time.Duration `yaml:"ReadTimeout"`
}

type ReaderConfig struct {
	PollDelay   time.Duration `yaml:"PollDelay" json:"PollDelay"`
	Debounce    time.Duration `yaml:"Debounce" json:"Debounce"`
	HistorySize int           `yaml:"HistorySize" json:"HistorySize"`
}

type HardwareConfig struct {
	GPIOLibrary string `yaml:"GPIOLibrary"`
}

type IndicatorConfig struct {
	Enabled       bool          `yaml:"Enabled" json:"Enabled"`
	LedPin        int           `yaml:"LedPin" json:"LedPin"`
	BuzzerPin     int           `yaml:"BuzzerPin" json:"BuzzerPin"`
	PulseDuration time.Duration `yaml:"PulseDuration" json:"PulseDuration"`
	SignalErrors  bool          `yaml:"SignalErrors" json:"SignalErrors"`
	QuietAtNight  bool          `yaml:"QuietAtNight" json:"QuietAtNight"`
	Latitude      float64       `yaml:"Latitude" json:"Latitude"`
	Longitude     float64       `yaml:"Longitude" json:"Longitude"`
}

type SimulationConfig struct {
	Tags []string `yaml:"Tags"`
}

type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// NoPin marks an unused indicator output.
const NoPin = -1

const maxGPIO = 27

// Default returns a configuration that works with an RDM6300 attached
// to the primary UART of a Raspberry Pi.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:      "/dev/serial0",
			BaudRate:    9600,
			DataBits:    8,
			Parity:      "none",
			StopBits:    "1",
			ReadTimeout: 50 * time.Millisecond,
		},
		Reader: ReaderConfig{
			PollDelay:   10 * time.Millisecond,
			Debounce:    time.Second,
			HistorySize: 100,
		},
		Hardware: HardwareConfig{GPIOLibrary: "rpio"},
		Indicator: IndicatorConfig{
			LedPin:        NoPin,
			BuzzerPin:     NoPin,
			PulseDuration: 150 * time.Millisecond,
		},
		Tags: map[string]string{},
		Web:  WebConfig{Address: ":8080"},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text"},
		},
	}
}

// ReadConfig reads, completes and validates the configuration file.
// Keys missing in the file keep their default value.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	// an empty file means all defaults
	if err := decoder.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if conf.Tags == nil {
		conf.Tags = map[string]string{}
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	conf.Tags = canonicalTags(conf.Tags)
	return conf, nil
}

// Validate checks the whole configuration and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Serial.Device == "" {
		errs = append(errs, errors.New("Serial.Device must not be empty"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("Serial.BaudRate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, fmt.Errorf("Serial.DataBits must be between 5 and 8, got %d", c.Serial.DataBits))
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		errs = append(errs, fmt.Errorf("Serial.Parity must be one of none, odd, even, mark, space, got %q", c.Serial.Parity))
	}
	switch c.Serial.StopBits {
	case "1", "1.5", "2":
	default:
		errs = append(errs, fmt.Errorf("Serial.StopBits must be one of 1, 1.5, 2, got %q", c.Serial.StopBits))
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("Serial.ReadTimeout must be positive, got %s", c.Serial.ReadTimeout))
	}

	if err := c.Reader.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Hardware.GPIOLibrary {
	case "rpio", "periph.io":
	default:
		errs = append(errs, fmt.Errorf("Hardware.GPIOLibrary must be rpio or periph.io, got %q", c.Hardware.GPIOLibrary))
	}

	if err := c.Indicator.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := validateTags(c.Tags); err != nil {
		errs = append(errs, err)
	}
	for i, s := range c.Simulation.Tags {
		if _, err := rdm.ParseTag(s); err != nil {
			errs = append(errs, fmt.Errorf("Simulation.Tags[%d]: %w", i, err))
		}
	}

	if c.Web.Enabled && c.Web.Address == "" {
		errs = append(errs, errors.New("Web.Address must be set when Web is enabled"))
	}

	errs = append(errs, c.Logging.TUI.validate("Logging.TUI"), c.Logging.HW.validate("Logging.HW"))
	return errors.Join(errs...)
}

func (r ReaderConfig) Validate() error {
	var errs []error
	if r.PollDelay <= 0 {
		errs = append(errs, fmt.Errorf("Reader.PollDelay must be positive, got %s", r.PollDelay))
	}
	if r.Debounce < 0 {
		errs = append(errs, fmt.Errorf("Reader.Debounce must not be negative, got %s", r.Debounce))
	}
	if r.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("Reader.HistorySize must be at least 1, got %d", r.HistorySize))
	}
	return errors.Join(errs...)
}

func (i IndicatorConfig) Validate() error {
	var errs []error
	for name, pin := range map[string]int{"LedPin": i.LedPin, "BuzzerPin": i.BuzzerPin} {
		if pin != NoPin && (pin < 0 || pin > maxGPIO) {
			errs = append(errs, fmt.Errorf("Indicator.%s must be between 0 and %d (or %d to disable), got %d", name, maxGPIO, NoPin, pin))
		}
	}
	if i.LedPin != NoPin && i.LedPin == i.BuzzerPin {
		errs = append(errs, fmt.Errorf("Indicator.LedPin and Indicator.BuzzerPin must differ, both are %d", i.LedPin))
	}
	if i.Enabled && i.PulseDuration <= 0 {
		errs = append(errs, fmt.Errorf("Indicator.PulseDuration must be positive, got %s", i.PulseDuration))
	}
	if i.Latitude < -90 || i.Latitude > 90 {
		errs = append(errs, fmt.Errorf("Indicator.Latitude must be between -90 and 90, got %v", i.Latitude))
	}
	if i.Longitude < -180 || i.Longitude > 180 {
		errs = append(errs, fmt.Errorf("Indicator.Longitude must be between -180 and 180, got %v", i.Longitude))
	}
	return errors.Join(errs...)
}

func validateTags(tags map[string]string) error {
	var errs []error
	seen := make(map[rdm.Tag]string, len(tags))
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		tag, err := rdm.ParseTag(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("Tags: %w", err))
			continue
		}
		if other, ok := seen[tag]; ok {
			errs = append(errs, fmt.Errorf("Tags: %q and %q name the same tag", other, key))
			continue
		}
		seen[tag] = key
	}
	return errors.Join(errs...)
}

// canonicalTags rewrites the keys of tags into the notation of
// rdm.Tag.String. Keys that do not parse are kept unchanged.
func canonicalTags(tags map[string]string) map[string]string {
	ret := make(map[string]string, len(tags))
	for key, name := range tags {
		if tag, err := rdm.ParseTag(key); err == nil {
			key = tag.String()
		}
		ret[key] = name
	}
	return ret
}

func (l LogConfig) validate(prefix string) error {
	var errs []error
	switch strings.ToUpper(l.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("%s.Level must be one of DEBUG, INFO, WARN, ERROR, got %q", prefix, l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%s.Format must be text or json, got %q", prefix, l.Format))
	}
	return errors.Join(errs...)
}

// Labels returns the configured tag names keyed by the canonical tag
// notation, so lookups work regardless of the case used in the file.
func (c *Config) Labels() map[rdm.Tag]string {
	labels := make(map[rdm.Tag]string, len(c.Tags))
	for key, name := range c.Tags {
		tag, err := rdm.ParseTag(key)
		if err != nil {
			continue
		}
		labels[tag] = name
	}
	return labels
}

// SimulatedTags returns the parsed Simulation.Tags.
func (c *Config) SimulatedTags() []rdm.Tag {
	tags := make([]rdm.Tag, 0, len(c.Simulation.Tags))
	for _, s := range c.Simulation.Tags {
		if tag, err := rdm.ParseTag(s); err == nil {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Local Variables:
// compile-command: "cd .. && go build"
// End:
