package config

// RuntimeConfig defines the subset of the configuration that can be
// safely modified at runtime through the web API. It excludes the
// serial line, GPIO library and other hardware settings.
type RuntimeConfig struct {
	Reader    ReaderConfig      `yaml:"Reader" json:"Reader"`
	Indicator IndicatorConfig   `yaml:"Indicator" json:"Indicator"`
	Tags      map[string]string `yaml:"Tags" json:"Tags"`
}

// Runtime extracts the runtime editable part of c.
func (c *Config) Runtime() RuntimeConfig {
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		tags[k] = v
	}
	return RuntimeConfig{
		Reader:    c.Reader,
		Indicator: c.Indicator,
		Tags:      tags,
	}
}

// Merge copies the runtime editable settings into c.
func (c *Config) Merge(rc RuntimeConfig) {
	c.Reader = rc.Reader
	c.Indicator = rc.Indicator
	c.Tags = rc.Tags
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
}
