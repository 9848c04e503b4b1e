package cell

import (
	"time"
)

// Config describes a single cellular module instance to be added to a
// Context.
type Config struct {
	// Dialer opens the transport to the module. Required.
	Dialer Dialer
	// Module is the attached module variant. It decides which extended
	// radio information query is eligible.
	Module ModuleType
	// ATTimeout is the default timeout for a single AT command response.
	ATTimeout time.Duration
	// InitTimeout bounds the instance bring-up sequence.
	InitTimeout time.Duration
	// UcgedSettleTime is the delay imposed between the AT+CSQ baseline and
	// the extended AT+UCGED? query during a refresh, so the module is not
	// overtasked when refreshes are polled. The mutex is held across it,
	// keep it short.
	UcgedSettleTime time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.UcgedSettleTime == 0 {
		c.UcgedSettleTime = 500 * time.Millisecond
	}
}

// ConfigBuilder assembles a Config. Build validates the result and applies
// defaults for unset durations.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(dialer Dialer) *ConfigBuilder {
	b.config.Dialer = dialer
	return b
}

func (b *ConfigBuilder) WithModule(module ModuleType) *ConfigBuilder {
	b.config.Module = module
	return b
}

func (b *ConfigBuilder) WithATTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.ATTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithInitTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.InitTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithUcgedSettleTime(d time.Duration) *ConfigBuilder {
	b.config.UcgedSettleTime = d
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
