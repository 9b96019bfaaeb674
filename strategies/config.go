package strategies

// Config selects and tunes a recommender.
type Config struct {
	Name       string `json:"name" yaml:"name"`
	FastPeriod int    `json:"fast_period" yaml:"fast_period"`
	SlowPeriod int    `json:"slow_period" yaml:"slow_period"`
	ATRPeriod  int    `json:"atr_period" yaml:"atr_period"`

	// ADX trend filter, used by ema-adx.
	ADXPeriod int     `json:"adx_period" yaml:"adx_period"`
	ADXMin    float64 `json:"adx_min" yaml:"adx_min"`

	AllowShort bool    `json:"allow_short" yaml:"allow_short"`
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Groups maps symbols to correlation groups.
	Groups map[string]string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Name:       "sma-cross",
		FastPeriod: 10,
		SlowPeriod: 30,
		ATRPeriod:  14,
		ADXPeriod:  14,
		ADXMin:     20,
		Confidence: 0.6,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FastPeriod == 0 {
		c.FastPeriod = d.FastPeriod
	}
	if c.SlowPeriod == 0 {
		c.SlowPeriod = d.SlowPeriod
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.ADXPeriod == 0 {
		c.ADXPeriod = d.ADXPeriod
	}
	if c.Confidence == 0 {
		c.Confidence = d.Confidence
	}
	return c
}
