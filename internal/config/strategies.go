package config

// GridStepCfg is one averaging-grid step as declared in strategies.yaml.
type GridStepCfg struct {
	Indent float64 `yaml:"indent"`
	Volume float64 `yaml:"volume"`
}

// TimeframeRule names the periodic-signal rule for one side of a strategy
// (the original bot's `entry_conditions.rules.CRON`).
type TimeframeRule struct {
	Enable    bool   `yaml:"enable"`
	Timeframe string `yaml:"tfr"`
}

// StrategySide holds one LONG or SHORT branch of a strategy's rules.
type StrategySide struct {
	Rules     TimeframeRule `yaml:"rules"`
	GridOrders []GridStepCfg `yaml:"grid_orders"`
}

// StrategyEntry is one named strategy declaration.
type StrategyEntry struct {
	Name  string       `yaml:"name"`
	Long  StrategySide `yaml:"LONG"`
	Short StrategySide `yaml:"SHORT"`
}

// StrategiesDocument is the top-level shape of strategies.yaml.
type StrategiesDocument struct {
	Strategies []StrategyEntry `yaml:"strategies"`
}
