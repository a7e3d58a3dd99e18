package config

// Direction is the per-user side-enablement bitmask (spec §6): 1=long,
// 2=short, 3=both.
type Direction int

const (
	DirectionLong  Direction = 1
	DirectionShort Direction = 2
	DirectionBoth  Direction = 3
)

func (d Direction) AllowsLong() bool  { return d == DirectionLong || d == DirectionBoth }
func (d Direction) AllowsShort() bool { return d == DirectionShort || d == DirectionBoth }

// UserCore mirrors the original bot's per-user `core` block.
type UserCore struct {
	MarginType          string    `yaml:"margin_type"`
	QuoteAsset          string    `yaml:"quote_asset"`
	Direction           Direction `yaml:"direction"`
	LongPositionsLimit  int       `yaml:"long_positions_limit"`
	ShortPositionsLimit int       `yaml:"short_positions_limit"`
}

// SymbolRisk is one entry of a user's `symbols_risk` table, keyed by
// symbol with "ANY_COINS" as the fallback key.
type SymbolRisk struct {
	MarginSize  float64  `yaml:"margin_size"`
	Leverage    float64  `yaml:"leverage"`
	SL          *float64 `yaml:"sl"`
	FallbackSL  *float64 `yaml:"fallback_sl"`
	TP          *float64 `yaml:"tp"`
	TPOrderType string   `yaml:"tp_order_type"`
	FallbackTP  *float64 `yaml:"fallback_tp"`
}

const AnyCoins = "ANY_COINS"

// UserKeys are the per-user exchange API credentials.
type UserKeys struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// StrategySymbolsEntry ties one strategy to the base symbols a user
// trades it on. Kept as a slice (not a map) so duplicate strategy names
// across entries can be detected (spec §7 Fatal: "duplicate strategy
// keys").
type StrategySymbolsEntry struct {
	Name    string   `yaml:"name"`
	Enable  bool     `yaml:"enable"`
	Symbols []string `yaml:"symbols"`
}

// RawUser is one entry of users.yaml, before suffixing/resolution.
type RawUser struct {
	Keys             UserKeys                `yaml:"keys"`
	Core             UserCore                `yaml:"core"`
	SymbolsRisk      map[string]SymbolRisk   `yaml:"symbols_risk"`
	StrategiesSymbols []StrategySymbolsEntry `yaml:"strategies_symbols"`
}

// UsersDocument is the top-level shape of users.yaml.
type UsersDocument struct {
	Users map[string]RawUser `yaml:"users"`
}
