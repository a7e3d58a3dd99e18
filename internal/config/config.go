package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResolvedStrategy is one strategy the user actually trades, with both
// sides' rules, fully suffixed symbols, and the grids kept as plain
// GridStepCfg structs (internal/reconcile's buildGrid converts them to
// position.GridStep).
type ResolvedStrategy struct {
	Name    string
	Long    StrategySide
	Short   StrategySide
	Symbols []string // already suffixed with quote asset
}

// ResolvedUser is the fully validated, suffix-expanded configuration for
// one user — the Go analog of the original bot's
// `context.total_settings[user]`.
type ResolvedUser struct {
	Name        string
	Keys        UserKeys
	Core        UserCore
	SymbolsRisk map[string]SymbolRisk // keyed by full symbol, plus ANY_COINS
	Strategies  map[string]ResolvedStrategy
}

// RiskFor returns the symbol_risk entry to use for a symbol, falling back
// to ANY_COINS (spec §3 Configuration entities).
func (u ResolvedUser) RiskFor(symbol string) (SymbolRisk, bool) {
	if r, ok := u.SymbolsRisk[symbol]; ok {
		return r, true
	}
	r, ok := u.SymbolsRisk[AnyCoins]
	return r, ok
}

// Config is the fully validated configuration surface.
type Config struct {
	Secrets Secrets
	Users   map[string]ResolvedUser
	// FetchSymbols is the union of every full symbol traded by any user;
	// PriceFeed and exchange metadata startup use this set.
	FetchSymbols map[string]struct{}
}

// Load reads secrets, users.yaml and strategies.yaml, validates them, and
// resolves the final per-user trading configuration.
func Load(envPath, usersPath, strategiesPath string) (*Config, error) {
	secrets, err := LoadSecrets(envPath)
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	usersDoc, err := loadUsersDocument(usersPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", usersPath, err)
	}

	strategiesDoc, err := loadStrategiesDocument(strategiesPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", strategiesPath, err)
	}

	strategyIndex, err := indexStrategies(strategiesDoc)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Secrets: secrets, Users: make(map[string]ResolvedUser), FetchSymbols: make(map[string]struct{})}
	for name, raw := range usersDoc.Users {
		resolved, err := resolveUser(name, raw, strategyIndex)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			continue // user has no active strategies — skipped, not fatal
		}
		cfg.Users[name] = *resolved
		for _, strat := range resolved.Strategies {
			for _, sym := range strat.Symbols {
				cfg.FetchSymbols[sym] = struct{}{}
			}
		}
	}

	if len(cfg.Users) == 0 {
		return nil, fmt.Errorf("fatal: no users with active strategies configured")
	}
	return cfg, nil
}

func loadUsersDocument(path string) (UsersDocument, error) {
	var doc UsersDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func loadStrategiesDocument(path string) (StrategiesDocument, error) {
	var doc StrategiesDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// indexStrategies builds a name->entry map, failing fatally on duplicate
// strategy names (spec §7 Fatal: "duplicate strategy keys").
func indexStrategies(doc StrategiesDocument) (map[string]StrategyEntry, error) {
	idx := make(map[string]StrategyEntry, len(doc.Strategies))
	for _, entry := range doc.Strategies {
		if _, dup := idx[entry.Name]; dup {
			return nil, fmt.Errorf("fatal: duplicate strategy key %q", entry.Name)
		}
		idx[entry.Name] = entry
	}
	return idx, nil
}

// resolveUser validates and expands one raw user entry. A nil, nil
// return means the user has no active strategies and should be skipped
// (matches the original bot's non-fatal per-user skip).
func resolveUser(name string, raw RawUser, strategies map[string]StrategyEntry) (*ResolvedUser, error) {
	seen := make(map[string]bool)
	for _, entry := range raw.StrategiesSymbols {
		if !entry.Enable {
			continue
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("fatal: user %q has duplicate strategy key %q", name, entry.Name)
		}
		seen[entry.Name] = true
	}

	quoteAsset := strings.TrimSpace(raw.Core.QuoteAsset)
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}

	resolvedStrategies := make(map[string]ResolvedStrategy)
	symbolRisk := make(map[string]SymbolRisk)

	for _, entry := range raw.StrategiesSymbols {
		if !entry.Enable {
			continue
		}
		strategyDef, ok := strategies[entry.Name]
		if !ok {
			return nil, fmt.Errorf("fatal: user %q references unknown strategy %q", name, entry.Name)
		}

		var suffixed []string
		for _, base := range entry.Symbols {
			base = strings.TrimSpace(base)
			if base == "" {
				return nil, fmt.Errorf("fatal: user %q strategy %q has an empty symbol entry", name, entry.Name)
			}
			full := base + quoteAsset
			suffixed = append(suffixed, full)
			if risk, ok := raw.SymbolsRisk[base]; ok {
				symbolRisk[full] = risk
			}
		}
		if len(suffixed) == 0 {
			continue
		}

		resolvedStrategies[entry.Name] = ResolvedStrategy{
			Name:    entry.Name,
			Long:    strategyDef.Long,
			Short:   strategyDef.Short,
			Symbols: suffixed,
		}
	}

	if len(resolvedStrategies) == 0 {
		return nil, nil
	}

	if risk, ok := raw.SymbolsRisk[AnyCoins]; ok {
		symbolRisk[AnyCoins] = risk
	}

	return &ResolvedUser{
		Name:        name,
		Keys:        raw.Keys,
		Core:        raw.Core,
		SymbolsRisk: symbolRisk,
		Strategies:  resolvedStrategies,
	}, nil
}
