// Package toolcfg loads the Capability Learning Core's own TOML
// configuration: scoring thresholds, the pure-tool namespace version, the
// persistence DSN, and per-namespace tool permissions. Grounded on the
// teacher's internal/config package: the same Duration unmarshal-from-string
// type, a Defaults()/normalize pass applied once at Load, and a thread-safe
// RWMutex-backed manager for hot-reload.
package toolcfg

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "720h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the Capability Learning Core's configuration file shape.
type Config struct {
	Storage   Storage              `toml:"storage"`
	Scoring   Scoring              `toml:"scoring"`
	Tools     map[string]Namespace `toml:"tools"`
	PureTools PureTools            `toml:"pure_tools"`
}

// Storage configures the sqlite DSN the persistence layer opens.
type Storage struct {
	DSN string `toml:"dsn"`
}

// Scoring configures the Matcher and dependency-confidence thresholds.
type Scoring struct {
	ObservedThreshold int      `toml:"observed_threshold"`
	ReliabilityFactor float64  `toml:"reliability_factor"`
	BaseFactor        float64  `toml:"base_factor"`
	AcceptThreshold   float64  `toml:"accept_threshold"`
	ReliabilityFloor  float64  `toml:"reliability_floor"`
	StaleAfter        Duration `toml:"stale_after"`

	// TopK bounds how many semantic candidates the Matcher considers
	// (default 5).
	TopK int `toml:"top_k"`
	// MinSemanticScore filters candidates below this cosine similarity
	// before reliability scoring is even applied (default 0.65).
	MinSemanticScore float64 `toml:"min_semantic_score"`
	// PenaltyThreshold/BoostThreshold bucket a capability's successRate;
	// PenaltyFactor/BoostFactor are the reliability multipliers applied
	// outside [PenaltyThreshold, BoostThreshold]. Inside the band the
	// neutral BaseFactor applies.
	PenaltyThreshold float64 `toml:"penalty_threshold"`
	BoostThreshold   float64 `toml:"boost_threshold"`
	PenaltyFactor    float64 `toml:"penalty_factor"`
	BoostFactor      float64 `toml:"boost_factor"`
	// SuggestionThreshold is the final blended score at or above which a
	// candidate is accepted; below it, a candidate whose reliability factor
	// is under FilterThreshold is filtered, and any other is rejected.
	FilterThreshold     float64 `toml:"filter_threshold"`
	SuggestionThreshold float64 `toml:"suggestion_threshold"`
}

// Namespace lists which actions a given mcp namespace permits the
// transformer/matcher to reference.
type Namespace struct {
	AllowedActions []string `toml:"allowed_actions"`
	Dangerous      bool     `toml:"dangerous"`
}

// PureTools configures the pure pseudo-tool namespace the analyzer
// recognizes (spec.md's `code:<op>` namespace).
type PureTools struct {
	Namespace string   `toml:"namespace"`
	Version   string   `toml:"version"`
	Allowed   []string `toml:"allowed"`
}

// Defaults returns the configuration applied when a file omits a value.
func Defaults() Config {
	return Config{
		Storage: Storage{DSN: "capcore.db"},
		Scoring: Scoring{
			ObservedThreshold:   3,
			ReliabilityFactor:   0.4,
			BaseFactor:          0.6,
			AcceptThreshold:     0.5,
			ReliabilityFloor:    0.5,
			StaleAfter:          Duration{30 * 24 * time.Hour},
			TopK:                5,
			MinSemanticScore:    0.65,
			PenaltyThreshold:    0.50,
			BoostThreshold:      0.90,
			PenaltyFactor:       0.10,
			BoostFactor:         1.20,
			FilterThreshold:     0.20,
			SuggestionThreshold: 0.70,
		},
		PureTools: PureTools{
			Namespace: "code",
			Version:   "v1",
			Allowed:   []string{"filter", "map", "reduce", "sort", "find", "some", "every"},
		},
	}
}

// Load reads and validates a capcore TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolcfg: reading config %s: %w", path, err)
	}

	cfg := Defaults()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("toolcfg: parsing config %s: %w", path, err)
	}

	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("toolcfg: validating config: %w", err)
	}
	return &cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "capcore.db"
	}
	if cfg.Scoring.ObservedThreshold <= 0 {
		cfg.Scoring.ObservedThreshold = 3
	}
	if cfg.Scoring.StaleAfter.Duration == 0 {
		cfg.Scoring.StaleAfter.Duration = 30 * 24 * time.Hour
	}
	if cfg.PureTools.Namespace == "" {
		cfg.PureTools.Namespace = "code"
	}
	if cfg.Scoring.TopK <= 0 {
		cfg.Scoring.TopK = 5
	}
	if cfg.Scoring.MinSemanticScore <= 0 {
		cfg.Scoring.MinSemanticScore = 0.65
	}
	if cfg.Scoring.PenaltyThreshold <= 0 {
		cfg.Scoring.PenaltyThreshold = 0.50
	}
	if cfg.Scoring.BoostThreshold <= 0 {
		cfg.Scoring.BoostThreshold = 0.90
	}
	if cfg.Scoring.PenaltyFactor <= 0 {
		cfg.Scoring.PenaltyFactor = 0.10
	}
	if cfg.Scoring.BoostFactor <= 0 {
		cfg.Scoring.BoostFactor = 1.20
	}
	if cfg.Scoring.FilterThreshold <= 0 {
		cfg.Scoring.FilterThreshold = 0.20
	}
	if cfg.Scoring.SuggestionThreshold <= 0 {
		cfg.Scoring.SuggestionThreshold = 0.70
	}
}

func validate(cfg *Config) error {
	if cfg.Scoring.AcceptThreshold < 0 || cfg.Scoring.AcceptThreshold > 1 {
		return fmt.Errorf("scoring.accept_threshold must be within [0,1], got %v", cfg.Scoring.AcceptThreshold)
	}
	if cfg.Scoring.ReliabilityFloor < 0 || cfg.Scoring.ReliabilityFloor > 1 {
		return fmt.Errorf("scoring.reliability_floor must be within [0,1], got %v", cfg.Scoring.ReliabilityFloor)
	}
	for name, ns := range cfg.Tools {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("tools: namespace name must not be blank")
		}
		_ = ns
	}
	return nil
}

// IsActionAllowed reports whether namespace.action is permitted by the
// loaded tool permission config. An unconfigured namespace is permissive by
// default (tool permission scoping is opt-in), matching the teacher's
// default-allow posture for unconfigured projects.
func (c *Config) IsActionAllowed(namespace, action string) bool {
	ns, ok := c.Tools[namespace]
	if !ok || len(ns.AllowedActions) == 0 {
		return true
	}
	for _, a := range ns.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Manager provides thread-safe access to live configuration, reloadable
// without restarting the process.
type Manager interface {
	Get() *Config
	Set(cfg *Config)
	Reload(path string) error
}

// RWMutexManager is the default Manager implementation.
type RWMutexManager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewManager constructs a manager around an already-loaded config.
func NewManager(initial *Config) *RWMutexManager {
	clone := *initial
	return &RWMutexManager{cfg: &clone}
}

// Get returns the current config snapshot under a shared lock.
func (m *RWMutexManager) Get() *Config {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := *m.cfg
	return &clone
}

// Set atomically swaps in a new config.
func (m *RWMutexManager) Set(cfg *Config) {
	if m == nil || cfg == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cfg
	m.cfg = &clone
}

// Reload loads config from path and atomically swaps it into place.
func (m *RWMutexManager) Reload(path string) error {
	if m == nil {
		return fmt.Errorf("toolcfg: config manager is nil")
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	m.Set(cfg)
	return nil
}
