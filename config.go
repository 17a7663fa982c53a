package cascade

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file representation of a resolver setup.
type Config struct {
	Levels         []LevelConfig `yaml:"levels"`
	Debounce       time.Duration `yaml:"debounce"`
	MaxSuggestions int           `yaml:"max_suggestions"`
	Cache          CacheConfig   `yaml:"cache"`
	Rule           RuleConfig    `yaml:"rule"`
	API            APIConfig     `yaml:"api"`
}

// LevelConfig mirrors LevelSpec.
type LevelConfig struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	FilterKey   string `yaml:"filter_key"`
	Independent bool   `yaml:"independent"`
}

// CacheConfig tunes the suggestion cache. Zero values keep entries forever.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity uint64        `yaml:"capacity"`
}

// RuleConfig selects an entity rule, e.g. engine "expr" with
// expr "disabled == 0".
type RuleConfig struct {
	Engine string `yaml:"engine"`
	Expr   string `yaml:"expr"`
}

// APIConfig describes the REST backend used by the HTTP provider.
type APIConfig struct {
	BaseURL   string                    `yaml:"base_url"`
	Token     string                    `yaml:"token"`
	Timeout   time.Duration             `yaml:"timeout"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig maps one level onto a collection endpoint.
type EndpointConfig struct {
	Path        string `yaml:"path"`
	ParentParam string `yaml:"parent_param"`
	QueryParam  string `yaml:"query_param"`
	IDField     string `yaml:"id_field"`
	NameField   string `yaml:"name_field"`
	ParentField string `yaml:"parent_field"`
	CodeField   string `yaml:"code_field"`
	LocalFilter bool   `yaml:"local_filter"`
}

// DefaultConfig returns the geographic hierarchy with the default debounce.
func DefaultConfig() Config {
	levels := GeographicHierarchy().Levels()
	cfg := Config{Debounce: DefaultDebounce, Levels: make([]LevelConfig, len(levels))}
	for i, spec := range levels {
		cfg.Levels[i] = LevelConfig{
			Name:        spec.Name,
			Label:       spec.Label,
			FilterKey:   spec.FilterKey,
			Independent: spec.Independent,
		}
	}
	return cfg
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cascade: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// A document that lists levels replaces the default hierarchy entirely.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cascade: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found in the config.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Hierarchy(); err != nil {
		errs = append(errs, err)
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("cascade: debounce must not be negative"))
	}
	if c.MaxSuggestions < 0 {
		errs = append(errs, fmt.Errorf("cascade: max_suggestions must not be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cascade: cache ttl must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Rule.Engine)) {
	case "", EngineExpr, EngineCEL, EngineJS:
	default:
		errs = append(errs, fmt.Errorf("cascade: unknown rule engine %q", c.Rule.Engine))
	}
	names := make(map[string]struct{}, len(c.Levels))
	for _, level := range c.Levels {
		names[strings.TrimSpace(level.Name)] = struct{}{}
	}
	for name, endpoint := range c.API.Endpoints {
		if _, ok := names[name]; !ok {
			errs = append(errs, fmt.Errorf("cascade: endpoint %q does not name a level", name))
		}
		if strings.TrimSpace(endpoint.Path) == "" {
			errs = append(errs, fmt.Errorf("cascade: endpoint %q: path is required", name))
		}
	}
	return errors.Join(errs...)
}

// Hierarchy builds the configured hierarchy.
func (c Config) Hierarchy() (Hierarchy, error) {
	specs := make([]LevelSpec, len(c.Levels))
	for i, level := range c.Levels {
		specs[i] = LevelSpec{
			Name:        level.Name,
			Label:       level.Label,
			FilterKey:   level.FilterKey,
			Independent: level.Independent,
		}
	}
	return NewHierarchy(specs...)
}

// Options translates the config into resolver options. Functions in registry
// are available to the entity rule; nil uses DefaultFunctionRegistry.
func (c Config) Options(registry *FunctionRegistry) ([]Option, error) {
	opts := []Option{
		WithDebounce(c.Debounce),
		WithMaxSuggestions(c.MaxSuggestions),
	}
	if c.Cache.TTL > 0 {
		opts = append(opts, WithCacheTTL(c.Cache.TTL))
	}
	if c.Cache.Capacity > 0 {
		opts = append(opts, WithCacheCapacity(c.Cache.Capacity))
	}
	if expr := strings.TrimSpace(c.Rule.Expr); expr != "" {
		if registry == nil {
			registry = DefaultFunctionRegistry()
		}
		evaluator, err := NewEvaluatorForEngine(c.Rule.Engine, nil, registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEntityRule(evaluator, expr))
	}
	return opts, nil
}
