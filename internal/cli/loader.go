package cli

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// configSchema constrains the YAML configuration. Validation happens
// against this schema before the file's values are trusted, so a typo'd
// key or a negative limit fails at startup instead of misconfiguring the
// engine silently.
const configSchema = `
#Config: {
	db:              string & !=""
	current_user_id: string & !=""
	authority?: {
		base_url: string & !=""
		timeout?: string
	}
	cleanup_cooldown?: string
	recent_limit?:     int & >0
	batch_size?:       int & >0
}
`

// Config is the engine configuration loaded from YAML.
type Config struct {
	DB            string `yaml:"db"`
	CurrentUserID string `yaml:"current_user_id"`
	Authority     struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"authority"`
	CleanupCooldown string `yaml:"cleanup_cooldown"`
	RecentLimit     int    `yaml:"recent_limit"`
	BatchSize       int    `yaml:"batch_size"`
}

// AuthorityTimeout returns the configured authority timeout, or d when
// unset. The schema admits any string; parse errors surface here.
func (c *Config) AuthorityTimeout(d time.Duration) (time.Duration, error) {
	return parseOptionalDuration(c.Authority.Timeout, d)
}

// Cooldown returns the configured cleanup cooldown, or d when unset.
func (c *Config) Cooldown(d time.Duration) (time.Duration, error) {
	return parseOptionalDuration(c.CleanupCooldown, d)
}

func parseOptionalDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return d, nil
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Decode once into a generic tree for schema validation, once into the
	// typed struct for use.
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("load config: parse yaml: %w", err)
	}
	if err := validateConfig(tree); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func validateConfig(tree map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	val := ctx.Encode(tree)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
