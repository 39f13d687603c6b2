package seedservice

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/nutools/internal/seed"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated service configuration.
type Config struct {
	// Policy names the seed strategy.
	Policy string

	// Options are the policy options, merged from the flat top-level keys,
	// the options block, and a block named after the policy (later wins).
	Options seed.Options

	Verbosity       int
	EndOfJobSummary bool
}

var reservedKeys = map[string]bool{
	"policy":          true,
	"verbosity":       true,
	"endOfJobSummary": true,
	"options":         true,
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, seed.NewBadConfigError("read %s: %v", path, err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, validates it against the embedded CUE schema and
// builds a Config. Schema violations are BAD_CONFIG; option semantics are
// checked later by the policy itself.
func ParseConfig(data []byte) (Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, seed.NewBadConfigError("parse yaml: %v", err)
	}
	if doc == nil {
		return Config{}, seed.NewBadConfigError("empty configuration")
	}
	if err := validateSchema(doc); err != nil {
		return Config{}, err
	}
	return configFromDoc(doc), nil
}

func validateSchema(doc map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return seed.NewBadConfigError("compile schema: %v", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return seed.NewBadConfigError("encode configuration: %v", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return seed.NewBadConfigError("invalid configuration: %v", err)
	}
	return nil
}

func configFromDoc(doc map[string]any) Config {
	cfg := Config{Options: seed.Options{}}
	cfg.Policy, _ = doc["policy"].(string)
	if v, ok := doc["verbosity"].(int); ok {
		cfg.Verbosity = v
	}
	if v, ok := doc["endOfJobSummary"].(bool); ok {
		cfg.EndOfJobSummary = v
	}

	for k, v := range doc {
		if reservedKeys[k] || isPolicyBlock(k) {
			continue
		}
		cfg.Options[k] = v
	}
	if block, ok := doc["options"].(map[string]any); ok {
		for k, v := range block {
			cfg.Options[k] = v
		}
	}
	if block, ok := doc[cfg.Policy].(map[string]any); ok {
		for k, v := range block {
			cfg.Options[k] = v
		}
	}
	return cfg
}

func isPolicyBlock(key string) bool {
	switch key {
	case seed.PolicyAutoIncrement, seed.PolicyLinearMapping, seed.PolicyPreDefinedOffset,
		seed.PolicyPreDefinedSeed, seed.PolicyRandom, seed.PolicyPerEvent:
		return true
	}
	return false
}

// ParameterSet is a module's configuration as seen by the service. Only seed
// override keys are read from it.
type ParameterSet map[string]any

// overrideSeed returns the first override present among keys.
func (p ParameterSet) overrideSeed(keys []string) (seed.Seed, string, bool, error) {
	for _, key := range keys {
		v, ok, err := seed.Options(p).Int64(key)
		if err != nil {
			return seed.InvalidSeed, key, true, seed.NewBadConfigError("seed override: %v", err)
		}
		if ok {
			if v <= 0 {
				return seed.InvalidSeed, key, true, seed.NewBadConfigError("seed override %s must be positive, got %d", key, v)
			}
			return seed.Seed(v), key, true, nil
		}
	}
	return seed.InvalidSeed, "", false, nil
}

// DefaultOverrideKeys returns the keys consulted when a caller passes none:
// "Seed" for the default instance and "Seed_<instance>" otherwise.
func DefaultOverrideKeys(instance string) []string {
	if instance == "" {
		return []string{"Seed"}
	}
	return []string{fmt.Sprintf("Seed_%s", instance)}
}
