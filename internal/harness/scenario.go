package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nutools/internal/seed"
)

// Scenario is a scripted job: a seed service configuration, the engines each
// module registers, and the events the framework delivers afterwards.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Config is the seed service configuration, in the same shape as a
	// service configuration file.
	Config map[string]any `yaml:"config"`

	// Globals are registered during service construction.
	Globals []EngineStep `yaml:"globals,omitempty"`

	// Modules are constructed in order.
	Modules []ModuleStep `yaml:"modules,omitempty"`

	// Events are processed in order after every module has begun its run.
	Events []EventStep `yaml:"events,omitempty"`

	// Assertions are checked once the job has ended.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Registration modes for EngineStep.
const (
	ModeRegister = "register"
	ModeDeclare  = "declare"
	ModeCreate   = "create"
	ModeGetSeed  = "getSeed"
)

// EngineStep registers one engine.
type EngineStep struct {
	// Instance is the engine instance name; empty is allowed for modules.
	Instance string `yaml:"instance"`

	// Mode selects the service call. Defaults to register.
	//   - register: RegisterEngine (RegisterGlobalEngine for globals)
	//   - declare: DeclareEngine followed by DefineEngine
	//   - create: CreateEngine with the harness engine factory
	//   - getSeed: GetSeed without a seeder
	Mode string `yaml:"mode,omitempty"`

	// Kind is the engine kind passed to CreateEngine.
	Kind string `yaml:"kind,omitempty"`

	// Params is the module parameter set searched for seed overrides.
	Params map[string]any `yaml:"params,omitempty"`

	// OverrideKeys replaces the default override keys.
	OverrideKeys []string `yaml:"overrideKeys,omitempty"`

	// ExpectError is the error code the registration must fail with. The
	// scenario continues after an expected failure.
	ExpectError string `yaml:"expectError,omitempty"`
}

// ModuleStep constructs one module.
type ModuleStep struct {
	Label   string       `yaml:"label"`
	Engines []EngineStep `yaml:"engines,omitempty"`
}

// EventStep processes one event.
type EventStep struct {
	Run       uint32 `yaml:"run"`
	SubRun    uint32 `yaml:"subRun"`
	Event     uint32 `yaml:"event"`
	Timestamp uint64 `yaml:"timestamp,omitempty"`

	// Modules run in this order. Empty means every module in
	// construction order.
	Modules []string `yaml:"modules,omitempty"`

	// Reseed lists engine ids ("module:instance", ":instance" for globals)
	// reseeded explicitly after the modules have run.
	Reseed []string `yaml:"reseed,omitempty"`
}

// ID returns the event id.
func (e EventStep) ID() seed.EventID {
	return seed.EventID{Run: e.Run, SubRun: e.SubRun, Event: e.Event, Timestamp: e.Timestamp}
}

// Assertion checks the finished job.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Engine is the engine id for seed_equals, frozen and apply_count.
	Engine string `yaml:"engine,omitempty"`

	// Seed is the expected seed for seed_equals.
	Seed int64 `yaml:"seed,omitempty"`

	// Count is the expected number of applied seeds for apply_count.
	Count int `yaml:"count,omitempty"`

	// Engines restricts seeds_distinct to a subset; empty means all.
	Engines []string `yaml:"engines,omitempty"`
}

// Assertion types.
const (
	AssertSeedEquals    = "seed_equals"
	AssertSeedsDistinct = "seeds_distinct"
	AssertFrozen        = "frozen"
	AssertApplyCount    = "apply_count"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Config) == 0 {
		return fmt.Errorf("config is required")
	}

	for i, g := range s.Globals {
		if err := validateEngineStep(g, true); err != nil {
			return fmt.Errorf("globals[%d]: %w", i, err)
		}
	}

	labels := make(map[string]bool, len(s.Modules))
	for i, m := range s.Modules {
		if m.Label == "" {
			return fmt.Errorf("modules[%d]: label is required", i)
		}
		if labels[m.Label] {
			return fmt.Errorf("modules[%d]: duplicate label %q", i, m.Label)
		}
		labels[m.Label] = true
		for j, e := range m.Engines {
			if err := validateEngineStep(e, false); err != nil {
				return fmt.Errorf("modules[%d].engines[%d]: %w", i, j, err)
			}
		}
	}

	for i, ev := range s.Events {
		for _, label := range ev.Modules {
			if !labels[label] {
				return fmt.Errorf("events[%d]: unknown module %q", i, label)
			}
		}
		for _, id := range ev.Reseed {
			if _, err := seed.ParseEngineID(id); err != nil {
				return fmt.Errorf("events[%d]: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateEngineStep(e EngineStep, global bool) error {
	switch e.Mode {
	case "", ModeRegister:
	case ModeDeclare, ModeGetSeed:
		if global {
			return fmt.Errorf("mode %s is not available for global engines", e.Mode)
		}
	case ModeCreate:
		if global {
			return fmt.Errorf("mode %s is not available for global engines", e.Mode)
		}
		if e.Kind == "" {
			return fmt.Errorf("kind is required for mode %s", e.Mode)
		}
	default:
		return fmt.Errorf("unknown mode %q", e.Mode)
	}
	if global && e.Instance == "" {
		return fmt.Errorf("global engines need an instance name")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertSeedEquals, AssertFrozen, AssertApplyCount:
		if a.Engine == "" {
			return fmt.Errorf("%s requires engine", a.Type)
		}
		if _, err := seed.ParseEngineID(a.Engine); err != nil {
			return err
		}
	case AssertSeedsDistinct:
		for _, id := range a.Engines {
			if _, err := seed.ParseEngineID(id); err != nil {
				return err
			}
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
