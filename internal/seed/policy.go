package seed

import (
	"fmt"
	"sort"
)

// Policy produces seeds for engines.
//
// Seed is called at most once per engine by the Master; the result is stored.
// EventSeed returns InvalidSeed for policies that do not reseed per event.
type Policy interface {
	Name() string
	Seed(id EngineID) (Seed, error)
	EventSeed(id EngineID, ev EventID) Seed
	EventDependent() bool
	// OnNewEvent drops anything cached for the previous event.
	OnNewEvent()
	// Describe is a one-line rendering of the effective options.
	Describe() string
}

// PolicyConstructor validates opts and builds a policy.
type PolicyConstructor func(opts Options) (Policy, error)

// PolicyRegistry maps policy names to constructors.
type PolicyRegistry struct {
	ctors map[string]PolicyConstructor
}

// Built-in policy names.
const (
	PolicyAutoIncrement    = "autoIncrement"
	PolicyLinearMapping    = "linearMapping"
	PolicyPreDefinedOffset = "preDefinedOffset"
	PolicyPreDefinedSeed   = "preDefinedSeed"
	PolicyRandom           = "random"
	PolicyPerEvent         = "perEvent"
)

// NewPolicyRegistry returns a registry holding the built-in policies.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{ctors: make(map[string]PolicyConstructor)}
	RegisterBuiltinPolicies(r)
	return r
}

// RegisterBuiltinPolicies adds the built-in policies to r.
func RegisterBuiltinPolicies(r *PolicyRegistry) {
	// Names are distinct, so Register cannot fail here.
	_ = r.Register(PolicyAutoIncrement, newAutoIncrementPolicy)
	_ = r.Register(PolicyLinearMapping, newLinearMappingPolicy)
	_ = r.Register(PolicyPreDefinedOffset, newPreDefinedOffsetPolicy)
	_ = r.Register(PolicyPreDefinedSeed, newPreDefinedSeedPolicy)
	_ = r.Register(PolicyRandom, newRandomPolicy)
	_ = r.Register(PolicyPerEvent, newPerEventPolicy)
}

// Register adds a constructor. Names must be unique.
func (r *PolicyRegistry) Register(name string, ctor PolicyConstructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("register policy: name and constructor are required")
	}
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("register policy: %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// New builds the named policy.
func (r *PolicyRegistry) New(name string, opts Options) (Policy, error) {
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, NewBadPolicyConfigError(name, "unknown policy (known: %v)", r.Names())
	}
	if opts == nil {
		opts = Options{}
	}
	return ctor(opts)
}

// Names lists the registered policies in sorted order.
func (r *PolicyRegistry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
