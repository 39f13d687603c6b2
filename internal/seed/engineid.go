package seed

import (
	"cmp"
	"fmt"
	"strings"
)

// EngineID identifies a random number engine.
// A global engine has an empty ModuleLabel and Global set.
type EngineID struct {
	ModuleLabel  string
	InstanceName string
	Global       bool
}

// ModuleEngine returns the id of an engine owned by a module.
func ModuleEngine(module, instance string) EngineID {
	return EngineID{ModuleLabel: module, InstanceName: instance}
}

// GlobalEngine returns the id of an engine not bound to any module.
func GlobalEngine(instance string) EngineID {
	return EngineID{InstanceName: instance, Global: true}
}

// String renders "moduleLabel:instanceName", or ":instanceName" for globals.
func (id EngineID) String() string {
	return id.ModuleLabel + ":" + id.InstanceName
}

// IsZero reports whether id is the zero value.
func (id EngineID) IsZero() bool {
	return id == EngineID{}
}

// Compare orders ids lexicographically by module, instance, then global flag.
func (id EngineID) Compare(other EngineID) int {
	if c := cmp.Compare(id.ModuleLabel, other.ModuleLabel); c != 0 {
		return c
	}
	if c := cmp.Compare(id.InstanceName, other.InstanceName); c != 0 {
		return c
	}
	switch {
	case id.Global == other.Global:
		return 0
	case !id.Global:
		return -1
	default:
		return 1
	}
}

// Less reports whether id sorts before other.
func (id EngineID) Less(other EngineID) bool {
	return id.Compare(other) < 0
}

// ParseEngineID parses the String form. A leading ':' yields a global id.
func ParseEngineID(s string) (EngineID, error) {
	module, instance, ok := strings.Cut(s, ":")
	if !ok {
		return EngineID{}, fmt.Errorf("engine id %q: expected module:instance", s)
	}
	if module == "" {
		return GlobalEngine(instance), nil
	}
	return ModuleEngine(module, instance), nil
}
