package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatTraceEvent(ev))
		}
	}
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertSeedEquals:
		return assertSeedEquals(r, a)
	case AssertSeedsDistinct:
		return assertSeedsDistinct(r, a)
	case AssertFrozen:
		return assertFrozen(r, a)
	case AssertApplyCount:
		return assertApplyCount(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertSeedEquals(r *Result, a Assertion) error {
	s, ok := r.Seed(a.Engine)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s seeded with %d", a.Engine, a.Seed),
			Actual:   "engine not registered",
			Trace:    r.Trace,
		}
	}
	if s.Seed != a.Seed {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s seeded with %d", a.Engine, a.Seed),
			Actual:   fmt.Sprintf("seed %d", s.Seed),
			Trace:    r.Trace,
		}
	}
	return nil
}

// assertSeedsDistinct checks that no two engines share a job-level seed.
// Engines without a seed are ignored.
func assertSeedsDistinct(r *Result, a Assertion) error {
	wanted := make(map[string]bool, len(a.Engines))
	for _, e := range a.Engines {
		wanted[e] = true
	}
	owners := make(map[int64]string)
	for _, s := range r.Seeds {
		if len(wanted) > 0 && !wanted[s.Engine] {
			continue
		}
		if s.Seed == 0 {
			continue
		}
		if prev, dup := owners[s.Seed]; dup {
			return &AssertionError{
				Type:     a.Type,
				Expected: "distinct seeds",
				Actual:   fmt.Sprintf("%s and %s share seed %d", prev, s.Engine, s.Seed),
				Trace:    r.Trace,
			}
		}
		owners[s.Seed] = s.Engine
	}
	return nil
}

func assertFrozen(r *Result, a Assertion) error {
	s, ok := r.Seed(a.Engine)
	if !ok || !s.Frozen {
		actual := "not frozen"
		if !ok {
			actual = "engine not registered"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s frozen", a.Engine),
			Actual:   actual,
			Trace:    r.Trace,
		}
	}
	return nil
}

func assertApplyCount(r *Result, a Assertion) error {
	count := 0
	for _, ev := range r.Trace {
		if ev.Step == StepApply && ev.Engine == a.Engine {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s seeded %d times", a.Engine, a.Count),
			Actual:   fmt.Sprintf("%d times", count),
			Trace:    r.Trace,
		}
	}
	return nil
}
