package harness

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render writes the result as stable text: the policy, the trace and the
// final catalog. Golden files hold this form.
func Render(name string, r *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintf(&buf, "policy: %s\n", r.Policy)

	buf.WriteString("trace:\n")
	for _, ev := range r.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatTraceEvent(ev))
	}

	buf.WriteString("seeds:\n")
	for _, s := range r.Seeds {
		fmt.Fprintf(&buf, "  %s %s", s.Engine, seedText(s.Seed))
		if s.EventSeed != 0 {
			fmt.Fprintf(&buf, " event=%d", s.EventSeed)
		}
		if s.Frozen {
			buf.WriteString(" frozen")
		}
		buf.WriteByte('\n')
	}

	if len(r.Errors) > 0 {
		buf.WriteString("errors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&buf, "  %s\n", e)
		}
	}
	return buf.Bytes()
}

func formatTraceEvent(ev TraceEvent) string {
	head := fmt.Sprintf("%04d %s %s", ev.Seq, ev.Step, ev.Engine)
	switch ev.Step {
	case StepApply, StepRegister, StepReseed:
		s := head + " " + seedText(ev.Seed)
		if ev.Frozen {
			s += " frozen"
		}
		return s
	case StepError:
		return head + " " + ev.Code
	default:
		return head
	}
}

func seedText(v int64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

// RunWithGolden runs scenario and compares its rendering with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(name, result))
}
