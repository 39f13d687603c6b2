package harness

// Trace steps.
const (
	StepApply    = "apply"    // a seeder or framework engine received a seed
	StepRegister = "register" // registration returned a seed
	StepDeclare  = "declare"  // an engine was declared without a seeder
	StepEvent    = "event"    // PreProcessEvent was delivered
	StepReseed   = "reseed"   // an explicit ReseedInstance call returned
	StepError    = "error"    // a registration failed with the expected code
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step string `json:"step"`

	// Engine is the engine id, or the event id for StepEvent.
	Engine string `json:"engine"`

	Seed   int64  `json:"seed,omitempty"`
	Frozen bool   `json:"frozen,omitempty"`
	Code   string `json:"code,omitempty"`
}

// EngineSeed is the final catalog entry of one engine.
type EngineSeed struct {
	Engine    string `json:"engine"`
	Seed      int64  `json:"seed"`
	EventSeed int64  `json:"event_seed,omitempty"`
	Frozen    bool   `json:"frozen,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Policy is the policy description reported by the service.
	Policy string `json:"policy"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Seeds is the catalog at end of job, in registration order.
	Seeds []EngineSeed `json:"seeds"`
}

// NewResult returns a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Seed returns the final catalog entry for engine.
func (r *Result) Seed(engine string) (EngineSeed, bool) {
	for _, s := range r.Seeds {
		if s.Engine == engine {
			return s, true
		}
	}
	return EngineSeed{}, false
}
