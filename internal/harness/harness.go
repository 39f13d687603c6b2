package harness

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nutools/internal/metrics"
	"github.com/roach88/nutools/internal/seed"
	"github.com/roach88/nutools/internal/seedservice"
)

// Harness replays one scenario against a fresh seed service.
type Harness struct {
	svc    *seedservice.Service
	result *Result
	logger *slog.Logger
}

type options struct {
	logger  *slog.Logger
	summary io.Writer
	metrics *metrics.Collector
}

// Option configures Run.
type Option func(*options)

// WithLogger passes l to the seed service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSummaryWriter receives the end-of-job summary when the scenario
// config enables it.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *options) { o.summary = w }
}

// WithMetrics records seed assignments in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// Run executes scenario and returns its result.
//
// The job is replayed in framework order: globals during service
// construction, each module's construction, begin-run for every module, the
// events, and end of job. Registration and lifecycle failures stop the job
// and are reported in Result.Errors; assertions are evaluated afterwards.
// An error is returned only when the service cannot be built.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		summary: io.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := yaml.Marshal(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: encode config: %w", scenario.Name, err)
	}
	cfg, err := seedservice.ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	h := &Harness{result: NewResult(), logger: o.logger}
	svcOpts := []seedservice.Option{
		seedservice.WithLogger(o.logger),
		seedservice.WithSummaryWriter(o.summary),
		seedservice.WithEngineFactory(h.newEngine),
	}
	if o.metrics != nil {
		svcOpts = append(svcOpts, seedservice.WithMetrics(o.metrics))
	}
	svc, err := seedservice.New(cfg, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	h.svc = svc
	h.result.Policy = svc.Master().Policy().Describe()

	if err := h.execute(scenario); err != nil {
		h.logger.Warn("scenario stopped", "scenario", scenario.Name, "error", err)
		h.result.AddError(err.Error())
	}
	h.collectSeeds()

	for _, a := range scenario.Assertions {
		if err := evaluate(h.result, a); err != nil {
			h.result.AddError(err.Error())
		}
	}
	return h.result, nil
}

func (h *Harness) execute(scenario *Scenario) error {
	for _, step := range scenario.Globals {
		if err := h.registerEngine(step, ""); err != nil {
			return err
		}
	}
	if err := h.deliver(seedservice.LifecycleEvent{Kind: seedservice.PostServiceConstruction}); err != nil {
		return err
	}

	for _, m := range scenario.Modules {
		if err := h.deliver(seedservice.LifecycleEvent{Kind: seedservice.PreModuleConstruction, Module: m.Label}); err != nil {
			return err
		}
		for _, step := range m.Engines {
			if err := h.registerEngine(step, m.Label); err != nil {
				return err
			}
		}
		if err := h.deliver(seedservice.LifecycleEvent{Kind: seedservice.PostModuleConstruction, Module: m.Label}); err != nil {
			return err
		}
	}

	for _, m := range scenario.Modules {
		if err := h.deliver(
			seedservice.LifecycleEvent{Kind: seedservice.PreModuleBeginRun, Module: m.Label},
			seedservice.LifecycleEvent{Kind: seedservice.PostModuleBeginRun, Module: m.Label},
		); err != nil {
			return err
		}
	}

	for _, ev := range scenario.Events {
		if err := h.processEvent(scenario, ev); err != nil {
			return err
		}
	}

	var end []seedservice.LifecycleEvent
	for _, m := range scenario.Modules {
		end = append(end,
			seedservice.LifecycleEvent{Kind: seedservice.PreModuleEndJob, Module: m.Label},
			seedservice.LifecycleEvent{Kind: seedservice.PostModuleEndJob, Module: m.Label},
		)
	}
	end = append(end, seedservice.LifecycleEvent{Kind: seedservice.PostEndJob})
	return h.deliver(end...)
}

func (h *Harness) processEvent(scenario *Scenario, ev EventStep) error {
	id := ev.ID()
	h.result.addTrace(TraceEvent{Step: StepEvent, Engine: id.String()})
	if err := h.deliver(seedservice.LifecycleEvent{Kind: seedservice.PreProcessEvent, Event: id}); err != nil {
		return err
	}

	labels := ev.Modules
	if len(labels) == 0 {
		for _, m := range scenario.Modules {
			labels = append(labels, m.Label)
		}
	}
	for _, label := range labels {
		if err := h.deliver(
			seedservice.LifecycleEvent{Kind: seedservice.PreModule, Module: label},
			seedservice.LifecycleEvent{Kind: seedservice.PostModule, Module: label},
		); err != nil {
			return err
		}
	}

	for _, raw := range ev.Reseed {
		eid, err := seed.ParseEngineID(raw)
		if err != nil {
			return err
		}
		sd, err := h.svc.ReseedInstance(eid)
		if err != nil {
			return fmt.Errorf("event %s: reseed %s: %w", id, eid, err)
		}
		h.result.addTrace(TraceEvent{Step: StepReseed, Engine: eid.String(), Seed: int64(sd)})
	}

	return h.deliver(seedservice.LifecycleEvent{Kind: seedservice.PostProcessEvent})
}

// deliver posts evs and flushes the mailbox.
func (h *Harness) deliver(evs ...seedservice.LifecycleEvent) error {
	for _, ev := range evs {
		h.svc.Post(ev)
	}
	return h.svc.Flush()
}

// registerEngine performs one registration. module is empty for globals.
func (h *Harness) registerEngine(step EngineStep, module string) error {
	global := module == ""
	id := seed.ModuleEngine(module, step.Instance)
	if global {
		id = seed.GlobalEngine(step.Instance)
	}
	params := seedservice.ParameterSet(step.Params)

	var (
		sd  seed.Seed
		err error
	)
	switch step.Mode {
	case "", ModeRegister:
		if global {
			sd, err = h.svc.RegisterGlobalEngine(h.seeder, step.Instance, params, step.OverrideKeys...)
		} else {
			sd, err = h.svc.RegisterEngine(h.seeder, step.Instance, params, step.OverrideKeys...)
		}
	case ModeDeclare:
		err = h.svc.DeclareEngine(step.Instance, params, step.OverrideKeys...)
		if err == nil {
			h.result.addTrace(TraceEvent{Step: StepDeclare, Engine: id.String()})
			sd, err = h.svc.DefineEngine(h.seeder, step.Instance)
		}
	case ModeCreate:
		sd, err = h.svc.CreateEngine(step.Kind, step.Instance, params, step.OverrideKeys...)
	case ModeGetSeed:
		sd, err = h.svc.GetSeed(step.Instance)
	default:
		return fmt.Errorf("engine %s: unknown mode %q", id, step.Mode)
	}

	if step.ExpectError != "" {
		if err == nil {
			return fmt.Errorf("engine %s: expected %s, got seed %d", id, step.ExpectError, sd)
		}
		if !seed.IsCode(err, seed.ErrorCode(step.ExpectError)) {
			return fmt.Errorf("engine %s: expected %s: %w", id, step.ExpectError, err)
		}
		h.result.addTrace(TraceEvent{Step: StepError, Engine: id.String(), Code: step.ExpectError})
		return nil
	}
	if err != nil {
		return err
	}

	rec, _ := h.svc.Master().Record(id)
	h.result.addTrace(TraceEvent{Step: StepRegister, Engine: id.String(), Seed: int64(sd), Frozen: rec.Frozen})
	return nil
}

func (h *Harness) seeder(id seed.EngineID, s seed.Seed) {
	h.result.addTrace(TraceEvent{Step: StepApply, Engine: id.String(), Seed: int64(s)})
}

// traceEngine is the engine handed out for CreateEngine.
type traceEngine struct {
	id seed.EngineID
	h  *Harness
}

func (e *traceEngine) SetSeed(s seed.Seed) { e.h.seeder(e.id, s) }

func (h *Harness) newEngine(id seed.EngineID, kind string) (seedservice.Engine, error) {
	h.logger.Debug("engine created", "engine", id.String(), "kind", kind)
	return &traceEngine{id: id, h: h}, nil
}

func (h *Harness) collectSeeds() {
	for rec := range h.svc.Master().Records() {
		h.result.Seeds = append(h.result.Seeds, EngineSeed{
			Engine:    rec.ID.String(),
			Seed:      int64(rec.Seed),
			EventSeed: int64(rec.EventSeed),
			Frozen:    rec.Frozen,
		})
	}
}
