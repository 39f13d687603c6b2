package seedservice

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/nutools/internal/metrics"
	"github.com/roach88/nutools/internal/seed"
)

// Engine is a framework-owned random number engine.
type Engine interface {
	SetSeed(s seed.Seed)
}

// EngineFactory creates the framework-owned engine of the given kind
// (e.g. "HepJamesRandom") for id.
type EngineFactory func(id seed.EngineID, kind string) (Engine, error)

// Service hands out seeds and reseeds engines at event boundaries.
type Service struct {
	master  *seed.Master
	state   ArtState
	mailbox *mailbox

	factory  EngineFactory
	engines  map[seed.EngineID]Engine
	registry *seed.PolicyRegistry

	summaryOut io.Writer
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithEngineFactory sets the factory used by CreateEngine.
func WithEngineFactory(f EngineFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithLogger sets the logger for the service and its master.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records seed assignments on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithSummaryWriter sets where the end-of-job summary goes. Default stdout.
func WithSummaryWriter(w io.Writer) Option {
	return func(s *Service) { s.summaryOut = w }
}

// WithPolicyRegistry replaces the built-in policy registry.
func WithPolicyRegistry(r *seed.PolicyRegistry) Option {
	return func(s *Service) { s.registry = r }
}

// New builds the service. The returned service is in the service-construction
// phase, so global engines may be registered until PostServiceConstruction.
func New(cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		mailbox:    newMailbox(),
		engines:    make(map[seed.EngineID]Engine),
		summaryOut: os.Stdout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = seed.NewPolicyRegistry()
	}
	if cfg.Policy == "" {
		return nil, seed.NewBadConfigError("policy is required")
	}

	policy, err := s.registry.New(cfg.Policy, cfg.Options)
	if err != nil {
		return nil, err
	}
	s.master = seed.NewMaster(policy,
		seed.WithLogger(s.logger),
		seed.WithVerbosity(cfg.Verbosity),
		seed.WithEndOfJobSummary(cfg.EndOfJobSummary),
		seed.WithMetrics(s.metrics),
	)
	s.state.SetPhase(seed.PhaseServiceConstruction)
	s.logger.Info("seed service configured", "policy", policy.Describe())
	return s, nil
}

// Master exposes the catalog for inspection.
func (s *Service) Master() *seed.Master { return s.master }

// State returns a copy of the current framework state.
func (s *Service) State() ArtState { return s.state }

// CreateEngine creates a framework-owned engine of kind for the module under
// construction, seeds it, and returns the seed. An override found in cfg
// under overrideKeys (DefaultOverrideKeys when empty) freezes the seed.
func (s *Service) CreateEngine(kind, instance string, cfg ParameterSet, overrideKeys ...string) (seed.Seed, error) {
	id := seed.ModuleEngine(s.state.Module(), instance)
	if err := s.ensureValidState(id); err != nil {
		return seed.InvalidSeed, err
	}
	if s.factory == nil {
		return seed.InvalidSeed, seed.NewBadConfigError("no engine factory configured for %s", id)
	}
	eng, err := s.factory(id, kind)
	if err != nil {
		return seed.InvalidSeed, seed.NewBadConfigError("create %s engine for %s: %v", kind, id, err)
	}
	sd, err := s.register(id, func(_ seed.EngineID, v seed.Seed) { eng.SetSeed(v) }, cfg, overrideKeys)
	if err != nil {
		return seed.InvalidSeed, err
	}
	s.engines[id] = eng
	return sd, nil
}

// RegisterEngine registers a caller-owned engine of the module under
// construction, seeds it through seeder and returns the seed.
func (s *Service) RegisterEngine(seeder seed.Seeder, instance string, cfg ParameterSet, overrideKeys ...string) (seed.Seed, error) {
	id := seed.ModuleEngine(s.state.Module(), instance)
	if err := s.ensureValidState(id); err != nil {
		return seed.InvalidSeed, err
	}
	return s.register(id, seeder, cfg, overrideKeys)
}

// RegisterGlobalEngine is RegisterEngine for an engine not owned by any
// module. Allowed only during service construction.
func (s *Service) RegisterGlobalEngine(seeder seed.Seeder, instance string, cfg ParameterSet, overrideKeys ...string) (seed.Seed, error) {
	id := seed.GlobalEngine(instance)
	if err := s.ensureValidState(id); err != nil {
		return seed.InvalidSeed, err
	}
	return s.register(id, seeder, cfg, overrideKeys)
}

// DeclareEngine registers an engine without a seeder. DefineEngine attaches
// the seeder later. An override in cfg freezes the seed immediately.
func (s *Service) DeclareEngine(instance string, cfg ParameterSet, overrideKeys ...string) error {
	id := seed.ModuleEngine(s.state.Module(), instance)
	if err := s.ensureValidState(id); err != nil {
		return err
	}
	if err := s.master.RegisterNewSeeder(id, nil, s.state.Phase()); err != nil {
		return err
	}
	return s.applyOverride(id, instance, cfg, overrideKeys)
}

// DefineEngine attaches seeder to a declared engine of the current module and
// seeds it immediately.
func (s *Service) DefineEngine(seeder seed.Seeder, instance string) (seed.Seed, error) {
	id := seed.ModuleEngine(s.state.Module(), instance)
	if err := s.ensureValidState(id); err != nil {
		return seed.InvalidSeed, err
	}
	if err := s.master.RegisterSeeder(id, seeder); err != nil {
		return seed.InvalidSeed, err
	}
	return s.seedEngine(id, seeder)
}

// GetSeed returns the seed of the current module's engine instance,
// registering an unmanaged record when the engine is unknown.
func (s *Service) GetSeed(instance string) (seed.Seed, error) {
	return s.getSeed(seed.ModuleEngine(s.state.Module(), instance))
}

// GetGlobalSeed is GetSeed for a global engine.
func (s *Service) GetGlobalSeed(instance string) (seed.Seed, error) {
	return s.getSeed(seed.GlobalEngine(instance))
}

func (s *Service) getSeed(id seed.EngineID) (seed.Seed, error) {
	if !s.master.HasEngine(id) {
		if err := s.ensureValidState(id); err != nil {
			return seed.InvalidSeed, err
		}
		if err := s.master.RegisterNewSeeder(id, nil, s.state.Phase()); err != nil {
			return seed.InvalidSeed, err
		}
	}
	return s.master.GetSeed(id)
}

// ReseedInstance reseeds one engine for the current event. It returns
// InvalidSeed without touching the engine when the policy is not event
// dependent; a frozen engine reports its frozen seed.
func (s *Service) ReseedInstance(id seed.EngineID) (seed.Seed, error) {
	rec, ok := s.master.Record(id)
	if !ok {
		return seed.InvalidSeed, seed.NewNoSuchEngineError(id)
	}
	if rec.Frozen {
		return rec.Seed, nil
	}
	if !s.master.Policy().EventDependent() {
		return seed.InvalidSeed, nil
	}
	return s.master.ReseedEvent(id, s.state.Event())
}

// ReseedModule reseeds every engine owned by label.
func (s *Service) ReseedModule(label string) error {
	for _, id := range s.master.EngineIDs() {
		if id.Global || id.ModuleLabel != label {
			continue
		}
		if _, err := s.ReseedInstance(id); err != nil {
			return err
		}
	}
	return nil
}

// ReseedGlobal reseeds every global engine.
func (s *Service) ReseedGlobal() error {
	for _, id := range s.master.EngineIDs() {
		if !id.Global {
			continue
		}
		if _, err := s.ReseedInstance(id); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary renders the seed table.
func (s *Service) WriteSummary(w io.Writer) {
	s.master.WriteSummary(w)
}

func (s *Service) register(id seed.EngineID, seeder seed.Seeder, cfg ParameterSet, overrideKeys []string) (seed.Seed, error) {
	if err := s.master.RegisterNewSeeder(id, seeder, s.state.Phase()); err != nil {
		return seed.InvalidSeed, err
	}
	if err := s.applyOverride(id, id.InstanceName, cfg, overrideKeys); err != nil {
		return seed.InvalidSeed, err
	}
	return s.seedEngine(id, seeder)
}

func (s *Service) seedEngine(id seed.EngineID, seeder seed.Seeder) (seed.Seed, error) {
	sd, err := s.master.GetSeed(id)
	if err != nil {
		return seed.InvalidSeed, err
	}
	if seeder != nil {
		seeder(id, sd)
	}
	return sd, nil
}

func (s *Service) applyOverride(id seed.EngineID, instance string, cfg ParameterSet, overrideKeys []string) error {
	if len(cfg) == 0 {
		return nil
	}
	if len(overrideKeys) == 0 {
		overrideKeys = DefaultOverrideKeys(instance)
	}
	sd, key, found, err := cfg.overrideSeed(overrideKeys)
	if err != nil {
		return fmt.Errorf("engine %s: %w", id, err)
	}
	if !found {
		return nil
	}
	s.logger.Debug("seed override", "engine", id.String(), "key", key, "seed", int64(sd))
	return s.master.FreezeSeed(id, sd)
}

// ensureValidState enforces the registration phases: module engines during
// module construction, global engines during service construction.
func (s *Service) ensureValidState(id seed.EngineID) error {
	phase := s.state.Phase()
	if id.Global {
		if phase != seed.PhaseServiceConstruction {
			return seed.NewBadPhaseError(id, phase)
		}
		return nil
	}
	if phase != seed.PhaseModuleConstruction || id.ModuleLabel == "" {
		return seed.NewBadPhaseError(id, phase)
	}
	return nil
}
