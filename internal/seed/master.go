package seed

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/roach88/nutools/internal/metrics"
)

// Seeder applies a seed to the engine identified by id.
type Seeder func(id EngineID, seed Seed)

// EngineRecord is the Master's bookkeeping for one engine.
type EngineRecord struct {
	ID     EngineID
	Seeder Seeder

	// Seed is the job-level seed, InvalidSeed until assigned.
	Seed Seed

	// EventSeed is the most recent per-event seed, InvalidSeed if none.
	EventSeed Seed

	// Frozen is set when Seed came from a configuration override.
	Frozen bool

	// FirstSeen is the phase in which the engine was registered.
	FirstSeen Phase
}

// Master is the catalog of registered engines and the only place seeds are
// assigned. It is not safe for concurrent use; the framework drives it from a
// single thread.
type Master struct {
	policy  Policy
	records map[EngineID]*EngineRecord
	order   []EngineID
	known   map[Seed]EngineID

	verbosity       int
	endOfJobSummary bool
	logger          *slog.Logger
	metrics         *metrics.Collector
}

// MasterOption configures a Master.
type MasterOption func(*Master)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) MasterOption {
	return func(m *Master) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithVerbosity sets the diagnostics level. Above zero every assignment is logged at Info.
func WithVerbosity(v int) MasterOption {
	return func(m *Master) { m.verbosity = v }
}

// WithEndOfJobSummary enables the summary table at end of job.
func WithEndOfJobSummary(enabled bool) MasterOption {
	return func(m *Master) { m.endOfJobSummary = enabled }
}

// WithMetrics records assignments on c.
func WithMetrics(c *metrics.Collector) MasterOption {
	return func(m *Master) { m.metrics = c }
}

// NewMaster creates an empty catalog using policy.
func NewMaster(policy Policy, opts ...MasterOption) *Master {
	m := &Master{
		policy:  policy,
		records: make(map[EngineID]*EngineRecord),
		known:   make(map[Seed]EngineID),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured policy.
func (m *Master) Policy() Policy { return m.policy }

// Verbosity returns the configured diagnostics level.
func (m *Master) Verbosity() int { return m.verbosity }

// EndOfJobSummary reports whether the summary should be printed at end of job.
func (m *Master) EndOfJobSummary() bool { return m.endOfJobSummary }

// RegisterNewSeeder inserts a record for id with no seed. seeder may be nil.
func (m *Master) RegisterNewSeeder(id EngineID, seeder Seeder, phase Phase) error {
	if _, exists := m.records[id]; exists {
		return NewDuplicateEngineError(id)
	}
	m.records[id] = &EngineRecord{ID: id, Seeder: seeder, FirstSeen: phase}
	m.order = append(m.order, id)
	m.logger.Debug("engine registered", "engine", id.String(), "phase", phase.String(), "seeder", seeder != nil)
	return nil
}

// RegisterSeeder attaches a seeder to a declared engine.
func (m *Master) RegisterSeeder(id EngineID, seeder Seeder) error {
	rec, ok := m.records[id]
	if !ok {
		return NewNoSuchEngineError(id)
	}
	if rec.Seeder != nil {
		return NewAlreadyDefinedError(id)
	}
	rec.Seeder = seeder
	return nil
}

// FreezeSeed pins id to seed. The seed must not belong to another engine.
func (m *Master) FreezeSeed(id EngineID, seed Seed) error {
	rec, ok := m.records[id]
	if !ok {
		return NewNoSuchEngineError(id)
	}
	if seed == InvalidSeed {
		return NewBadConfigError("engine %s: override seed must be non-zero", id)
	}
	if owner, used := m.known[seed]; used && owner != id {
		return NewDuplicateSeedError(id, seed, owner)
	}
	if rec.Seed != InvalidSeed && rec.Seed != seed {
		delete(m.known, rec.Seed)
	}
	rec.Seed = seed
	rec.Frozen = true
	m.known[seed] = id
	m.metrics.SeedAssigned(m.policyName(), true)
	m.logAssignment("seed frozen", rec)
	return nil
}

// GetSeed returns the stored seed for id, asking the policy on first use.
// A policy seed that collides with a known seed aborts with DUPLICATE_SEED.
func (m *Master) GetSeed(id EngineID) (Seed, error) {
	rec, ok := m.records[id]
	if !ok {
		return InvalidSeed, NewNoSuchEngineError(id)
	}
	if rec.Seed != InvalidSeed {
		return rec.Seed, nil
	}
	s, err := m.policy.Seed(id)
	if err != nil {
		return InvalidSeed, err
	}
	if owner, used := m.known[s]; used && owner != id {
		return InvalidSeed, NewDuplicateSeedError(id, s, owner)
	}
	rec.Seed = s
	m.known[s] = id
	m.metrics.SeedAssigned(m.policyName(), false)
	m.logAssignment("seed assigned", rec)
	return s, nil
}

// ReseedEvent asks the policy for an event seed and applies it through the
// stored seeder. It returns InvalidSeed when the policy has no per-event
// seeds. Frozen engines keep their seed and their seeder is not called.
func (m *Master) ReseedEvent(id EngineID, ev EventID) (Seed, error) {
	rec, ok := m.records[id]
	if !ok {
		return InvalidSeed, NewNoSuchEngineError(id)
	}
	if rec.Frozen {
		return rec.Seed, nil
	}
	s := m.policy.EventSeed(id, ev)
	if s == InvalidSeed {
		return InvalidSeed, nil
	}
	rec.EventSeed = s
	if rec.Seeder != nil {
		rec.Seeder(id, s)
	}
	m.metrics.Reseeded(m.policyName())
	if m.verbosity > 1 {
		m.logger.Info("engine reseeded", "engine", id.String(), "event", ev.String(), "seed", int64(s))
	}
	return s, nil
}

// HasSeeder reports whether id is registered with a seeder.
func (m *Master) HasSeeder(id EngineID) bool {
	rec, ok := m.records[id]
	return ok && rec.Seeder != nil
}

// HasEngine reports whether id is registered.
func (m *Master) HasEngine(id EngineID) bool {
	_, ok := m.records[id]
	return ok
}

// OnNewEvent clears per-event state cached by the policy.
func (m *Master) OnNewEvent() {
	m.policy.OnNewEvent()
}

// EngineIDs returns the registered ids in registration order.
func (m *Master) EngineIDs() []EngineID {
	ids := make([]EngineID, len(m.order))
	copy(ids, m.order)
	return ids
}

// Records iterates over copies of the records in registration order.
func (m *Master) Records() iter.Seq[EngineRecord] {
	return func(yield func(EngineRecord) bool) {
		for _, id := range m.order {
			if !yield(*m.records[id]) {
				return
			}
		}
	}
}

// Record returns a copy of the record for id.
func (m *Master) Record(id EngineID) (EngineRecord, bool) {
	rec, ok := m.records[id]
	if !ok {
		return EngineRecord{}, false
	}
	return *rec, true
}

// SeedOwner returns the engine that owns seed, if any.
func (m *Master) SeedOwner(seed Seed) (EngineID, bool) {
	id, ok := m.known[seed]
	return id, ok
}

func (m *Master) policyName() string {
	if m.policy == nil {
		return ""
	}
	return m.policy.Name()
}

func (m *Master) logAssignment(msg string, rec *EngineRecord) {
	level := slog.LevelDebug
	if m.verbosity > 0 {
		level = slog.LevelInfo
	}
	m.logger.Log(context.Background(), level, msg, "engine", rec.ID.String(), "seed", int64(rec.Seed), "frozen", rec.Frozen)
}
