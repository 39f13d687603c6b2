package seed

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
)

// rangeOptions are shared by the counting policies.
type rangeOptions struct {
	checkRange bool
	maxUnique  int64
}

func readRangeOptions(policy string, opts Options) (rangeOptions, error) {
	var ro rangeOptions
	check, _, err := opts.Bool("checkRange")
	if err != nil {
		return ro, NewBadPolicyConfigError(policy, "%v", err)
	}
	maxUnique, hasMax, err := opts.Int64("maxUniqueEngines")
	if err != nil {
		return ro, NewBadPolicyConfigError(policy, "%v", err)
	}
	if hasMax && maxUnique <= 0 {
		return ro, NewBadPolicyConfigError(policy, "maxUniqueEngines must be positive, got %d", maxUnique)
	}
	if check && !hasMax {
		return ro, NewBadPolicyConfigError(policy, "checkRange requires maxUniqueEngines")
	}
	ro.checkRange = check
	ro.maxUnique = maxUnique
	return ro, nil
}

// allows reports whether a new engine with zero-based ordinal n fits the range.
func (ro rangeOptions) allows(n int64) bool {
	return !ro.checkRange || n < ro.maxUnique
}

func requiredPositive(policy string, opts Options, key string) (int64, error) {
	v, ok, err := opts.Int64(key)
	if err != nil {
		return 0, NewBadPolicyConfigError(policy, "%v", err)
	}
	if !ok {
		return 0, NewBadPolicyConfigError(policy, "%s is required", key)
	}
	if v <= 0 {
		return 0, NewBadPolicyConfigError(policy, "%s must be positive, got %d", key, v)
	}
	return v, nil
}

func optionalPositive(policy string, opts Options, key string, def int64) (int64, error) {
	v, ok, err := opts.Int64(key)
	if err != nil {
		return 0, NewBadPolicyConfigError(policy, "%v", err)
	}
	if !ok {
		return def, nil
	}
	if v <= 0 {
		return 0, NewBadPolicyConfigError(policy, "%s must be positive, got %d", key, v)
	}
	return v, nil
}

// autoIncrementPolicy hands out baseSeed, baseSeed+increment, ... in request order.
type autoIncrementPolicy struct {
	baseSeed  int64
	increment int64
	rng       rangeOptions
	count     int64
}

func newAutoIncrementPolicy(opts Options) (Policy, error) {
	base, err := requiredPositive(PolicyAutoIncrement, opts, "baseSeed")
	if err != nil {
		return nil, err
	}
	inc, err := optionalPositive(PolicyAutoIncrement, opts, "increment", 1)
	if err != nil {
		return nil, err
	}
	ro, err := readRangeOptions(PolicyAutoIncrement, opts)
	if err != nil {
		return nil, err
	}
	return &autoIncrementPolicy{baseSeed: base, increment: inc, rng: ro}, nil
}

func (p *autoIncrementPolicy) Name() string { return PolicyAutoIncrement }

func (p *autoIncrementPolicy) Seed(id EngineID) (Seed, error) {
	if !p.rng.allows(p.count) {
		return InvalidSeed, NewBadPolicyConfigError(PolicyAutoIncrement,
			"engine %s exceeds maxUniqueEngines=%d", id, p.rng.maxUnique)
	}
	s := p.baseSeed + p.count*p.increment
	p.count++
	return Seed(s), nil
}

func (p *autoIncrementPolicy) EventSeed(EngineID, EventID) Seed { return InvalidSeed }
func (p *autoIncrementPolicy) EventDependent() bool             { return false }
func (p *autoIncrementPolicy) OnNewEvent()                      {}

func (p *autoIncrementPolicy) Describe() string {
	return fmt.Sprintf("%s baseSeed=%d increment=%d checkRange=%t maxUniqueEngines=%d",
		PolicyAutoIncrement, p.baseSeed, p.increment, p.rng.checkRange, p.rng.maxUnique)
}

// linearMappingPolicy maps the engine's first-request ordinal linearly:
// baseSeed + ordinal*stride. Asking twice for the same id yields the same seed.
type linearMappingPolicy struct {
	baseSeed int64
	stride   int64
	rng      rangeOptions
	ordinal  map[EngineID]int64
}

func newLinearMappingPolicy(opts Options) (Policy, error) {
	base, err := requiredPositive(PolicyLinearMapping, opts, "baseSeed")
	if err != nil {
		return nil, err
	}
	stride, err := optionalPositive(PolicyLinearMapping, opts, "stride", 1)
	if err != nil {
		return nil, err
	}
	ro, err := readRangeOptions(PolicyLinearMapping, opts)
	if err != nil {
		return nil, err
	}
	return &linearMappingPolicy{
		baseSeed: base,
		stride:   stride,
		rng:      ro,
		ordinal:  make(map[EngineID]int64),
	}, nil
}

func (p *linearMappingPolicy) Name() string { return PolicyLinearMapping }

func (p *linearMappingPolicy) Seed(id EngineID) (Seed, error) {
	n, ok := p.ordinal[id]
	if !ok {
		n = int64(len(p.ordinal))
		if !p.rng.allows(n) {
			return InvalidSeed, NewBadPolicyConfigError(PolicyLinearMapping,
				"engine %s exceeds maxUniqueEngines=%d", id, p.rng.maxUnique)
		}
		p.ordinal[id] = n
	}
	return Seed(p.baseSeed + n*p.stride), nil
}

func (p *linearMappingPolicy) EventSeed(EngineID, EventID) Seed { return InvalidSeed }
func (p *linearMappingPolicy) EventDependent() bool             { return false }
func (p *linearMappingPolicy) OnNewEvent()                      {}

func (p *linearMappingPolicy) Describe() string {
	return fmt.Sprintf("%s baseSeed=%d stride=%d checkRange=%t maxUniqueEngines=%d",
		PolicyLinearMapping, p.baseSeed, p.stride, p.rng.checkRange, p.rng.maxUnique)
}

// preDefinedOffsetPolicy adds a configured per-engine offset to baseSeed.
type preDefinedOffsetPolicy struct {
	baseSeed int64
	offsets  map[EngineID]int64
}

func newPreDefinedOffsetPolicy(opts Options) (Policy, error) {
	base, err := requiredPositive(PolicyPreDefinedOffset, opts, "baseSeed")
	if err != nil {
		return nil, err
	}
	offsets, ok, err := opts.EngineTable("offsets")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyPreDefinedOffset, "%v", err)
	}
	if !ok || len(offsets) == 0 {
		return nil, NewBadPolicyConfigError(PolicyPreDefinedOffset, "offsets table is required")
	}
	for id, off := range offsets {
		if base+off <= 0 {
			return nil, NewBadPolicyConfigError(PolicyPreDefinedOffset,
				"offset %d for %s gives non-positive seed", off, id)
		}
	}
	return &preDefinedOffsetPolicy{baseSeed: base, offsets: offsets}, nil
}

func (p *preDefinedOffsetPolicy) Name() string { return PolicyPreDefinedOffset }

func (p *preDefinedOffsetPolicy) Seed(id EngineID) (Seed, error) {
	off, ok := p.offsets[id]
	if !ok {
		return InvalidSeed, NewBadPolicyConfigError(PolicyPreDefinedOffset, "no offset configured for %s", id)
	}
	return Seed(p.baseSeed + off), nil
}

func (p *preDefinedOffsetPolicy) EventSeed(EngineID, EventID) Seed { return InvalidSeed }
func (p *preDefinedOffsetPolicy) EventDependent() bool             { return false }
func (p *preDefinedOffsetPolicy) OnNewEvent()                      {}

func (p *preDefinedOffsetPolicy) Describe() string {
	return fmt.Sprintf("%s baseSeed=%d engines=%d", PolicyPreDefinedOffset, p.baseSeed, len(p.offsets))
}

// preDefinedSeedPolicy reads every seed from the configured table.
type preDefinedSeedPolicy struct {
	seeds map[EngineID]int64
}

func newPreDefinedSeedPolicy(opts Options) (Policy, error) {
	seeds, ok, err := opts.EngineTable("seeds")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyPreDefinedSeed, "%v", err)
	}
	if !ok || len(seeds) == 0 {
		return nil, NewBadPolicyConfigError(PolicyPreDefinedSeed, "seeds table is required")
	}
	for id, s := range seeds {
		if s <= 0 {
			return nil, NewBadPolicyConfigError(PolicyPreDefinedSeed, "seed %d for %s must be positive", s, id)
		}
	}
	return &preDefinedSeedPolicy{seeds: seeds}, nil
}

func (p *preDefinedSeedPolicy) Name() string { return PolicyPreDefinedSeed }

func (p *preDefinedSeedPolicy) Seed(id EngineID) (Seed, error) {
	s, ok := p.seeds[id]
	if !ok {
		return InvalidSeed, NewBadPolicyConfigError(PolicyPreDefinedSeed, "no seed configured for %s", id)
	}
	return Seed(s), nil
}

func (p *preDefinedSeedPolicy) EventSeed(EngineID, EventID) Seed { return InvalidSeed }
func (p *preDefinedSeedPolicy) EventDependent() bool             { return false }
func (p *preDefinedSeedPolicy) OnNewEvent()                      {}

func (p *preDefinedSeedPolicy) Describe() string {
	return fmt.Sprintf("%s engines=%d", PolicyPreDefinedSeed, len(p.seeds))
}

// DefaultRandomMaxSeed bounds seeds drawn by the random policy.
const DefaultRandomMaxSeed = 900000000

// randomPolicy draws seeds from a PCG stream keyed by masterSeed. The master
// seed is drawn from the OS when not configured and reported by Describe, so
// a job can be rerun with identical seeds.
type randomPolicy struct {
	masterSeed int64
	maxSeed    int64
	rng        *mrand.Rand
	drawn      map[Seed]bool
}

func newRandomPolicy(opts Options) (Policy, error) {
	master, ok, err := opts.Int64("masterSeed")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyRandom, "%v", err)
	}
	if !ok {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, NewBadPolicyConfigError(PolicyRandom, "draw master seed: %v", err)
		}
		master = int64(binary.BigEndian.Uint64(buf[:]) >> 1)
	}
	maxSeed, err := optionalPositive(PolicyRandom, opts, "maxSeed", DefaultRandomMaxSeed)
	if err != nil {
		return nil, err
	}
	return &randomPolicy{
		masterSeed: master,
		maxSeed:    maxSeed,
		rng:        mrand.New(mrand.NewPCG(uint64(master), uint64(maxSeed))),
		drawn:      make(map[Seed]bool),
	}, nil
}

func (p *randomPolicy) Name() string { return PolicyRandom }

func (p *randomPolicy) Seed(id EngineID) (Seed, error) {
	if int64(len(p.drawn)) >= p.maxSeed {
		return InvalidSeed, NewBadPolicyConfigError(PolicyRandom, "seed space of %d exhausted at %s", p.maxSeed, id)
	}
	for {
		s := Seed(1 + p.rng.Int64N(p.maxSeed))
		if !p.drawn[s] {
			p.drawn[s] = true
			return s, nil
		}
	}
}

func (p *randomPolicy) EventSeed(EngineID, EventID) Seed { return InvalidSeed }
func (p *randomPolicy) EventDependent() bool             { return false }
func (p *randomPolicy) OnNewEvent()                      {}

func (p *randomPolicy) Describe() string {
	return fmt.Sprintf("%s masterSeed=%d maxSeed=%d", PolicyRandom, p.masterSeed, p.maxSeed)
}

// AlgorithmEventTimestampV1 is the only per-event algorithm.
const AlgorithmEventTimestampV1 = "EventTimestamp_v1"

type eventKey struct {
	id EngineID
	ev EventID
}

// perEventPolicy derives a fresh seed for every (engine, event) pair.
type perEventPolicy struct {
	algorithm   string
	offset      int64
	initialSeed int64
	hasInitial  bool
	ordinal     map[EngineID]int64
	cache       map[eventKey]Seed
}

func newPerEventPolicy(opts Options) (Policy, error) {
	algorithm, _, err := opts.String("algorithm")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyPerEvent, "%v", err)
	}
	if algorithm == "" {
		algorithm = AlgorithmEventTimestampV1
	}
	if algorithm != AlgorithmEventTimestampV1 {
		return nil, NewBadPolicyConfigError(PolicyPerEvent, "unsupported algorithm %q", algorithm)
	}
	offset, _, err := opts.Int64("offset")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyPerEvent, "%v", err)
	}
	initial, hasInitial, err := opts.Int64("initialSeed")
	if err != nil {
		return nil, NewBadPolicyConfigError(PolicyPerEvent, "%v", err)
	}
	if hasInitial && initial <= 0 {
		return nil, NewBadPolicyConfigError(PolicyPerEvent, "initialSeed must be positive, got %d", initial)
	}
	return &perEventPolicy{
		algorithm:   algorithm,
		offset:      offset,
		initialSeed: initial,
		hasInitial:  hasInitial,
		ordinal:     make(map[EngineID]int64),
		cache:       make(map[eventKey]Seed),
	}, nil
}

func (p *perEventPolicy) Name() string { return PolicyPerEvent }

// Seed is the pre-event seed used until the first event arrives.
func (p *perEventPolicy) Seed(id EngineID) (Seed, error) {
	if p.hasInitial {
		n, ok := p.ordinal[id]
		if !ok {
			n = int64(len(p.ordinal))
			p.ordinal[id] = n
		}
		return Seed(p.initialSeed + n), nil
	}
	return toSeed(uint64(EngineHash(id)) + uint64(p.offset)), nil
}

func (p *perEventPolicy) EventSeed(id EngineID, ev EventID) Seed {
	key := eventKey{id: id, ev: ev}
	if s, ok := p.cache[key]; ok {
		return s
	}
	s := toSeed(uint64(EventTimestampV1(id, ev)) + uint64(p.offset))
	p.cache[key] = s
	return s
}

func (p *perEventPolicy) EventDependent() bool { return true }

func (p *perEventPolicy) OnNewEvent() {
	clear(p.cache)
}

func (p *perEventPolicy) Describe() string {
	return fmt.Sprintf("%s algorithm=%s offset=%d", PolicyPerEvent, p.algorithm, p.offset)
}
