package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPolicy(t *testing.T, name string, opts Options) Policy {
	t.Helper()
	p, err := NewPolicyRegistry().New(name, opts)
	require.NoError(t, err)
	return p
}

func TestRegistry_Names(t *testing.T) {
	r := NewPolicyRegistry()
	assert.Equal(t, []string{
		"autoIncrement", "linearMapping", "perEvent", "preDefinedOffset", "preDefinedSeed", "random",
	}, r.Names())

	err := r.Register(PolicyRandom, newRandomPolicy)
	assert.Error(t, err)

	_, err = r.New("bogus", nil)
	assert.True(t, IsCode(err, ErrCodeBadPolicyConfig))
}

func TestAutoIncrement(t *testing.T) {
	p := newPolicy(t, PolicyAutoIncrement, Options{"baseSeed": 42})

	s1, err := p.Seed(ModuleEngine("a", ""))
	require.NoError(t, err)
	s2, err := p.Seed(ModuleEngine("b", ""))
	require.NoError(t, err)

	assert.Equal(t, Seed(42), s1)
	assert.Equal(t, Seed(43), s2)
	assert.False(t, p.EventDependent())
	assert.Equal(t, InvalidSeed, p.EventSeed(ModuleEngine("a", ""), EventID{Run: 1}))
}

func TestAutoIncrement_CheckRange(t *testing.T) {
	p := newPolicy(t, PolicyAutoIncrement, Options{
		"baseSeed": 10, "checkRange": true, "maxUniqueEngines": 2,
	})
	_, err := p.Seed(ModuleEngine("a", ""))
	require.NoError(t, err)
	_, err = p.Seed(ModuleEngine("b", ""))
	require.NoError(t, err)
	_, err = p.Seed(ModuleEngine("c", ""))
	assert.True(t, IsCode(err, ErrCodeBadPolicyConfig))
}

func TestLinearMapping(t *testing.T) {
	p := newPolicy(t, PolicyLinearMapping, Options{"baseSeed": 1000, "stride": 10})

	a, _ := p.Seed(ModuleEngine("modA", ""))
	b, _ := p.Seed(ModuleEngine("modA", "alt"))
	g, _ := p.Seed(GlobalEngine("svcG"))
	again, _ := p.Seed(ModuleEngine("modA", ""))

	assert.Equal(t, Seed(1000), a)
	assert.Equal(t, Seed(1010), b)
	assert.Equal(t, Seed(1020), g)
	assert.Equal(t, a, again)
}

func TestPolicyConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		opts   Options
	}{
		{"autoIncrement missing base", PolicyAutoIncrement, Options{}},
		{"autoIncrement negative base", PolicyAutoIncrement, Options{"baseSeed": -1}},
		{"autoIncrement bad type", PolicyAutoIncrement, Options{"baseSeed": "abc"}},
		{"autoIncrement checkRange without max", PolicyAutoIncrement, Options{"baseSeed": 1, "checkRange": true}},
		{"linearMapping zero stride", PolicyLinearMapping, Options{"baseSeed": 1, "stride": 0}},
		{"linearMapping fractional", PolicyLinearMapping, Options{"baseSeed": 1.5}},
		{"preDefinedOffset missing table", PolicyPreDefinedOffset, Options{"baseSeed": 1}},
		{"preDefinedSeed missing table", PolicyPreDefinedSeed, Options{}},
		{"preDefinedSeed zero seed", PolicyPreDefinedSeed, Options{"seeds": map[string]any{"m:": 0}}},
		{"perEvent bad algorithm", PolicyPerEvent, Options{"algorithm": "EventTimestamp_v9"}},
		{"random bad max", PolicyRandom, Options{"maxSeed": -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyRegistry().New(tt.policy, tt.opts)
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrCodeBadPolicyConfig), "got %v", err)
		})
	}
}

func TestPreDefinedOffset(t *testing.T) {
	p := newPolicy(t, PolicyPreDefinedOffset, Options{
		"baseSeed": 500,
		"offsets": map[string]any{
			"modA": map[string]any{"": 1, "alt": 2},
			"":     map[string]any{"svcG": 3},
		},
	})

	s, err := p.Seed(ModuleEngine("modA", "alt"))
	require.NoError(t, err)
	assert.Equal(t, Seed(502), s)

	s, err = p.Seed(GlobalEngine("svcG"))
	require.NoError(t, err)
	assert.Equal(t, Seed(503), s)

	_, err = p.Seed(ModuleEngine("modZ", ""))
	assert.True(t, IsCode(err, ErrCodeBadPolicyConfig))
}

func TestPreDefinedSeed_FlatTable(t *testing.T) {
	p := newPolicy(t, PolicyPreDefinedSeed, Options{
		"seeds": map[string]any{"modA:": 11, ":svcG": 12},
	})

	s, err := p.Seed(ModuleEngine("modA", ""))
	require.NoError(t, err)
	assert.Equal(t, Seed(11), s)

	s, err = p.Seed(GlobalEngine("svcG"))
	require.NoError(t, err)
	assert.Equal(t, Seed(12), s)
}

func TestRandom_ReproducibleWithMasterSeed(t *testing.T) {
	draw := func() []Seed {
		p := newPolicy(t, PolicyRandom, Options{"masterSeed": 1234, "maxSeed": 1000})
		var seeds []Seed
		for i := 0; i < 20; i++ {
			s, err := p.Seed(ModuleEngine("m", string(rune('a'+i))))
			require.NoError(t, err)
			seeds = append(seeds, s)
		}
		return seeds
	}
	first, second := draw(), draw()
	assert.Equal(t, first, second)

	seen := map[Seed]bool{}
	for _, s := range first {
		assert.False(t, seen[s], "duplicate seed %d", s)
		assert.GreaterOrEqual(t, int64(s), int64(1))
		assert.LessOrEqual(t, int64(s), int64(1000))
		seen[s] = true
	}
}

func TestRandom_Exhausted(t *testing.T) {
	p := newPolicy(t, PolicyRandom, Options{"masterSeed": 1, "maxSeed": 2})
	_, err := p.Seed(ModuleEngine("m", "a"))
	require.NoError(t, err)
	_, err = p.Seed(ModuleEngine("m", "b"))
	require.NoError(t, err)
	_, err = p.Seed(ModuleEngine("m", "c"))
	assert.True(t, IsCode(err, ErrCodeBadPolicyConfig))
}

func TestPerEvent(t *testing.T) {
	p := newPolicy(t, PolicyPerEvent, Options{"algorithm": AlgorithmEventTimestampV1})
	id := ModuleEngine("gen", "")
	ev1 := EventID{Run: 1, Event: 1}
	ev2 := EventID{Run: 1, Event: 2}

	assert.True(t, p.EventDependent())
	s1 := p.EventSeed(id, ev1)
	assert.Equal(t, s1, p.EventSeed(id, ev1))
	p.OnNewEvent()
	s2 := p.EventSeed(id, ev2)
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, s1, EventTimestampV1(id, ev1))

	initial, err := p.Seed(id)
	require.NoError(t, err)
	assert.Equal(t, EngineHash(id), initial)
}

func TestPerEvent_InitialSeed(t *testing.T) {
	p := newPolicy(t, PolicyPerEvent, Options{"initialSeed": 100})
	a, _ := p.Seed(ModuleEngine("a", ""))
	b, _ := p.Seed(ModuleEngine("b", ""))
	assert.Equal(t, Seed(100), a)
	assert.Equal(t, Seed(101), b)
}

func TestOptions_Int64Conversions(t *testing.T) {
	opts := Options{"i": 3, "i64": int64(4), "u": uint64(5), "f": 6.0, "s": "0x10", "bad": []int{1}}
	for key, want := range map[string]int64{"i": 3, "i64": 4, "u": 5, "f": 6, "s": 16} {
		got, ok, err := opts.Int64(key)
		require.NoError(t, err, key)
		assert.True(t, ok)
		assert.Equal(t, want, got, key)
	}
	_, ok, err := opts.Int64("missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	_, _, err = opts.Int64("bad")
	assert.Error(t, err)
}
