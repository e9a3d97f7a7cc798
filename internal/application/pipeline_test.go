package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// mockExecutable is a test implementation of Executable.
type mockExecutable struct {
	id          string
	executeFunc func(ctx context.Context, state domain.State) (domain.State, error)
	executed    bool
	mu          sync.Mutex
}

func (m *mockExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	m.mu.Lock()
	m.executed = true
	m.mu.Unlock()

	if m.executeFunc != nil {
		return m.executeFunc(ctx, state)
	}
	return state, nil
}

func (m *mockExecutable) ID() string {
	return m.id
}

func (m *mockExecutable) wasExecuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed
}

// writer returns an executable that stores value under key.
func writer(id, key string, value int) *mockExecutable {
	return &mockExecutable{
		id: id,
		executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
			return domain.With(state, domain.NewKey[int](key), value), nil
		},
	}
}

func TestPipeline_Execute(t *testing.T) {
	tests := []struct {
		name          string
		setupPipeline func() (ports.Pipeline, []*mockExecutable)
		wantErr       string
		verify        func(t *testing.T, state domain.State, mocks []*mockExecutable)
	}{
		{
			name: "executes units in sequence",
			setupPipeline: func() (ports.Pipeline, []*mockExecutable) {
				pipeline := NewPipeline("general2018")
				mocks := make([]*mockExecutable, 3)
				for i := range mocks {
					step := i
					mocks[i] = &mockExecutable{
						id: fmt.Sprintf("unit%d", i),
						executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
							prev, _ := domain.Get(state, domain.NewKey[int]("last"))
							if prev != step {
								return state, fmt.Errorf("step %d ran after %d", step, prev)
							}
							return domain.With(state, domain.NewKey[int]("last"), step+1), nil
						},
					}
					require.NoError(t, pipeline.Add(mocks[i]))
				}
				return pipeline, mocks
			},
			verify: func(t *testing.T, state domain.State, mocks []*mockExecutable) {
				for _, m := range mocks {
					assert.True(t, m.wasExecuted(), "Unit %s should have executed.", m.id)
				}
				last, ok := domain.Get(state, domain.NewKey[int]("last"))
				require.True(t, ok)
				assert.Equal(t, 3, last)
			},
		},
		{
			name: "stops at first error",
			setupPipeline: func() (ports.Pipeline, []*mockExecutable) {
				pipeline := NewPipeline("general2018")
				failing := &mockExecutable{
					id: "party_ceiling",
					executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
						return state, domain.ErrZeroTotal
					},
				}
				after := &mockExecutable{id: "alliances"}
				require.NoError(t, pipeline.Add(failing))
				require.NoError(t, pipeline.Add(after))
				return pipeline, []*mockExecutable{failing, after}
			},
			wantErr: "pipeline general2018: execution failed at party_ceiling",
			verify: func(t *testing.T, _ domain.State, mocks []*mockExecutable) {
				assert.False(t, mocks[1].wasExecuted(), "Units after a failure must not run.")
			},
		},
		{
			name: "empty pipeline returns input",
			setupPipeline: func() (ports.Pipeline, []*mockExecutable) {
				return NewPipeline("empty"), nil
			},
			verify: func(t *testing.T, state domain.State, _ []*mockExecutable) {
				assert.Empty(t, state.Keys())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, mocks := tt.setupPipeline()
			state, err := pipeline.Execute(context.Background(), domain.NewState())

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrZeroTotal)
			} else {
				require.NoError(t, err)
			}
			if tt.verify != nil {
				tt.verify(t, state, mocks)
			}
		})
	}
}

func TestPipeline_ContextCancelled(t *testing.T) {
	pipeline := NewPipeline("cancelled")
	unit := &mockExecutable{id: "sampler"}
	require.NoError(t, pipeline.Add(unit))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Execute(ctx, domain.NewState())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, unit.wasExecuted())
}

func TestPipeline_Add(t *testing.T) {
	pipeline := NewPipeline("p")

	require.NoError(t, pipeline.Add(&mockExecutable{id: "a"}))
	assert.Error(t, pipeline.Add(&mockExecutable{id: "a"}), "Duplicate IDs must be rejected.")
	assert.Error(t, pipeline.Add(nil))

	execs := pipeline.Executables()
	require.Len(t, execs, 1)
	execs[0] = nil
	assert.NotNil(t, pipeline.Executables()[0], "Executables() must return a copy.")
}

func TestLayer_Execute(t *testing.T) {
	t.Run("merges outputs of all executables", func(t *testing.T) {
		layer := NewLayer("stage_0")
		require.NoError(t, layer.Add(writer("party_sampler", "sample.parties", 1)))
		require.NoError(t, layer.Add(writer("candidate_sampler", "sample.candidates", 2)))

		base := domain.With(domain.NewState(), domain.KeySeed, int64(7))
		out, err := layer.Execute(context.Background(), base)
		require.NoError(t, err)

		a, ok := domain.Get(out, domain.NewKey[int]("sample.parties"))
		require.True(t, ok)
		assert.Equal(t, 1, a)
		b, ok := domain.Get(out, domain.NewKey[int]("sample.candidates"))
		require.True(t, ok)
		assert.Equal(t, 2, b)
		seed, ok := domain.Get(out, domain.KeySeed)
		require.True(t, ok, "Base keys must survive the merge.")
		assert.Equal(t, int64(7), seed)
	})

	t.Run("runs executables concurrently", func(t *testing.T) {
		layer := NewLayer("parallel")
		var running, peak atomic.Int32
		for i := 0; i < 4; i++ {
			require.NoError(t, layer.Add(&mockExecutable{
				id: fmt.Sprintf("u%d", i),
				executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					running.Add(-1)
					return state, nil
				},
			}))
		}
		layer.SetConcurrencyLimit(4)

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		assert.Greater(t, peak.Load(), int32(1))
	})

	t.Run("joins errors", func(t *testing.T) {
		layer := NewLayer("failing")
		errA := errors.New("a failed")
		errB := errors.New("b failed")
		require.NoError(t, layer.Add(&mockExecutable{id: "a", executeFunc: func(_ context.Context, s domain.State) (domain.State, error) {
			return s, errA
		}}))
		require.NoError(t, layer.Add(&mockExecutable{id: "b", executeFunc: func(_ context.Context, s domain.State) (domain.State, error) {
			return s, errB
		}}))

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.Error(t, err)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.Contains(t, err.Error(), "layer failing failed with 2 errors")
	})

	t.Run("conflicting writes", func(t *testing.T) {
		layer := NewLayer("conflict")
		require.NoError(t, layer.Add(writer("a", "snapshot.parties", 1)))
		require.NoError(t, layer.Add(writer("b", "snapshot.parties", 2)))

		_, err := layer.Execute(context.Background(), domain.NewState())
		assert.ErrorIs(t, err, ErrMergeConflict)
	})

	t.Run("empty layer", func(t *testing.T) {
		base := domain.With(domain.NewState(), domain.KeyRegion, "Izmir")
		out, err := NewLayer("empty").Execute(context.Background(), base)
		require.NoError(t, err)
		assert.Equal(t, base.Keys(), out.Keys())
	})

	t.Run("custom merge strategy", func(t *testing.T) {
		layer := NewLayer("custom")
		require.NoError(t, layer.Add(writer("a", "x", 1)))
		layer.SetMergeStrategy(firstStateMerge{})

		out, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		v, ok := domain.Get(out, domain.NewKey[int]("x"))
		require.True(t, ok)
		assert.Equal(t, 1, v)
	})
}

type firstStateMerge struct{}

func (firstStateMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return base, nil
	}
	return states[0], nil
}

func TestKeyUnionMerge(t *testing.T) {
	base := domain.With(domain.NewState(), domain.KeySeed, int64(1))

	t.Run("unchanged base keys are not conflicts", func(t *testing.T) {
		s1 := domain.With(base, domain.NewKey[int]("a"), 1)
		s2 := domain.With(base, domain.NewKey[int]("b"), 2)

		out, err := KeyUnionMerge{}.Merge(base, []domain.State{s1, s2})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"execution.seed", "a", "b"}, out.Keys())
	})

	t.Run("single overwrite of a base key wins", func(t *testing.T) {
		s1 := domain.With(base, domain.KeySeed, int64(9))

		out, err := KeyUnionMerge{}.Merge(base, []domain.State{s1, base})
		require.NoError(t, err)
		seed, _ := domain.Get(out, domain.KeySeed)
		assert.Equal(t, int64(9), seed)
	})

	t.Run("no states", func(t *testing.T) {
		out, err := KeyUnionMerge{}.Merge(base, nil)
		require.NoError(t, err)
		assert.Equal(t, base.Keys(), out.Keys())
	})
}

func TestUnitAdapter(t *testing.T) {
	unit := &stubUnit{name: "party_sampler"}
	adapter := NewUnitAdapter(unit, "party_sampler")

	assert.Equal(t, "party_sampler", adapter.ID())
	assert.Same(t, unit, adapter.Unit())

	out, err := adapter.Execute(context.Background(), domain.NewState())
	require.NoError(t, err)
	ran, ok := domain.Get(out, domain.NewKey[bool]("ran.party_sampler"))
	assert.True(t, ok)
	assert.True(t, ran)
}

// stubUnit is a ports.Unit that marks its execution in the state.
type stubUnit struct {
	name   string
	config map[string]any
}

func (s *stubUnit) Name() string    { return s.name }
func (s *stubUnit) Validate() error { return nil }
func (s *stubUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	return domain.With(state, domain.NewKey[bool]("ran."+s.name), true), nil
}
