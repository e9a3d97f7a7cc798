package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// ErrMergeConflict is returned when two executables of a layer write the
// same state key.
var ErrMergeConflict = errors.New("conflicting state writes")

// members is the ordered, ID-unique set of executables shared by Pipeline
// and Layer.
type members struct {
	mu    sync.RWMutex
	kind  string
	list  []ports.Executable
	index map[string]int
}

// Add appends exec. It rejects nil executables and duplicate IDs.
func (m *members) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to %s", m.kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.index[exec.ID()]; dup {
		return fmt.Errorf("executable with ID %s already exists in %s", exec.ID(), m.kind)
	}
	m.index[exec.ID()] = len(m.list)
	m.list = append(m.list, exec)
	return nil
}

// Executables returns a copy of the members in insertion order.
func (m *members) Executables() []ports.Executable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.list)
}

// Pipeline runs its executables in order, each one receiving the state the
// previous one returned. Stages of a scenario are chained this way because
// a normalizer needs the sample drawn before it.
type Pipeline struct {
	members
	id string
}

var _ ports.Pipeline = (*Pipeline)(nil)

func NewPipeline(id string) *Pipeline {
	return &Pipeline{id: id, members: members{kind: "pipeline", index: make(map[string]int)}}
}

func (p *Pipeline) ID() string { return p.id }

// Execute stops at the first failure and returns the state reached before
// it. Cancellation is checked before every step.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	for _, exec := range p.Executables() {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		next, err := exec.Execute(ctx, state)
		if err != nil {
			return state, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		state = next
	}
	return state, nil
}

// Layer runs its executables concurrently on the same input state and
// merges their outputs. Units that share a stage, such as the samplers of
// independent tables, are grouped into one Layer.
type Layer struct {
	members
	id       string
	strategy ports.MergeStrategy
	limit    int
}

var _ ports.Layer = (*Layer)(nil)

func NewLayer(id string) *Layer {
	return &Layer{id: id, members: members{kind: "layer", index: make(map[string]int)}}
}

func (l *Layer) ID() string { return l.id }

// SetMergeStrategy replaces KeyUnionMerge, the default.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	l.strategy = strategy
	l.mu.Unlock()
}

// SetConcurrencyLimit bounds how many executables run at once. Values
// below 1 restore the default of twice the CPU count.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
}

func (l *Layer) settings() (ports.MergeStrategy, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	strategy, limit := l.strategy, l.limit
	if strategy == nil {
		strategy = KeyUnionMerge{}
	}
	if limit < 1 {
		limit = runtime.NumCPU() * 2
	}
	return strategy, limit
}

// Execute waits for every executable, even after one fails, and reports
// all failures together. Outputs reach the merge strategy in insertion
// order regardless of completion order.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	execs := l.Executables()
	if len(execs) == 0 {
		return state, nil
	}
	strategy, limit := l.settings()

	outs := make([]domain.State, len(execs))
	errs := make([]error, len(execs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range execs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			out, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			outs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return state, err
	}
	if failed := slices.DeleteFunc(errs, func(err error) bool { return err == nil }); len(failed) > 0 {
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, len(failed), errors.Join(failed...))
	}

	merged, err := strategy.Merge(state, outs)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// KeyUnionMerge keeps every key an executable wrote. A key counts as
// written when the base lacks it or holds a different value; two writers
// of one key is an ErrMergeConflict.
type KeyUnionMerge struct{}

var _ ports.MergeStrategy = KeyUnionMerge{}

func (KeyUnionMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	written := make(map[string]any)
	for _, s := range states {
		for _, key := range s.Keys() {
			v, _ := s.GetRaw(key)
			if old, ok := base.GetRaw(key); ok && reflect.DeepEqual(old, v) {
				continue
			}
			if _, seen := written[key]; seen {
				return base, fmt.Errorf("%w: key %s", ErrMergeConflict, key)
			}
			written[key] = v
		}
	}
	if len(written) == 0 {
		return base, nil
	}
	return base.WithMultiple(written), nil
}
