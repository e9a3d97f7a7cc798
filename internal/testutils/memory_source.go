package testutils

import (
	"context"
	"sync"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.PollSource = (*MemorySource)(nil)

// MemorySource is an in-memory PollSource keyed by file path.
// It counts loads per path so tests can assert caching behavior.
type MemorySource struct {
	mu    sync.Mutex
	files map[string]map[string]domain.Series
	loads map[string]int
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		files: make(map[string]map[string]domain.Series),
		loads: make(map[string]int),
	}
}

// Add registers series under path and returns the source for chaining.
func (m *MemorySource) Add(path string, series map[string]domain.Series) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = series
	return m
}

// LoadTable implements ports.PollSource.
func (m *MemorySource) LoadTable(ctx context.Context, spec domain.TableSpec) (*domain.PollTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	series, ok := m.files[spec.Path]
	m.loads[spec.Path]++
	m.mu.Unlock()

	if !ok {
		return nil, ports.NewSourceError(spec.Path, "Open", ports.ErrSourceNotFound)
	}
	return domain.NewPollTable(spec.Name, spec.Entities, series)
}

// Loads returns how often path was requested.
func (m *MemorySource) Loads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[path]
}

// GeneralElectionSource returns a source holding the party and candidate
// fixtures as polls.txt and candidates.txt.
func GeneralElectionSource() *MemorySource {
	return NewMemorySource().
		Add("polls.txt", PartyPolls).
		Add("candidates.txt", CandidatePolls)
}
