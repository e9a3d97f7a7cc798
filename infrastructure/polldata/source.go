// Package polldata reads poll tables from plain-text files.
//
// A poll file holds whitespace-separated decimal numbers. In the series
// layout each entity's polls are stored consecutively; in the rows layout
// every line is one poll with a column per entity. The number of values
// must be exactly entities x length.
package polldata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"go.ntppool.org/common/logger"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.PollSource = (*FileSource)(nil)

// FileSource loads poll tables from a file system.
type FileSource struct {
	fsys fs.FS
}

// NewFileSource reads tables from fsys. Paths in table specs are relative
// to its root.
func NewFileSource(fsys fs.FS) *FileSource {
	return &FileSource{fsys: fsys}
}

// NewDirSource reads tables from the directory dir.
func NewDirSource(dir string) *FileSource {
	return NewFileSource(os.DirFS(dir))
}

// LoadTable implements ports.PollSource.
func (s *FileSource) LoadTable(ctx context.Context, spec domain.TableSpec) (*domain.PollTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSpec(spec); err != nil {
		return nil, ports.NewSourceError(spec.Path, "LoadTable", err)
	}

	log := logger.FromContext(ctx)

	f, err := s.fsys.Open(spec.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.NewSourceError(spec.Path, "Open", fmt.Errorf("%w: %w", ports.ErrSourceNotFound, err))
		}
		return nil, ports.NewSourceError(spec.Path, "Open", err)
	}
	defer f.Close()

	want := len(spec.Entities) * spec.Length
	values, err := readValues(f, want)
	if err != nil {
		return nil, ports.NewSourceError(spec.Path, "Parse", err)
	}

	series := arrange(values, spec)
	table, err := domain.NewPollTable(spec.Name, spec.Entities, series)
	if err != nil {
		return nil, ports.NewSourceError(spec.Path, "Build", err)
	}

	log.DebugContext(ctx, "loaded poll table",
		"table", spec.Name,
		"path", spec.Path,
		"layout", spec.Layout,
		"entities", len(spec.Entities),
		"length", spec.Length,
	)
	return table, nil
}

func checkSpec(spec domain.TableSpec) error {
	switch {
	case spec.Path == "":
		return fmt.Errorf("%w: empty path", domain.ErrInvalidConfiguration)
	case len(spec.Entities) == 0:
		return fmt.Errorf("%w: no entities", domain.ErrInvalidConfiguration)
	case spec.Length <= 0:
		return fmt.Errorf("%w: length %d", domain.ErrInvalidConfiguration, spec.Length)
	case spec.Layout != domain.LayoutSeries && spec.Layout != domain.LayoutRows:
		return fmt.Errorf("%w: layout %q", domain.ErrInvalidConfiguration, spec.Layout)
	}
	return nil
}

// readValues parses exactly want numbers from r.
func readValues(r io.Reader, want int) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	values := make([]float64, 0, want)
	for sc.Scan() {
		tok := sc.Text()
		if len(values) == want {
			return nil, fmt.Errorf("%w: more than %d values", ports.ErrMalformedTable, want)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %q is not a number", ports.ErrMalformedTable, len(values)+1, tok)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ports.ErrMalformedTable, len(values), want)
	}
	return values, nil
}

// arrange splits a flat value list into per-entity series.
func arrange(values []float64, spec domain.TableSpec) map[string]domain.Series {
	n := len(spec.Entities)
	series := make(map[string]domain.Series, n)
	for j, entity := range spec.Entities {
		s := make(domain.Series, spec.Length)
		for i := range s {
			if spec.Layout == domain.LayoutRows {
				s[i] = values[i*n+j]
			} else {
				s[i] = values[j*spec.Length+i]
			}
		}
		series[entity] = s
	}
	return series
}
