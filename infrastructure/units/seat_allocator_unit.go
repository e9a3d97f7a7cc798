package units

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.Unit = (*SeatAllocatorUnit)(nil)

// SeatMethod selects how seats are distributed among eligible entities.
type SeatMethod string

// Supported seat allocation methods.
const (
	// SeatsProportional is the largest remainder method: floors of each
	// quota, then one extra seat per largest fractional part.
	SeatsProportional SeatMethod = "proportional"

	// SeatsDHondt uses the D'Hondt highest averages method.
	SeatsDHondt SeatMethod = "dhondt"
)

// SeatAllocatorUnit converts a normalized snapshot into parliamentary seats.
// Entities below the threshold receive no seats.
type SeatAllocatorUnit struct {
	name   string
	config SeatAllocatorConfig
	tracer trace.Tracer
}

// SeatAllocatorConfig defines the assembly size, threshold and method.
type SeatAllocatorConfig struct {
	Table string `yaml:"table" json:"table" validate:"required"`

	// Seats is the number of seats to distribute.
	Seats int `yaml:"seats" json:"seats" validate:"min=1,max=10000"`

	// Threshold is the minimum percentage an entity needs to win seats.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0,max=100"`

	Method SeatMethod `yaml:"method" json:"method" validate:"required,oneof=proportional dhondt"`
}

// NewSeatAllocatorUnit creates a seat allocator.
func NewSeatAllocatorUnit(name string, config SeatAllocatorConfig) (*SeatAllocatorUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &SeatAllocatorUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("seat-allocator-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (sau *SeatAllocatorUnit) Name() string { return sau.name }

// Execute allocates seats from domain.SnapshotKey(table) and stores them
// under domain.SeatsKey(table).
func (sau *SeatAllocatorUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := sau.tracer.Start(ctx, "SeatAllocatorUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "seat_allocator"),
			attribute.String("unit.id", sau.name),
			attribute.String("config.method", string(sau.config.Method)),
			attribute.Int("config.seats", sau.config.Seats),
		),
	)
	defer span.End()

	key := domain.SnapshotKey(sau.config.Table)
	snap, ok := domain.Get(state, key)
	if !ok {
		err := domain.MissingKey(key, "AllocateSeats")
		span.RecordError(err)
		return state, err
	}

	alloc, err := AllocateSeats(snap.Shares, sau.config.Seats, sau.config.Threshold, sau.config.Method)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	return domain.With(state, domain.SeatsKey(sau.config.Table), alloc), nil
}

// AllocateSeats distributes seats among shares at or above threshold.
// The result is ordered by support, highest first. When at least one
// entity is eligible the allocated seats always add up to seats.
func AllocateSeats(shares []domain.Share, seats int, threshold float64, method SeatMethod) ([]domain.SeatAllocation, error) {
	if err := checkShares(shares); err != nil {
		return nil, err
	}

	alloc := make([]domain.SeatAllocation, len(shares))
	var eligibleTotal float64
	eligible := 0
	for i, s := range shares {
		alloc[i] = domain.SeatAllocation{
			Entity:   s.Entity,
			Percent:  s.Percent,
			Eligible: s.Percent >= threshold,
		}
		if alloc[i].Eligible {
			eligibleTotal += s.Percent
			eligible++
		}
	}

	// Highest support first; the stable sort keeps table order on ties.
	slices.SortStableFunc(alloc, func(a, b domain.SeatAllocation) int {
		return cmp.Compare(b.Percent, a.Percent)
	})

	if eligible == 0 {
		return alloc, nil
	}
	if eligibleTotal == 0 {
		return nil, fmt.Errorf("eligible support: %w", domain.ErrZeroTotal)
	}

	switch method {
	case SeatsProportional:
		allocateProportional(alloc, seats, eligibleTotal)
	case SeatsDHondt:
		allocateDHondt(alloc, seats)
	default:
		return nil, fmt.Errorf("%w: seat method %q", domain.ErrInvalidConfiguration, method)
	}
	return alloc, nil
}

// Fractional parts within remainderTolerance of each other count as equal.
const remainderTolerance = 1e-9

// allocateProportional uses largest remainders: every eligible entity gets
// the floor of its quota and the seats left over go to the largest
// fractional parts. alloc is sorted by support, so ties favour the entity
// with more support.
func allocateProportional(alloc []domain.SeatAllocation, seats int, eligibleTotal float64) {
	type remainder struct {
		idx  int
		frac float64
	}

	left := seats
	rems := make([]remainder, 0, len(alloc))
	for i := range alloc {
		if !alloc[i].Eligible {
			continue
		}
		quota := alloc[i].Percent / eligibleTotal * float64(seats)
		whole := math.Floor(quota)
		alloc[i].Seats = int(whole)
		left -= alloc[i].Seats
		rems = append(rems, remainder{idx: i, frac: quota - whole})
	}

	slices.SortStableFunc(rems, func(a, b remainder) int {
		if math.Abs(a.frac-b.frac) < remainderTolerance {
			return cmp.Compare(a.idx, b.idx)
		}
		return cmp.Compare(b.frac, a.frac)
	})
	for i := 0; left > 0 && len(rems) > 0; i = (i + 1) % len(rems) {
		alloc[rems[i].idx].Seats++
		left--
	}
}

func allocateDHondt(alloc []domain.SeatAllocation, seats int) {
	for range seats {
		best := -1
		var bestQuotient float64
		for i := range alloc {
			if !alloc[i].Eligible {
				continue
			}
			q := alloc[i].Percent / float64(alloc[i].Seats+1)
			if best < 0 || q > bestQuotient {
				best, bestQuotient = i, q
			}
		}
		alloc[best].Seats++
	}
}

// Validate checks the unit configuration.
func (sau *SeatAllocatorUnit) Validate() error {
	if err := validate.Struct(sau.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultSeatAllocatorConfig returns a 550 seat assembly with a 10 percent
// threshold and proportional allocation.
func DefaultSeatAllocatorConfig() SeatAllocatorConfig {
	return SeatAllocatorConfig{
		Seats:     550,
		Threshold: 10,
		Method:    SeatsProportional,
	}
}

// NewSeatAllocatorFromConfig creates a SeatAllocatorUnit from a configuration map.
func NewSeatAllocatorFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultSeatAllocatorConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewSeatAllocatorUnit(id, cfg)
}
