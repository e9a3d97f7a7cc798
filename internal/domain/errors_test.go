package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateError(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "execution key",
			key:       KeyRegion.name,
			operation: "Get",
			err:       ErrKeyNotFound,
			wantMsg:   "Get execution.region: key not found",
		},
		{
			name:      "per-table key",
			key:       SnapshotKey("parties").name,
			operation: "Normalize",
			err:       ErrZeroTotal,
			wantMsg:   "Normalize snapshot.parties: group total is zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStateError(tt.key, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.key, err.Key)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMissingKey(t *testing.T) {
	err := MissingKey(SampleKey("candidates"), "Normalize")

	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, "sample.candidates", err.Key)
	assert.Equal(t, "Normalize", err.Operation)
}

func TestValidationError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		verr := NewValidationError("table")
		verr.Add(nil)
		assert.NoError(t, verr.Err())
	})

	t.Run("collects errors", func(t *testing.T) {
		verr := NewValidationError(`table "parties"`)
		verr.Addf("%w: duplicate entity %q", ErrInvalidConfiguration, "AKP")
		verr.Add(fmt.Errorf("entity %q: %w", "SP", ErrInvalidValue))

		err := verr.Err()
		require.Error(t, err)
		assert.Equal(t,
			`table "parties": invalid configuration: duplicate entity "AKP"; entity "SP": invalid poll value`,
			err.Error())
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.ErrorIs(t, err, ErrInvalidValue)
		assert.NotErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("survives wrapping", func(t *testing.T) {
		verr := NewValidationError("city")
		verr.Add(ErrEmptySeries)

		wrapped := fmt.Errorf("load: %w", verr.Err())
		var target *ValidationError
		require.True(t, errors.As(wrapped, &target))
		assert.Equal(t, "city", target.Subject)
	})
}
