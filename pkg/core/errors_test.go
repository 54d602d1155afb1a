package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memekeeper "github.com/muika-lab/memekeeper/pkg/core"
)

func TestMemeErrorFormat(t *testing.T) {
	err := &memekeeper.MemeError{Op: "Admit", Err: memekeeper.ErrStorageOperation}
	assert.Equal(t, "memekeeper: Admit: storage operation failed", err.Error())
}

func TestMemeErrorUnwrap(t *testing.T) {
	wrapped := memekeeper.NewMemeError("Get", memekeeper.ErrNotFound)
	assert.ErrorIs(t, wrapped, memekeeper.ErrNotFound)

	var memeErr *memekeeper.MemeError
	require.ErrorAs(t, wrapped, &memeErr)
	assert.Equal(t, "Get", memeErr.Op)
}

func TestMemeErrorNestedUnwrap(t *testing.T) {
	inner := fmt.Errorf("context: %w", memekeeper.ErrInvalidConfig)
	wrapped := memekeeper.NewMemeError("Validate", inner)
	assert.ErrorIs(t, wrapped, memekeeper.ErrInvalidConfig)
}

func TestNewMemeErrorNil(t *testing.T) {
	assert.NoError(t, memekeeper.NewMemeError("Op", nil))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		memekeeper.ErrNotFound,
		memekeeper.ErrInvalidConfig,
		memekeeper.ErrStorageOperation,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
