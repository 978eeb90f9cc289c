package clock

import (
	"errors"
	"testing"

	"fatigue-fusion-engine/internal/ffeerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracle_IsFresh(t *testing.T) {
	fake := NewFake(100.0)
	oracle := New(fake)

	assert.True(t, oracle.IsFresh(96.0, 5.0))
	assert.True(t, oracle.IsFresh(100.0, 5.0))
	assert.False(t, oracle.IsFresh(94.0, 5.0))
}

func TestOracle_CheckFresh(t *testing.T) {
	fake := NewFake(10.0)
	oracle := New(fake)

	require.NoError(t, oracle.CheckFresh(8.0, 5.0))

	fake.Advance(10.0)
	err := oracle.CheckFresh(8.0, 5.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrStaleSample))
}

func TestFake_SetAndAdvance(t *testing.T) {
	fake := NewFake(0)
	fake.Advance(2.5)
	assert.Equal(t, 2.5, fake.NowS())

	fake.Set(42)
	assert.Equal(t, 42.0, fake.NowS())
}
