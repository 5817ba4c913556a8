package clienv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTraceID_HasExpectedPrefixAndLength(t *testing.T) {
	id, err := NewTraceID()
	require.NoError(t, err)
	require.Len(t, id, len("trc_")+12)
	require.Equal(t, "trc_", id[:4])
}

func TestNewTraceID_ProducesDistinctValues(t *testing.T) {
	a, err := NewTraceID()
	require.NoError(t, err)
	b, err := NewTraceID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestEmit_SucceedsOnNilAndNonNilError(t *testing.T) {
	require.NoError(t, Emit(map[string]string{"k": "v"}, nil))
	require.NoError(t, Emit(nil, errors.New("boom")))
}
