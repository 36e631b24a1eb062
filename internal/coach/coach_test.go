package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	return NewEngine(Config{TrunkDeviationDeg: 16})
}

func TestDepthCueTakesPrecedence(t *testing.T) {
	t.Parallel()

	e := testEngine()
	// Shallow and leaning: only the depth cue fires.
	cue := e.Evaluate(Input{DepthAchieved: false, TrunkDeltaDeg: 30})
	require.NotNil(t, cue)
	assert.Equal(t, KindDepth, cue.Kind)
	assert.Equal(t, "Go a little deeper", cue.Message)
}

func TestTrunkCueWhenDepthAchieved(t *testing.T) {
	t.Parallel()

	e := testEngine()
	cue := e.Evaluate(Input{DepthAchieved: true, TrunkDeltaDeg: 20})
	require.NotNil(t, cue)
	assert.Equal(t, KindTrunk, cue.Kind)
}

func TestNoCueOnCleanRep(t *testing.T) {
	t.Parallel()

	e := testEngine()
	assert.Nil(t, e.Evaluate(Input{DepthAchieved: true, TrunkDeltaDeg: 5}))
	// Deviation exactly at the threshold does not fire.
	assert.Nil(t, e.Evaluate(Input{DepthAchieved: true, TrunkDeltaDeg: 16}))
}

func TestPerRepSuppression(t *testing.T) {
	t.Parallel()

	e := testEngine()
	require.NotNil(t, e.Evaluate(Input{DepthAchieved: false}))
	// Same kind within the same rep stays silent.
	assert.Nil(t, e.Evaluate(Input{DepthAchieved: false}))

	// A different kind is still allowed within the rep.
	cue := e.Evaluate(Input{DepthAchieved: true, TrunkDeltaDeg: 25})
	require.NotNil(t, cue)
	assert.Equal(t, KindTrunk, cue.Kind)
	assert.Nil(t, e.Evaluate(Input{DepthAchieved: true, TrunkDeltaDeg: 25}))
}

func TestResetRepClearsMemory(t *testing.T) {
	t.Parallel()

	e := testEngine()
	require.NotNil(t, e.Evaluate(Input{DepthAchieved: false}))
	assert.Nil(t, e.Evaluate(Input{DepthAchieved: false}))

	e.ResetRep()
	assert.NotNil(t, e.Evaluate(Input{DepthAchieved: false}))
}
