package ho

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateEqualityIgnoresMetadata(t *testing.T) {
	a := NewCandidate(map[string]any{"x": 1.0, "kind": "a"})
	b := NewCandidate(map[string]any{"kind": "a", "x": 1.0})

	a.SetResult(1)
	b.SetResult(2)
	b.Cost = 10
	b.Valid = false

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	c := NewCandidate(map[string]any{"x": 2.0, "kind": "a"})
	assert.False(t, a.Equal(c))

	// Different Go types are different points.
	d := NewCandidate(map[string]any{"x": 1, "kind": "a"})
	assert.False(t, a.Equal(d))

	var nilCandidate *Candidate
	assert.False(t, a.Equal(nilCandidate))
	assert.True(t, nilCandidate.Equal(nil))
}

func TestCandidateLess(t *testing.T) {
	a := NewCandidate(map[string]any{"x": 1.0})
	b := NewCandidate(map[string]any{"x": 2.0})

	_, err := a.Less(b)
	assert.ErrorIs(t, err, ErrInvalidComparison)

	a.SetResult(1)
	b.SetResult(2)

	less, err := a.Less(b)
	require.NoError(t, err)
	assert.True(t, less)

	less, err = b.Less(a)
	require.NoError(t, err)
	assert.False(t, less)

	_, err = a.Less(3.0)
	assert.ErrorIs(t, err, ErrInvalidComparison)
}

func TestCandidateCloneIsDeep(t *testing.T) {
	a := NewCandidate(map[string]any{"x": 1.0})
	a.SetResult(3)
	a.ParamsUsed = []bool{true}
	a.WorkerInformation["host"] = "w1"

	b := a.Clone()
	b.Params["x"] = 2.0
	*b.Result = 4
	b.ParamsUsed[0] = false
	b.WorkerInformation["host"] = "w2"

	assert.Equal(t, 1.0, a.Params["x"])
	assert.Equal(t, 3.0, *a.Result)
	assert.True(t, a.ParamsUsed[0])
	assert.Equal(t, "w1", a.WorkerInformation["host"])
}

func TestCandidateString(t *testing.T) {
	c := NewCandidate(map[string]any{"x": 1.5})
	assert.Equal(t, "params: x=float64(1.5) result: <pending>", c.String())

	c.SetResult(2)
	assert.Equal(t, "params: x=float64(1.5) result: 2", c.String())
}
