package metrics

import (
	"context"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/ho/v2"
)

func TestObserverCountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()

	o, err := NewObserver(reg)
	require.NoError(t, err)

	space, err := ho.NewParameterSpace(map[string]ho.ParamDef{
		"x": ho.MinMaxNumeric{Min: 0, Max: 1},
	})
	require.NoError(t, err)

	config := ho.DefaultConfig()
	config.InitialSamples = 5
	config.AcqParams.RandomState = rand.New(rand.NewSource(1))

	a, err := ho.NewExperimentAssistant("metrics", space, config, ho.WithObserver(o))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		c, err := a.NextCandidate(context.Background())
		require.NoError(t, err)

		c.SetResult(1)
		require.NoError(t, a.Update(c, ho.StatusFinished))
	}

	c, err := a.NextCandidate(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Update(c, ho.StatusFinishedInvalid))

	assert.InDelta(t, 3, testutil.ToFloat64(o.proposed.WithLabelValues("metrics", "random")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(o.finished.WithLabelValues("metrics", "finished")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.finished.WithLabelValues("metrics", "finished_invalid")), 0)

	o.ModelFitFailed("metrics")
	assert.InDelta(t, 1, testutil.ToFloat64(o.fitFailures.WithLabelValues("metrics")), 0)
}

func TestNewObserverRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewObserver(reg)
	require.NoError(t, err)

	_, err = NewObserver(reg)
	assert.Error(t, err)
}
