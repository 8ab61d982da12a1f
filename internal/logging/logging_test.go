package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, flush, err := New("debug", true)
	require.NoError(t, err)
	defer flush()

	assert.True(t, log.V(1).Enabled())
	log.Info("logger ready", "component", "test")
}

func TestNewInfoLevelHidesDebug(t *testing.T) {
	log, flush, err := New("info", false)
	require.NoError(t, err)
	defer flush()

	assert.False(t, log.V(1).Enabled())
}

func TestNewInvalidLevel(t *testing.T) {
	_, _, err := New("loud", false)
	assert.Error(t, err)
}
