package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-replay/internal/metrics"
)

func TestNilCollectorStaysNil(t *testing.T) {
	assert.Nil(t, engineMetrics(nil))
	assert.Nil(t, loadMetrics(nil))
	assert.Nil(t, wrapPublisherMetrics(nil))

	c := metrics.NewCollector(0, 1439)
	assert.NotNil(t, engineMetrics(c))
	assert.NotNil(t, wrapPublisherMetrics(c))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "frame", "stats"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.Flags().Lookup("addr"))
	assert.NotNil(t, root.PersistentFlags().Lookup("data-dir"))

	frame, _, err := root.Find([]string{"frame"})
	require.NoError(t, err)
	assert.NotNil(t, frame.Flags().Lookup("at"))
}
