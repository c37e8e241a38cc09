package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	settings := &Settings{}
	settings.Main.Name = "SawCall-Go"
	settings.Main.Facility = "north-enclosure"
	settings.Scheduler.PollInterval = 10
	settings.Scheduler.RetryBatchSize = 5
	settings.Processing.SpeciesPrefixes = []string{"amur_leopard"}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = "sawcall.db"

	require.NoError(t, SaveYAMLConfig(path, settings))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, settings.Main.Name, loaded.Main.Name)
	assert.Equal(t, settings.Main.Facility, loaded.Main.Facility)
	assert.Equal(t, settings.Scheduler.PollInterval, loaded.Scheduler.PollInterval)
	assert.Equal(t, settings.Processing.SpeciesPrefixes, loaded.Processing.SpeciesPrefixes)
	assert.True(t, loaded.Output.SQLite.Enabled)

	// No temporary file is left behind by the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.yaml", entries[0].Name())
}
