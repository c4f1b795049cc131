package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.True(t, c.IsDefault())
	assert.Equal(t, ExplicitOff, c.GetExplicit())
	assert.Equal(t, ParallelCollections, c.GetParallel())
	assert.Equal(t, AlgorithmConservative, c.GetParallelAlgorithm())
	assert.Equal(t, MethodDisplayClassAndMethod, c.GetMethodDisplay())
	assert.Equal(t, "TestResults", c.GetResultsDirectory())
	assert.False(t, c.GetStopOnFail())
	assert.False(t, c.GetShowLiveOutput())
}

func TestConfig_GetMaxThreads(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 8, c.GetMaxThreads(8))
	assert.Equal(t, 1, c.GetMaxThreads(0))

	c.MaxThreads = IntPtr(3)
	assert.Equal(t, 3, c.GetMaxThreads(8))

	c.MaxThreads = IntPtr(UnlimitedThreads)
	assert.Equal(t, UnlimitedThreads, c.GetMaxThreads(8))
}

func TestConfig_SortedOutputs(t *testing.T) {
	c := &Config{Outputs: map[string]string{"xunit": "b.xml", "junit": "a.xml", "html": "c.html"}}

	out := c.SortedOutputs()
	require.Len(t, out, 3)
	assert.Equal(t, "html", out[0].Kind)
	assert.Equal(t, "junit", out[1].Kind)
	assert.Equal(t, "xunit", out[2].Kind)
}

func TestLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testhost.config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"maxThreads": 2,
		"stopOnFail": true,
		"filters": {"excludeTraits": {"category": ["slow"]}},
		"reports": {"junit": "out.xml"}
	}`), 0644))

	c, err := FindAndLoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, c.GetMaxThreads(8))
	assert.True(t, c.GetStopOnFail())
	assert.Equal(t, []string{"slow"}, c.Filters.ExcludeTraits["category"])
	assert.Equal(t, "out.xml", c.Reports["junit"])
	assert.Equal(t, ParallelCollections, c.GetParallel())
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testhost.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallel: none\nseed: 42\nnoLogo: true\n"), 0644))

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ParallelNone, c.GetParallel())
	require.NotNil(t, c.Seed)
	assert.Equal(t, 42, *c.Seed)
	assert.True(t, c.GetNoLogo())
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown property", `{"bail": true}`},
		{"bad enum", `{"parallel": "sometimes"}`},
		{"seed out of range", `{"seed": -1}`},
		{"unknown report kind", `{"reports": {"pdf": ""}}`},
		{"bad notify policy", `{"notify": {"on": "sometimes"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".testhost.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))

			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_Notify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testhost.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notify:\n  on: always\n  slack: https://hooks.example.com/T1\n"), 0644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, c.Notify)
	assert.Equal(t, NotifyAlways, c.Notify.GetOn())
	assert.Equal(t, "https://hooks.example.com/T1", c.Notify.Slack)
	assert.False(t, c.IsDefault())

	clone := c.Clone()
	clone.Notify.Slack = "changed"
	assert.Equal(t, "https://hooks.example.com/T1", c.Notify.Slack)

	assert.Equal(t, NotifyFailure, (&NotifyConfig{}).GetOn())
}

func TestFindAndLoadConfig_NoFile(t *testing.T) {
	c, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, c.IsDefault())
}
