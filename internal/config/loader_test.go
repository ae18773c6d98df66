package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 150, cfg.RenderDPI)
	assert.Equal(t, 1152, cfg.EmbeddingDim)
	assert.Equal(t, 100, cfg.Stage1TopK)
	assert.Equal(t, 0.3, cfg.TextBoostWeight)
	assert.Equal(t, "flat", cfg.SingleVector.Backend)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DOODLEDOC_STAGE1_TOP_K", "250")
	t.Setenv("DOODLEDOC_ENABLE_TEXT_BOOST", "false")
	t.Setenv("DOODLEDOC_SINGLE_VECTOR_BACKEND", "qdrant")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Stage1TopK)
	assert.False(t, cfg.EnableTextBoost)
	assert.Equal(t, "qdrant", cfg.SingleVector.Backend)
}

func TestLoadFromYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("render_dpi: 300\ndata_dir: /tmp/doodledoc\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.RenderDPI)
	assert.Equal(t, "/tmp/doodledoc", cfg.DataDir)
}
