package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "hf", cfg.SAM3D.Tag)
	assert.Equal(t, "sam3d", cfg.SAM3D.Adapter)
	assert.Equal(t, "/tmp/uploads", cfg.Dirs.Upload)
	assert.Equal(t, "glb", cfg.Inference.SceneExt)
	assert.False(t, cfg.Inference.DevFallback)
	assert.Equal(t, time.Hour, cfg.Cleanup.Retention)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SAM3D_TAG", "dev")
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("INFERENCE_DEV_FALLBACK", "true")
	t.Setenv("CLEANUP_RETENTION", "30m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.SAM3D.Tag)
	assert.Equal(t, "/data/out", cfg.Dirs.Output)
	assert.True(t, cfg.Inference.DevFallback)
	assert.Equal(t, 30*time.Minute, cfg.Cleanup.Retention)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
server:
  port: "9090"
sam3d:
  adapter: relief
inference:
  scene_ext: stl
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "relief", cfg.SAM3D.Adapter)
	assert.Equal(t, "stl", cfg.Inference.SceneExt)
	// 未覆盖的仍取默认值
	assert.Equal(t, "hf", cfg.SAM3D.Tag)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/no/such/config.yaml")
	require.Error(t, err)
}
