package model

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipelineYAML(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := "endpoint: " + endpoint + "\ntimeout: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testInputs() (*image.NRGBA, *image.Gray) {
	rgb := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	mask := image.NewGray(rgb.Bounds())
	for y := 4; y < 12; y++ {
		for x := 4; x < 12; x++ {
			mask.Pix[y*mask.Stride+x] = 255
		}
	}
	return rgb, mask
}

func TestNewSAM3D_ConfigErrors(t *testing.T) {
	_, err := NewSAM3D("/no/such/pipeline.yaml")
	require.Error(t, err)

	// 缺 endpoint
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tag: hf\n"), 0o644))
	_, err = NewSAM3D(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing endpoint")
}

func TestSAM3D_GenerateSingleObject(t *testing.T) {
	sceneBytes := []byte("glTF\x02\x00\x00\x00fake")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))

		_, _, err := r.FormFile("image")
		require.NoError(t, err)
		_, _, err = r.FormFile("mask")
		require.NoError(t, err)
		assert.Equal(t, "photo.glb", r.FormValue("filename"))

		_, _ = w.Write(sceneBytes)
	}))
	defer server.Close()

	adapter, err := NewSAM3D(writePipelineYAML(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "sam3d", adapter.Name())

	rgb, mask := testInputs()
	outPath := filepath.Join(t.TempDir(), "photo.glb")

	result, err := adapter.GenerateSingleObject(context.Background(), rgb, mask, outPath)
	require.NoError(t, err)
	assert.Equal(t, WroteFile, result.Kind)
	assert.Equal(t, outPath, result.Path)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, sceneBytes, got)
}

func TestSAM3D_GenerateSingleObject_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter, err := NewSAM3D(writePipelineYAML(t, server.URL))
	require.NoError(t, err)

	rgb, mask := testInputs()
	outPath := filepath.Join(t.TempDir(), "photo.glb")

	_, err = adapter.GenerateSingleObject(context.Background(), rgb, mask, outPath)
	require.Error(t, err)
	assert.NoFileExists(t, outPath)
}

func TestRelief_GenerateSingleObject(t *testing.T) {
	adapter := NewRelief()
	assert.Equal(t, "relief", adapter.Name())

	rgb, mask := testInputs()
	// 给主体一点颜色，免得高度场全黑
	for y := 4; y < 12; y++ {
		for x := 4; x < 12; x++ {
			i := y*rgb.Stride + x*4
			rgb.Pix[i], rgb.Pix[i+1], rgb.Pix[i+2], rgb.Pix[i+3] = 200, 180, 160, 255
		}
	}

	result, err := adapter.GenerateSingleObject(context.Background(), rgb, mask, "/outputs/photo.glb")
	require.NoError(t, err)
	assert.Equal(t, ExportableMesh, result.Kind)
	require.NotNil(t, result.Mesh)
	assert.Equal(t, "photo", result.Mesh.Name)
	assert.NotEmpty(t, result.Mesh.Triangles)
}

func TestRelief_GenerateSingleObject_EmptyMask(t *testing.T) {
	adapter := NewRelief()
	rgb := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	mask := image.NewGray(rgb.Bounds()) // 全背景

	_, err := adapter.GenerateSingleObject(context.Background(), rgb, mask, "/outputs/photo.glb")
	require.Error(t, err)
}
