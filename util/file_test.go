package util

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.SetNRGBA(3, 3, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	return img
}

func TestSavePNG_OpenImage_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, SavePNG(path, testImage()))

	got, err := OpenImage(path)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Bounds().Dx())
	assert.Equal(t, 8, got.Bounds().Dy())

	r, g, b, a := got.At(3, 3).RGBA()
	assert.EqualValues(t, 200, r>>8)
	assert.EqualValues(t, 100, g>>8)
	assert.EqualValues(t, 50, b>>8)
	assert.EqualValues(t, 255, a>>8)
}

func TestOpenImage_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := OpenImage(path)
	require.Error(t, err)
}

func TestDownloadImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, png.Encode(w, testImage()))
	}))
	defer server.Close()

	img, err := DownloadImage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestDownloadImage_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := DownloadImage(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
