package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chaos-io/img2GLB/config"
	"github.com/chaos-io/img2GLB/engine"
	"github.com/chaos-io/img2GLB/model"
	"github.com/chaos-io/img2GLB/preprocess"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingAdapter struct{}

func (failingAdapter) Name() string { return "failing" }

func (failingAdapter) GenerateSingleObject(context.Context, *image.NRGBA, *image.Gray, string) (*model.Result, error) {
	return nil, errors.New("reconstruction blew up")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SAM3D: config.SAM3DConfig{Tag: "hf", Adapter: "relief", AppRoot: t.TempDir()},
		Dirs: config.DirsConfig{
			Upload: t.TempDir(),
			Output: t.TempDir(),
		},
		Inference: config.InferenceConfig{SceneExt: "glb"},
	}
}

func newRouter(t *testing.T, cfg *config.Config, adapter model.Adapter) (*gin.Engine, *engine.Engine) {
	t.Helper()

	eng, err := engine.New(cfg, preprocess.NewPreprocessor(nil), zap.NewNop())
	require.NoError(t, err)
	if adapter != nil {
		eng.AdapterFactory = func() (model.Adapter, error) { return adapter, nil }
	}

	r := gin.New()
	ih := NewInferenceHandler(cfg, eng, nil, zap.NewNop())
	hh := NewHealthHandler(eng)
	r.POST("/api/inference", ih.Inference)
	r.GET("/health", hh.Health)
	r.Static("/outputs", cfg.Dirs.Output)
	return r, eng
}

// multipartUpload 手工拼 part header，让 Content-Type 可控
func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func testPhotoPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for y := 12; y < 36; y++ {
		for x := 12; x < 36; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 190, G: 140, B: 90, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestInference_Success(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newRouter(t, cfg, nil) // relief 适配器全本地跑通

	body, contentType := multipartUpload(t, "photo.png", "image/png", testPhotoPNG(t))
	req := httptest.NewRequest("POST", "/api/inference", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp InferenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "/outputs/photo.glb", resp.DownloadURL)
	assert.GreaterOrEqual(t, resp.InferenceTime, 0.0)

	// 产物真实存在且可以通过静态路由下载
	assert.FileExists(t, cfg.Dirs.Output+"/photo.glb")

	dw := httptest.NewRecorder()
	r.ServeHTTP(dw, httptest.NewRequest("GET", resp.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, dw.Code)
	assert.Equal(t, []byte("glTF"), dw.Body.Bytes()[:4])
}

func TestInference_NonImageRejected(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newRouter(t, cfg, nil)

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("not an image"))
	req := httptest.NewRequest("POST", "/api/inference", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 核心没被调用，上传目录也干净
	entries, err := os.ReadDir(cfg.Dirs.Upload)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInference_MissingFile(t *testing.T) {
	r, _ := newRouter(t, testConfig(t), nil)

	req := httptest.NewRequest("POST", "/api/inference", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInference_ModelFailure(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newRouter(t, cfg, failingAdapter{})

	body, contentType := multipartUpload(t, "photo.png", "image/png", testPhotoPNG(t))
	req := httptest.NewRequest("POST", "/api/inference", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "reconstruction blew up")

	// 失败后上传被清掉，产物目录也没有残留
	uploads, err := os.ReadDir(cfg.Dirs.Upload)
	require.NoError(t, err)
	assert.Empty(t, uploads)

	outputs, err := os.ReadDir(cfg.Dirs.Output)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestHealth_Transitions(t *testing.T) {
	cfg := testConfig(t)
	r, eng := newRouter(t, cfg, nil)

	// 加载前 503
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// 加载成功后 200
	require.NoError(t, eng.LoadModel())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","model":"loaded"}`, w.Body.String())
}

func TestHealth_FailedLoad(t *testing.T) {
	cfg := testConfig(t)
	r, eng := newRouter(t, cfg, nil)
	eng.AdapterFactory = func() (model.Adapter, error) {
		return nil, errors.New("no checkpoint")
	}

	require.Error(t, eng.LoadModel())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
