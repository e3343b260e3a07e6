package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/img2GLB/cleanup"
	"github.com/chaos-io/img2GLB/config"
	"github.com/chaos-io/img2GLB/engine"
)

type InferenceResponse struct {
	Status        string  `json:"status"`
	DownloadURL   string  `json:"download_url"`
	InferenceTime float64 `json:"inference_time"`
}

type InferenceHandler struct {
	cfg     *config.Config
	engine  *engine.Engine
	sweeper *cleanup.Sweeper
	logger  *zap.Logger
}

func NewInferenceHandler(cfg *config.Config, eng *engine.Engine, sweeper *cleanup.Sweeper, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		cfg:     cfg,
		engine:  eng,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Inference 接收一张图片，跑完整条管线，返回场景文件下载链接
func (h *InferenceHandler) Inference(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image file provided"})
		return
	}

	// 非图片类型在落盘前就拒掉
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be an image"})
		return
	}

	// 保留原始文件名（jobID 取它的 stem），ksuid 子目录避免上传互相覆盖
	uploadDir := filepath.Join(h.cfg.Dirs.Upload, ksuid.New().String())
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		h.logger.Error("create upload dir", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}
	savePath := filepath.Join(uploadDir, filepath.Base(file.Filename))

	if err := c.SaveUploadedFile(file, savePath); err != nil {
		h.logger.Error("save uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	start := time.Now()
	scenePath, err := h.engine.Process(c.Request.Context(), savePath)
	if err != nil {
		// 失败不留孤儿上传
		h.removeUpload(uploadDir)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	duration := time.Since(start)

	h.logger.Info("inference complete",
		zap.String("scene", scenePath),
		zap.Duration("took", duration))

	if h.sweeper != nil {
		h.sweeper.Async()
	}

	c.JSON(http.StatusOK, InferenceResponse{
		Status:        "success",
		DownloadURL:   "/outputs/" + filepath.Base(scenePath),
		InferenceTime: duration.Seconds(),
	})
}

func (h *InferenceHandler) removeUpload(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		h.logger.Warn("remove failed upload", zap.String("dir", dir), zap.Error(err))
	}
}
