package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/img2GLB/engine"
)

type HealthHandler struct {
	engine *engine.Engine
}

func NewHealthHandler(eng *engine.Engine) *HealthHandler {
	return &HealthHandler{engine: eng}
}

// Health 只有模型 Ready 才算健康；加载前和加载失败后都是 503
func (h *HealthHandler) Health(c *gin.Context) {
	if h.engine.State() != engine.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not initialized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "model": "loaded"})
}
