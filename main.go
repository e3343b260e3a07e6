package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chaos-io/img2GLB/cleanup"
	"github.com/chaos-io/img2GLB/config"
	"github.com/chaos-io/img2GLB/engine"
	"github.com/chaos-io/img2GLB/handler"
	"github.com/chaos-io/img2GLB/middleware"
	"github.com/chaos-io/img2GLB/preprocess"
	"github.com/chaos-io/img2GLB/rembg"
	"github.com/chaos-io/img2GLB/util"
)

func main() {
	configPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Server.Mode)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	for _, dir := range []string{cfg.Dirs.Upload, cfg.Dirs.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("create directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// 背景移除：没配 endpoint 就直通（靠输入自带 alpha）
	var remover rembg.Remover = rembg.NewPassthrough()
	if cfg.RemBG.Endpoint != "" {
		remover = rembg.NewBiRefNet(cfg.RemBG.Endpoint, cfg.RemBG.Timeout, logger)
		logger.Info("using BiRefNet background removal", zap.String("endpoint", cfg.RemBG.Endpoint))
	}

	eng, err := engine.New(cfg, preprocess.NewPreprocessor(remover), logger)
	if err != nil {
		logger.Fatal("create engine", zap.Error(err))
	}

	// 预加载模型；失败不退出，让 /health 报不健康
	if err := eng.LoadModel(); err != nil {
		logger.Error("model preload failed, serving unhealthy", zap.Error(err))
	}

	sweeper := cleanup.NewSweeper(
		[]string{cfg.Dirs.Upload, cfg.Dirs.Output},
		cfg.Cleanup.Retention,
		logger,
	)

	c := cron.New()
	if _, err := c.AddFunc(cfg.Cleanup.Schedule, sweeper.Sweep); err != nil {
		logger.Fatal("register cleanup schedule", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.Logger(logger), gin.Recovery())

	ih := handler.NewInferenceHandler(cfg, eng, sweeper, logger)
	hh := handler.NewHealthHandler(eng)

	r.POST("/api/inference", ih.Inference)
	r.GET("/health", hh.Health)
	r.Static("/outputs", cfg.Dirs.Output)

	logger.Info("starting img2GLB server",
		zap.String("port", cfg.Server.Port),
		zap.String("adapter", cfg.SAM3D.Adapter),
		zap.String("output_dir", cfg.Dirs.Output))

	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
