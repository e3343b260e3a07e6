package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/img2GLB/config"
	"github.com/chaos-io/img2GLB/mesh"
	"github.com/chaos-io/img2GLB/model"
	"github.com/chaos-io/img2GLB/preprocess"
)

// State 模型生命周期：Uninitialized → Loading → Ready / Failed。
// Failed 是终态，不自动重试。
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine 推理编排：预处理 → 模型调用 → 结果归一化落盘。
// 进程里只该有一个实例，由 main 构造后注入 handler。
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	pre    *preprocess.Preprocessor

	// mu 串行化整个 Process：模型不保证可重入，并发请求排队
	mu sync.Mutex

	stateMu sync.Mutex
	state   State
	loadErr error
	adapter model.Adapter

	// AdapterFactory 替换默认的配置解析构造，测试注入假适配器用
	AdapterFactory func() (model.Adapter, error)
}

func New(cfg *config.Config, pre *preprocess.Preprocessor, logger *zap.Logger) (*Engine, error) {
	if err := os.MkdirAll(cfg.Dirs.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		pre:    pre,
	}, nil
}

func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// LoadModel 构造模型适配器，幂等：
// Ready 时是 no-op；Failed 粘住首次失败原因，每次调用都原样报错。
func (e *Engine) LoadModel() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	switch e.state {
	case Ready:
		return nil
	case Failed:
		return fmt.Errorf("%w: %v", ErrModelInit, e.loadErr)
	}

	e.state = Loading
	e.logger.Info("loading reconstruction model", zap.String("adapter", e.cfg.SAM3D.Adapter))

	factory := e.AdapterFactory
	if factory == nil {
		factory = e.buildAdapter
	}

	adapter, err := factory()
	if err != nil {
		e.state = Failed
		e.loadErr = err
		e.logger.Error("model load failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrModelInit, err)
	}

	e.adapter = adapter
	e.state = Ready
	e.logger.Info("reconstruction model ready", zap.String("adapter", adapter.Name()))
	return nil
}

func (e *Engine) buildAdapter() (model.Adapter, error) {
	switch e.cfg.SAM3D.Adapter {
	case "relief":
		return model.NewRelief(), nil
	case "", "sam3d":
		configPath := e.resolveConfigPath()
		return model.NewSAM3D(configPath)
	default:
		return nil, fmt.Errorf("unknown model adapter %q", e.cfg.SAM3D.Adapter)
	}
}

// resolveConfigPath 配置定位的回退链：
// 显式 SAM3D_CONFIG → <模型仓库>/checkpoints/<tag>/pipeline.yaml →
// <APP_ROOT>/checkpoints/<tag>/pipeline.yaml
func (e *Engine) resolveConfigPath() string {
	if e.cfg.SAM3D.ConfigPath != "" {
		return e.cfg.SAM3D.ConfigPath
	}

	tag := e.cfg.SAM3D.Tag
	if repo := e.resolveRepo(); repo != "" {
		return filepath.Join(repo, "checkpoints", tag, "pipeline.yaml")
	}
	return filepath.Join(e.cfg.SAM3D.AppRoot, "checkpoints", tag, "pipeline.yaml")
}

// resolveRepo 按候选顺序探测 sam-3d-objects 仓库目录
func (e *Engine) resolveRepo() string {
	candidates := []string{
		e.cfg.SAM3D.Repo,
		filepath.Join(filepath.Dir(e.cfg.SAM3D.AppRoot), "sam-3d-objects"),
		filepath.Join(".", "sam-3d-objects"),
		"/workspace/sam-3d-objects",
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate
			}
			return abs
		}
	}
	return ""
}

// JobID 取文件名第一个 '.' 之前的部分。
// 同名上传会覆盖之前的产物，这是有意保留的行为，不在这里兜底。
func JobID(imagePath string) string {
	base := filepath.Base(imagePath)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// OutputPath 产物路径对同一个 jobID 是确定的
func (e *Engine) OutputPath(jobID string) string {
	return filepath.Join(e.cfg.Dirs.Output, jobID+"."+e.cfg.Inference.SceneExt)
}

// Process 整条推理管线，返回场景文件路径。
// 全程持有 mu，一次只跑一个 job；只有确认文件落盘才算成功。
func (e *Engine) Process(ctx context.Context, imagePath string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobID := JobID(imagePath)

	// 唯一允许的隐式状态转换：未加载就顺手加载
	if err := e.LoadModel(); err != nil {
		return "", e.fail(jobID, err)
	}

	start := time.Now()
	e.logger.Info("processing job", zap.String("job_id", jobID), zap.String("image", imagePath))

	rgb, mask, err := e.pre.Preprocess(ctx, imagePath)
	if err != nil {
		return "", e.fail(jobID, err)
	}

	outPath := e.OutputPath(jobID)

	// 同 jobID 覆盖旧产物；先删掉，免得归一化把残留文件当成本次结果
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return "", e.fail(jobID, fmt.Errorf("remove stale scene: %w", err))
	}

	cctx := ctx
	if e.cfg.Inference.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.cfg.Inference.Timeout)
		defer cancel()
	}

	result, err := e.adapter.GenerateSingleObject(cctx, rgb, mask, outPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && cctx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w after %v: %v", ErrTimeout, e.cfg.Inference.Timeout, err)
		}
		return "", e.fail(jobID, err)
	}

	if err := e.normalize(result, outPath); err != nil {
		return "", e.fail(jobID, err)
	}

	// 成功响应只能指向真实存在的文件
	if _, err := os.Stat(outPath); err != nil {
		return "", e.fail(jobID, fmt.Errorf("%w: output file missing after normalization: %v", ErrExport, err))
	}

	e.logger.Info("job done",
		zap.String("job_id", jobID),
		zap.String("scene", outPath),
		zap.Duration("took", time.Since(start)))
	return outPath, nil
}

// normalize 把模型的三种返回形态统一成“文件在 outPath”：
//
//	a. 文件已经在了（模型自己写的）→ 完成
//	b. 返回可导出网格 → 导出
//	c. 返回命名网格集合且带约定键 → 导出该项
//	d. 都不满足 → ExportError；dev fallback 打开时写占位 box
func (e *Engine) normalize(result *model.Result, outPath string) error {
	if fileExists(outPath) {
		return nil
	}

	if result != nil {
		switch result.Kind {
		case model.ExportableMesh:
			if result.Mesh != nil {
				return result.Mesh.Export(outPath)
			}
		case model.NamedMeshMap:
			if m, ok := result.Meshes[model.MeshKey]; ok && m != nil {
				return m.Export(outPath)
			}
		}
	}

	if e.cfg.Inference.DevFallback {
		e.logger.Warn("model result not materializable, writing placeholder box (dev fallback)",
			zap.String("scene", outPath))
		box := mesh.Box(1)
		box.Name = "placeholder"
		return box.Export(outPath)
	}

	return fmt.Errorf("%w: model returned no usable scene (adapter %s)", ErrExport, e.adapter.Name())
}

func (e *Engine) fail(jobID string, err error) error {
	ie := &InferenceError{JobID: jobID, Err: err}
	e.logger.Error("inference failed", zap.String("job_id", jobID), zap.Error(err))
	return ie
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
