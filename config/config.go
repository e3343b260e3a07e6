package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SAM3D     SAM3DConfig
	Dirs      DirsConfig
	Inference InferenceConfig
	RemBG     RemBGConfig
	Cleanup   CleanupConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type SAM3DConfig struct {
	// Repo 外部模型仓库根目录（sam-3d-objects），空则按候选路径探测
	Repo string
	// ConfigPath 显式指定 pipeline.yaml，优先级最高
	ConfigPath string
	Tag        string
	// Adapter 模型适配器：sam3d（HTTP 推理服务）或 relief（本地浮雕）
	Adapter string
	// AppRoot 本地默认根目录，兜底 checkpoints 路径用
	AppRoot string
}

type DirsConfig struct {
	Upload string
	Output string
}

type InferenceConfig struct {
	Timeout time.Duration
	// DevFallback 打开后，模型结果无法落盘时写一个占位 box，仅限开发环境
	DevFallback bool
	SceneExt    string
}

type RemBGConfig struct {
	// Endpoint ComfyUI/BiRefNet 服务地址，空则不做背景移除
	Endpoint string
	Timeout  time.Duration
}

type CleanupConfig struct {
	Retention time.Duration
	Schedule  string
}

// Load 读取配置：默认值 < 可选 YAML 文件 < 环境变量，启动时读一次
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvs(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// 环境变量进来都是字符串，走类型化 getter 而不是 Unmarshal
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Mode: v.GetString("server.mode"),
		},
		SAM3D: SAM3DConfig{
			Repo:       v.GetString("sam3d.repo"),
			ConfigPath: v.GetString("sam3d.config_path"),
			Tag:        v.GetString("sam3d.tag"),
			Adapter:    v.GetString("sam3d.adapter"),
			AppRoot:    v.GetString("sam3d.app_root"),
		},
		Dirs: DirsConfig{
			Upload: v.GetString("dirs.upload"),
			Output: v.GetString("dirs.output"),
		},
		Inference: InferenceConfig{
			Timeout:     v.GetDuration("inference.timeout"),
			DevFallback: v.GetBool("inference.dev_fallback"),
			SceneExt:    v.GetString("inference.scene_ext"),
		},
		RemBG: RemBGConfig{
			Endpoint: v.GetString("rembg.endpoint"),
			Timeout:  v.GetDuration("rembg.timeout"),
		},
		Cleanup: CleanupConfig{
			Retention: v.GetDuration("cleanup.retention"),
			Schedule:  v.GetString("cleanup.schedule"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("sam3d.repo", "")
	v.SetDefault("sam3d.config_path", "")
	v.SetDefault("sam3d.tag", "hf")
	v.SetDefault("sam3d.adapter", "sam3d")
	v.SetDefault("sam3d.app_root", ".")

	v.SetDefault("dirs.upload", "/tmp/uploads")
	v.SetDefault("dirs.output", "./outputs")

	v.SetDefault("inference.timeout", 10*time.Minute)
	v.SetDefault("inference.dev_fallback", false)
	v.SetDefault("inference.scene_ext", "glb")

	v.SetDefault("rembg.endpoint", "")
	v.SetDefault("rembg.timeout", 2*time.Minute)

	v.SetDefault("cleanup.retention", time.Hour)
	v.SetDefault("cleanup.schedule", "@every 10m")
}

// bindEnvs 环境变量沿用原部署的命名（SAM3D_REPO 等）
func bindEnvs(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")

	_ = v.BindEnv("sam3d.repo", "SAM3D_REPO")
	_ = v.BindEnv("sam3d.config_path", "SAM3D_CONFIG")
	_ = v.BindEnv("sam3d.tag", "SAM3D_TAG")
	_ = v.BindEnv("sam3d.adapter", "SAM3D_ADAPTER")
	_ = v.BindEnv("sam3d.app_root", "APP_ROOT")

	_ = v.BindEnv("dirs.upload", "UPLOAD_DIR")
	_ = v.BindEnv("dirs.output", "OUTPUT_DIR")

	_ = v.BindEnv("inference.timeout", "INFERENCE_TIMEOUT")
	_ = v.BindEnv("inference.dev_fallback", "INFERENCE_DEV_FALLBACK")
	_ = v.BindEnv("inference.scene_ext", "SCENE_EXT")

	_ = v.BindEnv("rembg.endpoint", "REMBG_ENDPOINT")
	_ = v.BindEnv("rembg.timeout", "REMBG_TIMEOUT")

	_ = v.BindEnv("cleanup.retention", "CLEANUP_RETENTION")
	_ = v.BindEnv("cleanup.schedule", "CLEANUP_SCHEDULE")
}
