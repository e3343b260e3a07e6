package model

import (
	"context"
	"image"

	"github.com/chaos-io/img2GLB/mesh"
)

// Kind 标记模型返回值的形态，编排层按它归一化落盘
type Kind int

const (
	// WroteFile 模型自己把场景文件写到了 Path
	WroteFile Kind = iota + 1
	// ExportableMesh 返回了可导出的网格
	ExportableMesh
	// NamedMeshMap 返回了按名字索引的网格集合
	NamedMeshMap
)

// MeshKey NamedMeshMap 里约定的主网格键
const MeshKey = "mesh"

type Result struct {
	Kind   Kind
	Path   string
	Mesh   *mesh.Mesh
	Meshes map[string]*mesh.Mesh
}

// Adapter 重建模型的固定签名边界。不同模型版本各包一个 Adapter，
// 启动时选定，调用处不再做能力探测。不保证可重入，由调用方串行化。
type Adapter interface {
	Name() string
	// GenerateSingleObject 用 (RGB, mask) 重建单个物体。
	// outputPathHint 是期望的落盘位置；实现可以直接写（返回 WroteFile），
	// 也可以忽略它返回网格，由编排层导出。
	GenerateSingleObject(ctx context.Context, rgb *image.NRGBA, mask *image.Gray, outputPathHint string) (*Result, error)
}
