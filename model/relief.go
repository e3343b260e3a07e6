package model

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/chaos-io/img2GLB/depth"
	"github.com/chaos-io/img2GLB/mesh"
	"github.com/chaos-io/img2GLB/preprocess"
)

// Relief 本地适配器：不依赖外部推理服务，把主体转成浮雕实体。
// 开发和离线环境用，质量自然不如真模型。
type Relief struct {
	ModelWidth     float64
	ModelThickness float64
	BaseThickness  float64
	DetailLevel    float64
}

func NewRelief() *Relief {
	return &Relief{
		ModelWidth:     50,
		ModelThickness: 5,
		BaseThickness:  2,
		DetailLevel:    1,
	}
}

func (r *Relief) Name() string { return "relief" }

// GenerateSingleObject 主体裁剪 → 高度场 → 封闭网格。
// 不直接落盘，返回 ExportableMesh 交给编排层导出。
func (r *Relief) GenerateSingleObject(ctx context.Context, rgb *image.NRGBA, mask *image.Gray, outputPathHint string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	combined := preprocess.ApplyMask(rgb, mask)
	subject, err := preprocess.SubjectCrop(combined)
	if err != nil {
		return nil, fmt.Errorf("subject crop: %w", err)
	}

	hf := depth.Heightfield(subject, r.DetailLevel, false)

	m := mesh.FromHeightfield(hf, r.ModelWidth, r.ModelThickness, r.BaseThickness)
	base := filepath.Base(outputPathHint)
	m.Name = strings.TrimSuffix(base, filepath.Ext(base))

	return &Result{Kind: ExportableMesh, Mesh: m}, nil
}
