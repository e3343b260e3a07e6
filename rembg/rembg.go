package rembg

import (
	"context"
	"image"
)

// Remover 背景移除能力：输入原图，输出带 alpha 的抠图结果
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Passthrough 不做任何处理，直接返回原图（未配置 rembg 服务时使用）
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Remove(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
}
