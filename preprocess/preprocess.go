package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/chaos-io/img2GLB/rembg"
	"github.com/chaos-io/img2GLB/util"
)

var (
	ErrDecode            = errors.New("decode image")
	ErrBackgroundRemoval = errors.New("background removal")
	ErrNoForeground      = errors.New("no foreground detected")
)

// maxSide 预处理后最长边不超过 1024
const maxSide = 1024

type Preprocessor struct {
	RemBG rembg.Remover
}

func NewPreprocessor(remover rembg.Remover) *Preprocessor {
	if remover == nil {
		remover = rembg.NewPassthrough()
	}
	return &Preprocessor{RemBG: remover}
}

// Preprocess 把输入图片变成 (RGB, 二值 mask)：
//
//	解码为 NRGBA
//	缩放（最长边 <= 1024）
//	没有有效 alpha 时走背景移除
//	alpha > 0 的像素记为前景 255，其余为 0，背景 RGB 归零
//
// 返回的 RGB 和 mask 尺寸一致，过程不落盘。
func (p *Preprocessor) Preprocess(ctx context.Context, imagePath string) (*image.NRGBA, *image.Gray, error) {
	img, err := util.OpenImage(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrDecode, imagePath, err)
	}

	src := toNRGBA(img)
	src = resizeWithinMax(src, maxSide)

	// 已经带透明通道的图认为抠过图，跳过 rembg
	if !hasUsefulAlpha(src) {
		removed, err := p.RemBG.Remove(ctx, src)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackgroundRemoval, err)
		}
		src = toNRGBA(removed)
	}

	rgb, mask := splitMask(src)
	return rgb, mask, nil
}

// splitMask 拆出 RGB 投影和二值 mask（alpha > 0 → 255）。
// 背景像素 RGB 归零，推理服务看到的是黑底前景
func splitMask(src *image.NRGBA) (*image.NRGBA, *image.Gray) {
	b := src.Bounds()
	rgb := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	mask := image.NewGray(rgb.Bounds())

	for y := 0; y < b.Dy(); y++ {
		srcRow := (y+b.Min.Y)*src.Stride + b.Min.X*4
		dstRow := y * rgb.Stride
		maskRow := y * mask.Stride
		for x := 0; x < b.Dx(); x++ {
			si := srcRow + x*4
			di := dstRow + x*4

			if src.Pix[si+3] > 0 {
				mask.Pix[maskRow+x] = 255
				rgb.Pix[di] = src.Pix[si]
				rgb.Pix[di+1] = src.Pix[si+1]
				rgb.Pix[di+2] = src.Pix[si+2]
			}
			rgb.Pix[di+3] = 255
		}
	}
	return rgb, mask
}

// ApplyMask 把二值 mask 写回 alpha 通道，供本地浮雕路径复用裁剪逻辑
func ApplyMask(rgb *image.NRGBA, mask *image.Gray) *image.NRGBA {
	b := rgb.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	copy(out.Pix, rgb.Pix)

	for y := 0; y < b.Dy(); y++ {
		row := y * out.Stride
		maskRow := y * mask.Stride
		for x := 0; x < b.Dx(); x++ {
			out.Pix[row+x*4+3] = mask.Pix[maskRow+x]
		}
	}
	return out
}

// SubjectCrop 主体裁剪：
//
//	用 alpha bounding box 找主体
//	正方形中心裁剪
//	预乘 alpha，背景归黑
func SubjectCrop(src *image.NRGBA) (*image.NRGBA, error) {
	bbox, err := alphaBBox(src, 0.8)
	if err != nil {
		return nil, err
	}

	out := cropSquare(src, bbox)
	premultiply(out)
	return out, nil
}

// alphaBBox 从 alpha 通道计算主体 bounding box
// 把 alpha > threshold * 255 的像素当作主体，找所有主体像素的坐标
func alphaBBox(img *image.NRGBA, threshold float64) (image.Rectangle, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	th := uint8(threshold * 255)

	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			a := img.Pix[row+x*4+3]
			if a > th {
				found = true
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if !found {
		return image.Rectangle{}, ErrNoForeground
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// premultiply 预乘 Alpha，RGB × alpha，得到 premultiplied alpha
// 例如：红色半透明 (1,0,0,0.5) → (0.5,0,0)，背景自然变黑
// 目的：去除白边 / 透明边缘污染，保证 encoder 看到的是干净物体
func premultiply(img *image.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		a := float64(img.Pix[i+3]) / 255.0
		img.Pix[i] = uint8(float64(img.Pix[i]) * a)
		img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * a)
		img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * a)
	}
}
