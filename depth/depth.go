package depth

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	base   = 320.0 // XY 分辨率（影响网格面数）
	levels = 36    // Z 台阶数（影响高度层次）
)

// Heightfield 从图片生成高度场：
// 线性灰度 → 缩放 → 轻度高斯模糊 → smoothstep → Z 量化
func Heightfield(img image.Image, detailLevel float64, invert bool) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// XY 分辨率：温和降级
	target := math.Max(1, base*detailLevel)
	ratio := math.Min(target/float64(w), target/float64(h))
	if ratio > 1 {
		ratio = 1
	}
	nw, nh := max(1, int(float64(w)*ratio)), max(1, int(float64(h)*ratio))

	// 线性灰度
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
			gray.Pix[y*gray.Stride+x] = uint8((299*r + 587*g + 114*bb) / 1000 >> 8)
		}
	}

	// 缩放
	resized := image.NewGray(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), gray, gray.Bounds(), draw.Over, nil)

	// 轻度高斯模糊（仅消噪）
	blur := image.NewGray(resized.Bounds())
	k := [3][3]int{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}
	for y := 1; y < nh-1; y++ {
		for x := 1; x < nw-1; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += int(resized.Pix[(y+ky)*resized.Stride+x+kx]) * k[ky+1][kx+1]
				}
			}
			blur.Pix[y*blur.Stride+x] = uint8(sum >> 4)
		}
	}

	// 轻 S 曲线（保形体）
	var lut [256]uint8
	for i := 0; i < 256; i++ {
		x := float64(i) / 255.0
		y := x * x * (3 - 2*x) // smoothstep
		lut[i] = uint8(y*255 + 0.5)
	}

	// Z 量化（细节保留版）
	step := uint8(256 / levels)
	out := image.NewGray(blur.Bounds())
	for i, v := range blur.Pix {
		v = lut[v]
		q := (v / step) * step
		if invert {
			q = 255 - q
		}
		out.Pix[i] = q
	}

	return out
}
