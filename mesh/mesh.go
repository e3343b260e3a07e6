package mesh

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

type Vec3 [3]float64

type Triangle struct {
	V1, V2, V3 Vec3
}

// Normal 面法线（右手系，未闭合时返回零向量归一失败前的零值）
func (t Triangle) Normal() Vec3 {
	a := Vec3{t.V2[0] - t.V1[0], t.V2[1] - t.V1[1], t.V2[2] - t.V1[2]}
	b := Vec3{t.V3[0] - t.V1[0], t.V3[1] - t.V1[1], t.V3[2] - t.V1[2]}
	normal := Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
	norm := math.Sqrt(normal[0]*normal[0] + normal[1]*normal[1] + normal[2]*normal[2])
	if norm > 0 {
		for i := 0; i < 3; i++ {
			normal[i] /= norm
		}
	}
	return normal
}

// Mesh 三角面片集合（triangle soup）
type Mesh struct {
	Name      string
	Triangles []Triangle
}

func (m *Mesh) add(v1, v2, v3 Vec3) {
	m.Triangles = append(m.Triangles, Triangle{V1: v1, V2: v2, V3: v3})
}

// Export 按扩展名落盘：.glb 二进制 glTF，.stl 二进制 STL
func (m *Mesh) Export(path string) error {
	var write func(io.Writer) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glb":
		write = m.WriteGLB
	case ".stl":
		write = m.WriteBinarySTL
	default:
		return fmt.Errorf("unsupported scene extension %q", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return write(f)
}

// Box 以原点为中心的立方体（占位模型用）
func Box(size float64) *Mesh {
	h := size / 2
	v := [8]Vec3{
		{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
		{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
	}

	m := &Mesh{Name: "box"}
	quad := func(a, b, c, d int) {
		m.add(v[a], v[b], v[c])
		m.add(v[a], v[c], v[d])
	}
	quad(0, 3, 2, 1) // 底 z=-h
	quad(4, 5, 6, 7) // 顶 z=+h
	quad(0, 1, 5, 4) // 前 y=-h
	quad(2, 3, 7, 6) // 后 y=+h
	quad(0, 4, 7, 3) // 左 x=-h
	quad(1, 2, 6, 5) // 右 x=+h
	return m
}

// FromHeightfield 把高度场转成封闭实体：顶面随高度起伏，
// 底面在 Z = -baseThickness，四周补壁
func FromHeightfield(hf *image.Gray, modelWidth, modelThickness, baseThickness float64) *Mesh {
	height := hf.Bounds().Dy()
	width := hf.Bounds().Dx()
	pixelSize := modelWidth / float64(width)

	m := &Mesh{Name: "relief_model"}

	// 构建顶点高度
	vertices := make([][]float64, height)
	for y := 0; y < height; y++ {
		vertices[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			vertices[y][x] = float64(hf.GrayAt(x, y).Y) / 255.0 * modelThickness
		}
	}

	// 顶面三角形
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			y0 := float64(height-y-1) * pixelSize
			y1 := float64(height-(y+1)-1) * pixelSize
			x0 := float64(x) * pixelSize
			x1 := float64(x+1) * pixelSize

			z00 := vertices[y][x]
			z01 := vertices[y+1][x]
			z10 := vertices[y][x+1]
			z11 := vertices[y+1][x+1]

			m.add(Vec3{x0, y0, z00}, Vec3{x1, y0, z10}, Vec3{x0, y1, z01})
			m.add(Vec3{x1, y0, z10}, Vec3{x1, y1, z11}, Vec3{x0, y1, z01})
		}
	}

	// 底面 (Z = -baseThickness)
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			y0 := float64(height-y-1) * pixelSize
			y1 := float64(height-(y+1)-1) * pixelSize
			x0 := float64(x) * pixelSize
			x1 := float64(x+1) * pixelSize

			m.add(Vec3{x0, y0, -baseThickness}, Vec3{x1, y1, -baseThickness}, Vec3{x0, y1, -baseThickness})
			m.add(Vec3{x0, y0, -baseThickness}, Vec3{x1, y0, -baseThickness}, Vec3{x1, y1, -baseThickness})
		}
	}

	// 前后边缘
	for x := 0; x < width-1; x++ {
		x0 := float64(x) * pixelSize
		x1 := float64(x+1) * pixelSize
		// 前边 (y=0)
		y0 := 0.0
		z0 := -baseThickness
		z1 := vertices[height-1][x]
		z2 := vertices[height-1][x+1]

		m.add(Vec3{x0, y0, z0}, Vec3{x1, y0, z0}, Vec3{x0, y0, z1})
		m.add(Vec3{x1, y0, z0}, Vec3{x1, y0, z2}, Vec3{x0, y0, z1})

		// 后边 (y = height-1)
		y0 = float64(height-1) * pixelSize
		z0 = -baseThickness
		z1 = vertices[0][x]
		z2 = vertices[0][x+1]

		m.add(Vec3{x0, y0, z0}, Vec3{x0, y0, z1}, Vec3{x1, y0, z0})
		m.add(Vec3{x1, y0, z0}, Vec3{x1, y0, z2}, Vec3{x0, y0, z1})
	}

	// 左右边缘
	for y := 0; y < height-1; y++ {
		y0 := float64(height-y-1) * pixelSize
		y1 := float64(height-(y+1)-1) * pixelSize
		z0 := -baseThickness
		// 左边 (x=0)
		x0 := 0.0
		z1 := vertices[y][0]
		z2 := vertices[y+1][0]

		m.add(Vec3{x0, y0, z0}, Vec3{x0, y0, z1}, Vec3{x0, y1, z0})
		m.add(Vec3{x0, y1, z0}, Vec3{x0, y0, z1}, Vec3{x0, y1, z2})

		// 右边 (x=width-1)
		x0 = float64(width-1) * pixelSize
		z1 = vertices[y][width-1]
		z2 = vertices[y+1][width-1]

		m.add(Vec3{x0, y0, z0}, Vec3{x0, y1, z0}, Vec3{x0, y0, z1})
		m.add(Vec3{x0, y1, z0}, Vec3{x0, y1, z2}, Vec3{x0, y0, z1})
	}

	return m
}
