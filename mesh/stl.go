package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteBinarySTL 二进制 STL：80 字节头 + 面数 + 每面 50 字节
func (m *Mesh) WriteBinarySTL(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var header [80]byte
	copy(header[:], "img2GLB binary stl: "+m.Name)
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Triangles))); err != nil {
		return err
	}

	for _, tri := range m.Triangles {
		n := tri.Normal()
		for _, v := range [][3]float64{n, tri.V1, tri.V2, tri.V3} {
			for i := 0; i < 3; i++ {
				if err := binary.Write(bw, binary.LittleEndian, float32(v[i])); err != nil {
					return err
				}
			}
		}
		// attribute byte count
		if err := binary.Write(bw, binary.LittleEndian, uint16(0)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// WriteASCIISTL 文本 STL，调试时肉眼可读
func (m *Mesh) WriteASCIISTL(w io.Writer) error {
	bw := bufio.NewWriter(w)

	_, _ = fmt.Fprintf(bw, "solid %s\n", m.Name)
	for _, tri := range m.Triangles {
		n := tri.Normal()
		_, _ = fmt.Fprintf(bw, "  facet normal %f %f %f\n", n[0], n[1], n[2])
		_, _ = fmt.Fprintf(bw, "    outer loop\n")
		_, _ = fmt.Fprintf(bw, "      vertex %f %f %f\n", tri.V1[0], tri.V1[1], tri.V1[2])
		_, _ = fmt.Fprintf(bw, "      vertex %f %f %f\n", tri.V2[0], tri.V2[1], tri.V2[2])
		_, _ = fmt.Fprintf(bw, "      vertex %f %f %f\n", tri.V3[0], tri.V3[1], tri.V3[2])
		_, _ = fmt.Fprintf(bw, "    endloop\n")
		_, _ = fmt.Fprintf(bw, "  endfacet\n")
	}
	_, _ = fmt.Fprintf(bw, "endsolid %s\n", m.Name)

	return bw.Flush()
}
