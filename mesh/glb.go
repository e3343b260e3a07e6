package mesh

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

// glTF 2.0 二进制容器常量
const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	chunkJSON    = 0x4E4F534A // "JSON"
	chunkBIN     = 0x004E4942 // "BIN"
	componentF32 = 5126
	componentU32 = 5125
	targetArray  = 34962 // ARRAY_BUFFER
	targetIndex  = 34963 // ELEMENT_ARRAY_BUFFER
	modeTriangle = 4
)

type gltfAsset struct {
	Version   string `json:"version"`
	Generator string `json:"generator"`
}

type gltfBuffer struct {
	ByteLength int `json:"byteLength"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	Target     int `json:"target"`
}

type gltfAccessor struct {
	BufferView    int       `json:"bufferView"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float32 `json:"min,omitempty"`
	Max           []float32 `json:"max,omitempty"`
}

type gltfPrimitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    int            `json:"indices"`
	Mode       int            `json:"mode"`
}

type gltfMesh struct {
	Name       string          `json:"name,omitempty"`
	Primitives []gltfPrimitive `json:"primitives"`
}

type gltfNode struct {
	Mesh int    `json:"mesh"`
	Name string `json:"name,omitempty"`
}

type gltfScene struct {
	Nodes []int `json:"nodes"`
}

type gltfDocument struct {
	Asset       gltfAsset        `json:"asset"`
	Scene       int              `json:"scene"`
	Scenes      []gltfScene      `json:"scenes"`
	Nodes       []gltfNode       `json:"nodes"`
	Meshes      []gltfMesh       `json:"meshes"`
	Accessors   []gltfAccessor   `json:"accessors"`
	BufferViews []gltfBufferView `json:"bufferViews"`
	Buffers     []gltfBuffer     `json:"buffers"`
}

// WriteGLB 二进制 glTF：JSON chunk + BIN chunk。
// 顶点不做去重（flat shading，法线取面法线）。
func (m *Mesh) WriteGLB(w io.Writer) error {
	if len(m.Triangles) == 0 {
		return errors.New("empty mesh")
	}

	vertexCount := len(m.Triangles) * 3
	posMin := []float32{f32max, f32max, f32max}
	posMax := []float32{-f32max, -f32max, -f32max}

	bin := &bytes.Buffer{}

	// POSITION
	for _, tri := range m.Triangles {
		for _, v := range []Vec3{tri.V1, tri.V2, tri.V3} {
			for i := 0; i < 3; i++ {
				f := float32(v[i])
				if f < posMin[i] {
					posMin[i] = f
				}
				if f > posMax[i] {
					posMax[i] = f
				}
				_ = binary.Write(bin, binary.LittleEndian, f)
			}
		}
	}
	posLen := bin.Len()

	// NORMAL：三个顶点共用面法线
	for _, tri := range m.Triangles {
		n := tri.Normal()
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				_ = binary.Write(bin, binary.LittleEndian, float32(n[i]))
			}
		}
	}
	normalLen := bin.Len() - posLen

	// indices
	for i := 0; i < vertexCount; i++ {
		_ = binary.Write(bin, binary.LittleEndian, uint32(i))
	}
	indexLen := bin.Len() - posLen - normalLen

	doc := gltfDocument{
		Asset: gltfAsset{Version: "2.0", Generator: "img2GLB"},
		Scene: 0,
		Scenes: []gltfScene{
			{Nodes: []int{0}},
		},
		Nodes: []gltfNode{
			{Mesh: 0, Name: m.Name},
		},
		Meshes: []gltfMesh{
			{
				Name: m.Name,
				Primitives: []gltfPrimitive{
					{
						Attributes: map[string]int{"POSITION": 0, "NORMAL": 1},
						Indices:    2,
						Mode:       modeTriangle,
					},
				},
			},
		},
		Accessors: []gltfAccessor{
			{BufferView: 0, ComponentType: componentF32, Count: vertexCount, Type: "VEC3", Min: posMin, Max: posMax},
			{BufferView: 1, ComponentType: componentF32, Count: vertexCount, Type: "VEC3"},
			{BufferView: 2, ComponentType: componentU32, Count: vertexCount, Type: "SCALAR"},
		},
		BufferViews: []gltfBufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: posLen, Target: targetArray},
			{Buffer: 0, ByteOffset: posLen, ByteLength: normalLen, Target: targetArray},
			{Buffer: 0, ByteOffset: posLen + normalLen, ByteLength: indexLen, Target: targetIndex},
		},
		Buffers: []gltfBuffer{
			{ByteLength: bin.Len()},
		},
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	// JSON chunk 用空格补齐到 4 字节
	for len(jsonData)%4 != 0 {
		jsonData = append(jsonData, ' ')
	}
	binData := bin.Bytes()
	for len(binData)%4 != 0 {
		binData = append(binData, 0)
	}

	total := 12 + 8 + len(jsonData) + 8 + len(binData)

	for _, v := range []uint32{glbMagic, glbVersion, uint32(total), uint32(len(jsonData)), chunkJSON} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.Write(jsonData); err != nil {
		return err
	}
	for _, v := range []uint32{uint32(len(binData)), chunkBIN} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.Write(binData); err != nil {
		return err
	}
	return nil
}

const f32max = float32(3.4028234663852886e+38)
