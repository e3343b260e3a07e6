package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	nhttp "github.com/chaos-io/img2GLB/util/http"
)

// SAM3D 走 HTTP 的重建服务适配器。pipeline.yaml 来自模型仓库的
// checkpoints/<tag>/ 目录，至少要有 endpoint 字段。
type SAM3D struct {
	endpoint string
	timeout  time.Duration
	cli      nhttp.IClient
}

func NewSAM3D(configPath string) (*SAM3D, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pipeline config %s: %w", configPath, err)
	}

	endpoint := strings.TrimRight(v.GetString("endpoint"), "/")
	if endpoint == "" {
		return nil, errors.New("pipeline config missing endpoint")
	}

	timeout := v.GetDuration("timeout")

	return &SAM3D{
		endpoint: endpoint,
		timeout:  timeout,
		cli:      nhttp.NewHTTPClient(),
	}, nil
}

func (s *SAM3D) Name() string { return "sam3d" }

// GenerateSingleObject 把 RGB 和 mask 以 multipart 发给推理服务，
// 响应体就是场景文件字节，直接写到 outputPathHint。
func (s *SAM3D) GenerateSingleObject(ctx context.Context, rgb *image.NRGBA, mask *image.Gray, outputPathHint string) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	imagePart, err := writer.CreateFormFile("image", "rgb.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(imagePart, rgb); err != nil {
		return nil, fmt.Errorf("encode rgb: %w", err)
	}

	maskPart, err := writer.CreateFormFile("mask", "mask.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(maskPart, mask); err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}

	_ = writer.WriteField("filename", filepath.Base(outputPathHint))
	_ = writer.Close()

	var scene []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.endpoint + "/api/generate",
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &scene,
		Timeout:    s.timeout,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if len(scene) == 0 {
		return nil, errors.New("empty scene in response")
	}

	if err := os.WriteFile(outputPathHint, scene, 0o644); err != nil {
		return nil, fmt.Errorf("write scene file: %w", err)
	}

	return &Result{Kind: WroteFile, Path: outputPathHint}, nil
}
