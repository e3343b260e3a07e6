package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/img2GLB/util"
	nhttp "github.com/chaos-io/img2GLB/util/http"
)

const (
	BiRefNetModel = "BiRefNet"

	uploadPath  = "/api/upload/image"
	promptPath  = "/api/prompt"
	historyPath = "/api/history/"
	viewPath    = "/api/view"

	pollInterval = 500 * time.Millisecond
)

//go:embed workflow.json
var workflowData string

// BiRefNet 通过 ComfyUI 的 BiRefNet workflow 做背景移除：
// 上传图片 -> 提交 prompt -> 轮询 history -> 取回输出图
type BiRefNet struct {
	baseURL string
	timeout time.Duration
	cli     nhttp.IClient
	logger  *zap.Logger
}

func NewBiRefNet(baseURL string, timeout time.Duration, logger *zap.Logger) *BiRefNet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BiRefNet{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		cli:     nhttp.NewHTTPClient(),
		logger:  logger,
	}
}

func (b *BiRefNet) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	name, err := b.uploadImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	promptID, err := b.prompt(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("submit prompt: %w", err)
	}

	out, err := b.waitForOutput(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("wait for output: %w", err)
	}

	return b.fetchImage(ctx, out)
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}
*/
func (b *BiRefNet) uploadImage(ctx context.Context, img image.Image) (string, error) {
	name := ksuid.New().String() + ".png"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	_ = writer.Close()

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + uploadPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}

	b.logger.Debug("uploaded image to rembg backend",
		zap.String("name", resp.Name), zap.String("type", resp.Type))
	return resp.Name, nil
}

type promptResp struct {
	PromptID string `json:"prompt_id"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNet) prompt(ctx context.Context, imageName string) (string, error) {
	wkData := strings.Replace(workflowData, "MyImage.png", imageName, 1)

	wk := map[string]any{}
	if err := json.Unmarshal([]byte(wkData), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	body, err := json.Marshal(map[string]any{"prompt": wk})
	if err != nil {
		return "", fmt.Errorf("marshal workflow data: %w", err)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + promptPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("empty prompt_id in response")
	}

	b.logger.Debug("submitted rembg prompt", zap.String("prompt_id", resp.PromptID))
	return resp.PromptID, nil
}

type historyOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// waitForOutput 轮询 /api/history/{prompt_id}，直到 outputs 里出现图片
func (b *BiRefNet) waitForOutput(ctx context.Context, promptID string) (*historyOutput, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]struct {
			Outputs map[string]struct {
				Images []historyOutput `json:"images"`
			} `json:"outputs"`
		}{}

		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + historyPath + promptID,
			Method:     "GET",
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			for _, node := range entry.Outputs {
				if len(node.Images) > 0 {
					return &node.Images[0], nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNet) fetchImage(ctx context.Context, out *historyOutput) (image.Image, error) {
	q := url.Values{}
	q.Set("filename", out.Filename)
	q.Set("subfolder", out.Subfolder)
	q.Set("type", out.Type)

	img, err := util.DownloadImage(ctx, b.baseURL+viewPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch output image: %w", err)
	}
	return img, nil
}
