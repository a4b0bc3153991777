package rembg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/chaos-io/rembg-form/util"
)

// DefaultGeminiModel Gemini 2.5 Flash Image（Nano Banana）
const DefaultGeminiModel = "gemini-2.5-flash-image"

// contentGenerator genai.Models 中用到的部分，测试时替换
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL 为空时使用官方地址
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiRemover 通过 Gemini 图像编辑模型去除背景
type GeminiRemover struct {
	models contentGenerator
	model  string
}

func NewGeminiRemover(ctx context.Context, cfg GeminiConfig) (*GeminiRemover, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("new genai client: %w", err)
	}

	return newGeminiRemover(client.Models, cfg.Model), nil
}

func newGeminiRemover(models contentGenerator, model string) *GeminiRemover {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiRemover{models: models, model: model}
}

func (g *GeminiRemover) Remove(ctx context.Context, payload, mimeType, instruction string) (string, error) {
	data, err := decodePayload(payload)
	if err != nil {
		return "", err
	}
	defer util.Trace("gemini remove background", "model", g.model, "bytes", len(data))()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	result, err := firstInlineImage(resp)
	if err != nil {
		return "", err
	}
	warnIfOpaque("gemini", result)
	return result, nil
}

// firstInlineImage 取响应中第一张内联图片；没有图片时把模型的文字回复带进错误
func firstInlineImage(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrNoImage
	}

	var texts []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				slog.Debug("gemini returned image", "mime", part.InlineData.MIMEType, "bytes", len(part.InlineData.Data))
				return base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
			texts = append(texts, "finish reason "+string(cand.FinishReason))
		}
	}

	if len(texts) == 0 {
		return "", ErrNoImage
	}
	return "", fmt.Errorf("%w: %s", ErrNoImage, strings.Join(texts, "; "))
}
