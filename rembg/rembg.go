package rembg

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

var (
	ErrNoImage      = errors.New("no image in response")
	ErrEmptyPayload = errors.New("empty image payload")
)

// Remover 抠图服务：传入 base64 图片、MIME 类型和指令，返回 base64 编码的 PNG
//
//go:generate mockgen -destination=mocks/rembg.go -package=mocks . Remover
type Remover interface {
	Remove(ctx context.Context, payload, mimeType, instruction string) (string, error)
}

// Passthrough 本地开发用，不抠图，只把输入转成 PNG 原样返回
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Remove(ctx context.Context, payload, mimeType, instruction string) (string, error) {
	data, err := decodePayload(payload)
	if err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", mimeType, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodePayload(payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return data, nil
}
