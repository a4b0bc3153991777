package util

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

var ErrNotImage = errors.New("not an image")

// ImageInfo 上传文件的元信息
type ImageInfo struct {
	MimeType string // 按内容嗅探出的类型
	Width    int
	Height   int
}

// InspectImage 按内容嗅探类型，是图片时再读取尺寸
// 只解析文件头（image.DecodeConfig），不解码像素
func InspectImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty file", ErrNotImage)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ImageInfo{}, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	info := ImageInfo{MimeType: mt.String()}
	// 格式不在已注册的解码器里（比如 svg）时尺寸留空
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info, nil
}

// IsImageType 判断声明的 MIME 类型是否为图片
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
