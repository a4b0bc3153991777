package rembg

import (
	"bytes"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

// HasTransparency 只要存在非完全不透明的像素，就认为已经抠过图
func HasTransparency(img image.Image) bool {
	nrgba := toNRGBA(img)
	for i := 3; i < len(nrgba.Pix); i += 4 {
		if nrgba.Pix[i] != 255 {
			return true
		}
	}
	return false
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// warnIfOpaque 模型偶尔会返回白底图，这里只记录，不算失败
func warnIfOpaque(source, payload string) {
	data, err := decodePayload(payload)
	if err != nil {
		slog.Warn("inspect result image", "source", source, "error", err)
		return
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("inspect result image", "source", source, "error", err)
		return
	}
	if !HasTransparency(img) {
		slog.Warn("result image has no transparent pixels", "source", source, "format", format)
	}
}
