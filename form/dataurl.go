package form

import (
	"encoding/base64"
	"strings"
)

// 无法从 data URL 中解析出类型时的回退值
const defaultMimeType = "image/jpeg"

const resultMimeType = "image/png"

// EncodeDataURL 把二进制内容编码成 data:<mime>;base64,<payload>
func EncodeDataURL(mimeType string, data []byte) string {
	return wrapPayload(mimeType, base64.StdEncoding.EncodeToString(data))
}

func wrapPayload(mimeType, payload string) string {
	return "data:" + mimeType + ";base64," + payload
}

// SplitDataURL 拆出 MIME 类型和 base64 内容
// 头部解析不出类型时回退为 image/jpeg；没有逗号时 payload 为空
func SplitDataURL(s string) (mimeType, payload string) {
	header, payload, _ := strings.Cut(s, ",")

	mimeType = defaultMimeType
	if _, rest, ok := strings.Cut(header, ":"); ok {
		if m, _, ok := strings.Cut(rest, ";"); ok && m != "" {
			mimeType = m
		}
	}
	return mimeType, payload
}
