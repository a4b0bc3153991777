package http

import (
	"context"
	"time"
)

// IClient 通用 HTTP 调用，JSON 请求/响应
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 单次请求参数
//
// Body 为 io.Reader 或 []byte 时原样发送，其他类型按 JSON 序列化；
// Response 非空时把响应体按 JSON 解析进去。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
