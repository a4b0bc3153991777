package rembg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	nhttp "github.com/chaos-io/rembg-form/util/http"
)

// EndpointRemover 调用自部署的抠图服务（BiRefNet 等），JSON 进 JSON 出
//
//	curl -X POST "$REMBG_ENDPOINT" \
//	  -H "Content-Type: application/json" \
//	  -d '{"image": "<base64>", "mimeType": "image/jpeg", "prompt": "..."}'
//
//	{"image": "<base64 png>"}
type EndpointRemover struct {
	url     string
	timeout time.Duration
	cli     nhttp.IClient
}

// NewEndpointRemover timeout 不大于 0 时使用 HTTP 客户端的默认超时
func NewEndpointRemover(url string, timeout time.Duration) *EndpointRemover {
	cli := nhttp.NewHTTPClient()
	if timeout > 0 {
		cli = nhttp.NewHTTPClientWithTimeout(timeout)
	}
	return &EndpointRemover{
		url:     url,
		timeout: timeout,
		cli:     cli,
	}
}

type endpointReq struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
	Prompt   string `json:"prompt"`
}

type endpointResp struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

func (e *EndpointRemover) Remove(ctx context.Context, payload, mimeType, instruction string) (string, error) {
	if payload == "" {
		return "", ErrEmptyPayload
	}

	resp := &endpointResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: e.url,
		Method:     http.MethodPost,
		Body: endpointReq{
			Image:    payload,
			MimeType: mimeType,
			Prompt:   instruction,
		},
		Response: resp,
		Timeout:  e.timeout,
	}
	if err := e.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}

	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	if resp.Image == "" {
		return "", ErrNoImage
	}

	// 有的服务直接返回 data URL
	result := resp.Image
	if i := strings.Index(result, ";base64,"); strings.HasPrefix(result, "data:") && i >= 0 {
		result = result[i+len(";base64,"):]
	}
	warnIfOpaque("endpoint", result)
	return result, nil
}
