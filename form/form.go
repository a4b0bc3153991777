package form

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"sync"

	"github.com/chaos-io/rembg-form/rembg"
	"github.com/chaos-io/rembg-form/util"
)

var (
	ErrInvalidFileType = errors.New("invalid file type")
	ErrMissingInput    = errors.New("image and prompt are required")
	ErrBusy            = errors.New("a request is already in flight")
	ErrRemote          = errors.New("background removal failed")
)

// File 用户选择的文件
type File struct {
	Name        string
	ContentType string // 浏览器声明的类型
	Data        []byte
}

// SelectedImage 已接受的图片及其 data URL
type SelectedImage struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	DataURL  string `json:"-"`
}

// Form 一个访客的抠图表单
//
// 同一个 Form 同时最多只有一个远端请求在途。Reset 时在途请求不会被取消，
// 表单保持 Loading 直到它结束，它的结果通过 epoch 丢弃。
type Form struct {
	remover             rembg.Remover
	instructionTemplate string
	maxImageBytes       int

	mu       sync.Mutex
	state    State
	epoch    uint64
	inflight bool
}

type Option func(*Form)

// WithInstructionTemplate 替换默认指令模板
func WithInstructionTemplate(template string) Option {
	return func(f *Form) {
		if template != "" {
			f.instructionTemplate = template
		}
	}
}

// WithMaxImageBytes 超过大小的图片按无效文件处理，0 表示不限制
func WithMaxImageBytes(n int) Option {
	return func(f *Form) {
		f.maxImageBytes = n
	}
}

func New(remover rembg.Remover, opts ...Option) *Form {
	f := &Form{
		remover:             remover,
		instructionTemplate: DefaultInstructionTemplate,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SelectImage 校验并保存图片。声明类型不是 image/*，或内容嗅探不是图片时，
// 设置错误提示并保持原有图片不变。
func (f *Form) SelectImage(file File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Loading {
		return ErrBusy
	}

	if !util.IsImageType(file.ContentType) {
		f.state.Error = NoticeInvalidFileType
		return fmt.Errorf("%w: declared %q", ErrInvalidFileType, file.ContentType)
	}
	if f.maxImageBytes > 0 && len(file.Data) > f.maxImageBytes {
		f.state.Error = NoticeInvalidFileType
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFileType, len(file.Data), f.maxImageBytes)
	}
	info, err := util.InspectImage(file.Data)
	if err != nil {
		f.state.Error = NoticeInvalidFileType
		return fmt.Errorf("%w: %w", ErrInvalidFileType, err)
	}

	mimeType := normalizeMimeType(file.ContentType)
	f.state.Error = NoticeNone
	f.state.Result = ""
	f.state.Image = &SelectedImage{
		Name:     file.Name,
		MimeType: mimeType,
		Size:     len(file.Data),
		Width:    info.Width,
		Height:   info.Height,
		DataURL:  EncodeDataURL(mimeType, file.Data),
	}
	return nil
}

// EditPrompt 原样保存描述，提交时才检查是否为空
func (f *Form) EditPrompt(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Prompt = text
}

type job struct {
	epoch       uint64
	mimeType    string
	payload     string
	instruction string
}

// Submit 同步调用远端服务，直到完成或失败
func (f *Form) Submit(ctx context.Context) error {
	j, err := f.begin()
	if err != nil {
		return err
	}
	return f.run(ctx, j)
}

// SubmitAsync 同步完成校验并进入 Loading，远端调用在后台执行，
// 结束后把结果写入返回的 channel
func (f *Form) SubmitAsync(ctx context.Context) (<-chan error, error) {
	j, err := f.begin()
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- f.run(ctx, j)
	}()
	return done, nil
}

func (f *Form) begin() (job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inflight {
		return job{}, ErrBusy
	}
	if f.state.Image == nil || f.state.Prompt == "" {
		f.state.Error = NoticeMissingInput
		return job{}, ErrMissingInput
	}

	f.inflight = true
	f.state.Loading = true
	f.state.Error = NoticeNone
	f.state.Result = ""

	mimeType, payload := SplitDataURL(f.state.Image.DataURL)
	return job{
		epoch:       f.epoch,
		mimeType:    mimeType,
		payload:     payload,
		instruction: BuildInstruction(f.instructionTemplate, f.state.Prompt),
	}, nil
}

func (f *Form) run(ctx context.Context, j job) error {
	result, err := f.remover.Remove(ctx, j.payload, j.mimeType, j.instruction)
	if err == nil && result == "" {
		err = rembg.ErrEmptyPayload
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inflight = false
	f.state.Loading = false
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRemote, err)
	}

	if j.epoch != f.epoch {
		slog.Info("discard result of a reset form", "error", err)
		return err
	}

	if err != nil {
		slog.Error("remove background", "mime", j.mimeType, "error", err)
		f.state.Error = NoticeProcessingFailed
		return err
	}

	f.state.Result = wrapPayload(resultMimeType, result)
	return nil
}

// Reset 清空全部状态。请求在途时保持 Loading，直到旧请求结束，它的结果会被丢弃
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = State{Loading: f.inflight}
	f.epoch++
}

// Snapshot 当前状态的副本
func (f *Form) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s
}

// ResultPNG 解码后的结果图片，没有结果时返回 false
func (f *Form) ResultPNG() ([]byte, bool) {
	f.mu.Lock()
	result := f.state.Result
	f.mu.Unlock()

	if result == "" {
		return nil, false
	}
	_, payload := SplitDataURL(result)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		slog.Warn("decode result image", "error", err)
		return nil, false
	}
	return data, true
}

func normalizeMimeType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
