package form

import "fmt"

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State 表单的全部状态，只保存在内存
type State struct {
	Image   *SelectedImage
	Prompt  string
	Result  string // data:image/png;base64,...
	Loading bool
	Error   Notice
}

// Status 由其余字段推导
func (s State) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Error != NoticeNone:
		return StatusError
	case s.Result != "":
		return StatusSuccess
	default:
		return StatusIdle
	}
}

// CanSubmit 提交按钮是否可用
func (s State) CanSubmit() bool {
	return s.Image != nil && s.Prompt != "" && !s.Loading
}

// DownloadName 下载文件名 result_<原文件名>
func (s State) DownloadName() string {
	name := "image.png"
	if s.Image != nil && s.Image.Name != "" {
		name = s.Image.Name
	}
	return "result_" + name
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "loading":
		*s = StatusLoading
	case "error":
		*s = StatusError
	case "success":
		*s = StatusSuccess
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}
