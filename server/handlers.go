package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/rembg-form/form"
)

type page struct {
	L         *form.Locale
	Status    string
	Image     *form.SelectedImage
	Preview   template.URL
	Prompt    string
	Result    template.URL
	Error     string
	Download  string
	CanUpload bool
	CanSubmit bool
	Loading   bool
}

func newPage(l *form.Locale, st form.State) page {
	p := page{
		L:         l,
		Status:    st.Status().String(),
		Image:     st.Image,
		Prompt:    st.Prompt,
		Error:     l.Message(st.Error),
		Download:  st.DownloadName(),
		CanUpload: !st.Loading,
		// 描述和提交在同一个表单里，这里只看图片和 Loading
		CanSubmit: st.Image != nil && !st.Loading,
		Loading:   st.Loading,
	}
	// data URL 由服务端生成，可以直接放进 src
	if st.Image != nil {
		p.Preview = template.URL(st.Image.DataURL)
	}
	if st.Result != "" {
		p.Result = template.URL(st.Result)
	}
	return p
}

func (s *Server) index(c *gin.Context) {
	l := form.MatchLocale(c.GetHeader("Accept-Language"))
	c.HTML(http.StatusOK, "index.html", newPage(l, formFrom(c).Snapshot()))
}

func (s *Server) selectImage(c *gin.Context) {
	f := formFrom(c)

	file, err := s.readUpload(c)
	if err != nil {
		slog.Warn("read upload", "error", err)
	}
	// 读取失败时 file 为空，SelectImage 会给出 invalid_file_type
	if err := f.SelectImage(file); err != nil {
		slog.Info("image rejected", "name", file.Name, "type", file.ContentType, "error", err)
	}
	back(c)
}

func (s *Server) readUpload(c *gin.Context) (form.File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+multipartOverhead)

	fh, err := c.FormFile("image")
	if err != nil {
		return form.File{}, fmt.Errorf("form file: %w", err)
	}
	if fh.Size > s.opts.MaxUploadBytes {
		return form.File{Name: fh.Filename}, fmt.Errorf("file size %d exceeds %d", fh.Size, s.opts.MaxUploadBytes)
	}

	r, err := fh.Open()
	if err != nil {
		return form.File{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return form.File{}, fmt.Errorf("read upload: %w", err)
	}

	return form.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) editPrompt(c *gin.Context) {
	formFrom(c).EditPrompt(c.PostForm("prompt"))
	back(c)
}

func (s *Server) submit(c *gin.Context) {
	f := formFrom(c)
	if prompt, ok := c.GetPostForm("prompt"); ok {
		f.EditPrompt(prompt)
	}

	// 请求结束后抠图继续在后台进行，用户不能取消
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.RequestTimeout)
	done, err := f.SubmitAsync(ctx)
	if err != nil {
		cancel()
		if !errors.Is(err, form.ErrMissingInput) && !errors.Is(err, form.ErrBusy) {
			slog.Error("submit", "error", err)
		}
		back(c)
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer cancel()
		<-done
	}()
	back(c)
}

func (s *Server) reset(c *gin.Context) {
	formFrom(c).Reset()
	back(c)
}

func (s *Server) result(c *gin.Context) {
	f := formFrom(c)
	data, ok := f.ResultPNG()
	if !ok {
		c.String(http.StatusNotFound, "no result")
		return
	}

	name := f.Snapshot().DownloadName()
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, "image/png", data)
}

type stateResp struct {
	Status       form.Status         `json:"status"`
	Image        *form.SelectedImage `json:"image,omitempty"`
	Prompt       string              `json:"prompt"`
	HasResult    bool                `json:"hasResult"`
	Error        form.Notice         `json:"error,omitempty"`
	Message      string              `json:"message,omitempty"`
	CanSubmit    bool                `json:"canSubmit"`
	DownloadName string              `json:"downloadName,omitempty"`
}

func (s *Server) state(c *gin.Context) {
	l := form.MatchLocale(c.GetHeader("Accept-Language"))
	st := formFrom(c).Snapshot()

	resp := stateResp{
		Status:    st.Status(),
		Image:     st.Image,
		Prompt:    st.Prompt,
		HasResult: st.Result != "",
		Error:     st.Error,
		Message:   l.Message(st.Error),
		CanSubmit: st.CanSubmit(),
	}
	if resp.HasResult {
		resp.DownloadName = st.DownloadName()
	}
	c.JSON(http.StatusOK, resp)
}

func back(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
