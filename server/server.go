package server

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/rembg-form/form"
	"github.com/chaos-io/rembg-form/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName = "sid"
	formKey    = "form"

	// multipart 边界和其它字段的余量
	multipartOverhead = 1 << 20
)

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Server 抠图表单的 HTTP 入口
type Server struct {
	engine *gin.Engine
	store  *session.Store
	opts   Options

	// 后台进行中的抠图请求，退出时等待
	jobs sync.WaitGroup
}

func New(store *session.Store, opts Options) *Server {
	s := &Server{
		store: store,
		opts:  opts,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger)
	engine.MaxMultipartMemory = opts.MaxUploadBytes + multipartOverhead
	engine.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	visitor := engine.Group("/", s.session)
	visitor.GET("/", s.index)
	visitor.POST("/image", s.selectImage)
	visitor.POST("/prompt", s.editPrompt)
	visitor.POST("/submit", s.submit)
	visitor.POST("/reset", s.reset)
	visitor.GET("/result", s.result)
	visitor.GET("/api/state", s.state)

	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Drain 等待后台请求结束，ctx 到期时放弃等待
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session 按 cookie 找到访客的表单，没有就新建并下发 cookie
func (s *Server) session(c *gin.Context) {
	id, _ := c.Cookie(cookieName)
	id, f, created := s.store.GetOrCreate(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, id, 0, "/", "", false, true)
		slog.Debug("new session", "sid", id)
	}
	c.Set(formKey, f)
	c.Next()
}

func formFrom(c *gin.Context) *form.Form {
	return c.MustGet(formKey).(*form.Form)
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	level := slog.LevelInfo
	if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/api/state" {
		level = slog.LevelDebug
	}
	slog.Log(c.Request.Context(), level, "http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"elapsed", time.Since(start),
		"client", c.ClientIP(),
	)
}
