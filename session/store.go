package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/rembg-form/form"
)

const DefaultSweepSpec = "@every 1m"

// Store 访客表单的内存存储，按 session ID 索引，过期自动丢弃
type Store struct {
	items   *cache.Cache
	newForm func() *form.Form
}

// NewStore ttl 为空闲过期时间，每次访问都会续期
func NewStore(ttl time.Duration, newForm func() *form.Form) *Store {
	// cleanupInterval 为 0，不启动 go-cache 自带的清理协程，由 RunSweeper 调度
	items := cache.New(ttl, 0)
	items.OnEvicted(func(id string, _ interface{}) {
		slog.Debug("session evicted", "sid", id)
	})
	return &Store{
		items:   items,
		newForm: newForm,
	}
}

// Get 取表单并续期，未知或已过期时返回 false
func (s *Store) Get(id string) (*form.Form, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	f := v.(*form.Form)
	s.items.Set(id, f, cache.DefaultExpiration)
	return f, true
}

// Create 新建表单，ID 由服务端生成
func (s *Store) Create() (string, *form.Form) {
	id := ksuid.New().String()
	f := s.newForm()
	s.items.Set(id, f, cache.DefaultExpiration)
	return id, f
}

// GetOrCreate 未知或过期的 ID 会换成新生成的 ID
func (s *Store) GetOrCreate(id string) (string, *form.Form, bool) {
	if f, ok := s.Get(id); ok {
		return id, f, false
	}
	newID, f := s.Create()
	return newID, f, true
}

func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Sweep 删除已过期的表单
func (s *Store) Sweep() {
	before := s.Len()
	s.items.DeleteExpired()
	if after := s.Len(); after != before {
		slog.Info("session sweep", "removed", before-after, "remaining", after)
	}
}

// RunSweeper 按 cron 表达式定期 Sweep，阻塞到 ctx 结束
func (s *Store) RunSweeper(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	c.Start()
	slog.Info("session sweeper started", "spec", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("session sweeper stopped")
	return nil
}
