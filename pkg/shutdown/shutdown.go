package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序依次执行（先关对外服务，再关存储）。
type Manager struct {
	mu        sync.Mutex
	callbacks []entry
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry{name: name, handler: handler})
}

// Shutdown 执行所有关闭回调，只执行一次。ctx 应带超时；超时后剩余回调仍会被调用，
// 由各回调自行根据 ctx 尽快返回。返回第一个错误。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))
	var first error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.handler(ctx); err != nil {
			log.Warnf("⚠️ [Shutdown] %s 关闭失败: %v", cb.name, err)
			if first == nil {
				first = err
			}
			continue
		}
		log.Debugf("[Shutdown] %s 已关闭", cb.name)
	}
	if ctx.Err() != nil {
		log.Warnf("关闭超时: %v", ctx.Err())
	}
	return first
}

// SignalContext 收到 SIGINT / SIGTERM / SIGQUIT 时取消的 context
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
}
