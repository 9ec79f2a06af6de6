package lifecycle

import (
	"os"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// Option 管理器选项
type Option func(*Manager)

// WithSignals 设置触发退出的信号，不传参数表示不监听信号
func WithSignals(signals ...os.Signal) Option {
	return func(m *Manager) {
		m.signals = signals
	}
}

// WithShutdownTimeout 设置退出超时，非正值忽略
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}
