package statemachine

import (
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

const (
	// DefaultDeferredTimeout 延迟转换的默认看门狗超时
	DefaultDeferredTimeout = 5 * time.Second

	// DefaultQueueSize 默认事件队列长度
	DefaultQueueSize = 64
)

// Option 状态机配置选项
type Option func(*Machine)

// WithDeferredTimeout 设置延迟转换的看门狗超时，非正值忽略
func WithDeferredTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithQueueSize 设置事件队列长度，0 表示提交方等待工作协程接收
func WithQueueSize(size int) Option {
	return func(m *Machine) {
		if size >= 0 {
			m.queueSize = size
		}
	}
}

// WithLogger 设置诊断日志输出
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithID 设置状态机标识（默认随机 UUID），用于日志与指标
func WithID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.id = id
		}
	}
}

// WithStateChangeCallback 设置每次状态变更后的回调
func WithStateChangeCallback(fn func(from, to State)) Option {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}
