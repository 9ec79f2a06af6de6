package lifecycle

import (
	"context"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// RunFunc 协程主体，ctx 取消后应尽快返回
type RunFunc func(ctx context.Context) error

// StopFunc 退出时调用，用于停止不感知 ctx 的阻塞调用（如 http.Server.ListenAndServe）
type StopFunc func(ctx context.Context) error

// HookFunc 退出钩子，ctx 带有退出超时
type HookFunc func(ctx context.Context) error

type worker struct {
	name string
	run  RunFunc
	stop StopFunc
	log  logger.Logger
}

// WorkerOption 协程选项
type WorkerOption func(*worker)

// WithStopFunc 设置停止函数
func WithStopFunc(fn StopFunc) WorkerOption {
	return func(w *worker) {
		w.stop = fn
	}
}

// exit 协程退出记录
type exit struct {
	w   *worker
	err error
}
