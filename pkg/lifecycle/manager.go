// Package lifecycle 管理一组长期运行的协程及其优雅退出
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// DefaultShutdownTimeout 默认退出超时
const DefaultShutdownTimeout = 30 * time.Second

// Manager 协程生命周期管理器。
//
// Run 启动全部协程并阻塞，直到收到信号、调用 Shutdown、父 ctx 结束、
// 某个协程返回错误或全部协程正常返回。随后取消协程 ctx，按注册的逆序
// 调用停止函数，等待协程退出，最后按逆序执行退出钩子。
type Manager struct {
	mu         sync.Mutex
	workers    []*worker
	onShutdown []HookFunc
	running    bool

	signals         []os.Signal
	shutdownTimeout time.Duration
	log             logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager 创建管理器，默认监听 SIGINT 与 SIGTERM
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: DefaultShutdownTimeout,
		log:             logger.Default(),
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddWorker 注册协程，必须在 Run 之前调用
func (m *Manager) AddWorker(name string, run RunFunc, opts ...WorkerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	for _, w := range m.workers {
		if w.name == name {
			return fmt.Errorf("%w: %s", ErrWorkerExists, name)
		}
	}

	w := &worker{name: name, run: run, log: m.log.With(logger.String("worker", name))}
	for _, opt := range opts {
		opt(w)
	}
	m.workers = append(m.workers, w)
	return nil
}

// OnShutdown 注册退出钩子，所有协程退出后按注册的逆序执行
func (m *Manager) OnShutdown(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// Shutdown 请求退出，可重复调用，Run 返回前不阻塞调用方
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Run 运行全部协程直到退出流程完成，返回协程错误与退出过程中的错误
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	workers := append([]*worker(nil), m.workers...)
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sig chan os.Signal
	if len(m.signals) > 0 {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, m.signals...)
		defer signal.Stop(sig)
	}

	exits := make(chan exit, len(workers))
	for _, w := range workers {
		go func(w *worker) {
			w.log.Debug("worker started")
			exits <- exit{w: w, err: w.run(runCtx)}
		}(w)
	}

	var runErr error
	reason := "all workers finished"
	remaining := len(workers)

wait:
	for remaining > 0 {
		select {
		case e := <-exits:
			remaining--
			if err := m.exited(e); err != nil {
				runErr = err
				reason = "worker failed"
				break wait
			}
		case s := <-sig:
			reason = "signal " + s.String()
			break wait
		case <-m.stop:
			reason = "shutdown requested"
			break wait
		case <-ctx.Done():
			reason = "context done"
			break wait
		}
	}

	m.log.Info("shutting down", logger.String("reason", reason), logger.Int("running", remaining))
	return errors.Join(runErr, m.shutdown(cancel, workers, exits, remaining))
}

func (m *Manager) shutdown(cancel context.CancelFunc, workers []*worker, exits <-chan exit, remaining int) error {
	ctx, done := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer done()

	cancel()

	var errs []error
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if w.stop == nil {
			continue
		}
		if err := w.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", w.name, err))
		}
	}

drain:
	for remaining > 0 {
		select {
		case e := <-exits:
			remaining--
			if err := m.exited(e); err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			m.log.Error("workers did not exit in time",
				logger.Int("pending", remaining),
				logger.Duration("timeout", m.shutdownTimeout),
			)
			errs = append(errs, ErrShutdownTimeout)
			break drain
		}
	}

	// 超时后钩子仍然执行，用于释放协程之外的资源
	m.mu.Lock()
	hooks := append([]HookFunc(nil), m.onShutdown...)
	m.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// exited 记录协程退出，ctx 取消导致的返回不算错误
func (m *Manager) exited(e exit) error {
	if e.err == nil || errors.Is(e.err, context.Canceled) {
		e.w.log.Debug("worker exited")
		return nil
	}
	e.w.log.Error("worker failed", logger.Err(e.err))
	return fmt.Errorf("worker %s: %w", e.w.name, e.err)
}
