package statemachine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/timer"
)

// request 排队等待处理的事件
type request struct {
	event    Event
	reset    bool
	onResult ResultFunc
}

// Machine 并发安全的状态机。
//
// 所有事件由单个工作协程按提交顺序串行处理：匹配、执行转换、更新状态、
// 通知调用方全部完成后才会取下一个事件，延迟转换也不例外。
// 结果回调与 OnCompleted 运行在工作协程上，不能在其中同步等待本状态机
// （Trigger、HandleSync、Reset、Close），否则会死锁。
type Machine struct {
	id       string
	initial  State
	mu       sync.RWMutex
	current  State
	registry *registry

	queue     chan *request
	queueSize int
	timeout   time.Duration
	timers    *timer.Manager

	log                 logger.Logger
	metrics             *Metrics
	stateChangeCallback func(from, to State)

	ctx       context.Context
	cancel    context.CancelFunc
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ StateMachine = (*Machine)(nil)

// NewMachine 创建状态机并启动工作协程
func NewMachine(initial State, transitions []*Transition, opts ...Option) (*Machine, error) {
	for _, t := range transitions {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	m := &Machine{
		id:        uuid.NewString(),
		initial:   initial,
		current:   initial,
		queueSize: DefaultQueueSize,
		timeout:   DefaultDeferredTimeout,
		timers:    timer.NewManager(),
		log:       logger.Default(),
		metrics:   newMetrics(),
	}

	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.String("machine", m.id))

	m.registry = newRegistry(transitions)
	m.queue = make(chan *request, m.queueSize)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop()

	m.log.Debug("machine started",
		logger.String("initial", string(initial)),
		logger.Int("transitions", m.registry.size()),
		logger.Duration("deferred_timeout", m.timeout),
	)
	return m, nil
}

// ID 返回状态机标识
func (m *Machine) ID() string {
	return m.id
}

// Current 返回当前状态
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Add 追加转换规则，可与事件处理并发调用
func (m *Machine) Add(t *Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.registry.register(t)
	return nil
}

// Can 检查当前状态下是否存在匹配该事件的转换
func (m *Machine) Can(event Event) bool {
	return m.registry.match(event, m.Current()) != nil
}

// Handle 提交事件，忽略结果
func (m *Machine) Handle(event Event) {
	m.HandleFunc(event, nil)
}

// HandleFunc 提交事件，结果通过 fn 回调恰好一次
func (m *Machine) HandleFunc(event Event, fn ResultFunc) {
	m.submit(context.Background(), &request{event: event, onResult: fn})
}

// HandleSync 提交事件并等待结果。ctx 结束时返回 ctx.Err()，已入队的事件仍会被处理。
func (m *Machine) HandleSync(ctx context.Context, event Event) (State, error) {
	return m.await(ctx, &request{event: event})
}

// Trigger 触发事件进行状态转换
func (m *Machine) Trigger(ctx context.Context, event Event) error {
	_, err := m.HandleSync(ctx, event)
	return err
}

// Reset 排队重置到初始状态
func (m *Machine) Reset() error {
	_, err := m.await(context.Background(), &request{reset: true})
	return err
}

// Metrics 返回指标快照
func (m *Machine) Metrics() MetricsSnapshot {
	return m.metrics.snapshot()
}

// Close 停止工作协程。队列中未处理的事件以 ErrMachineUnavailable 结束；
// 仍在执行的延迟转换稍后完成时同样得到 ErrMachineUnavailable，超时则得到 ErrCancelled。
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()

		m.closeMu.Lock()
		m.closed = true
		m.closeMu.Unlock()

		m.wg.Wait()

		dropped := 0
	drain:
		for {
			select {
			case req := <-m.queue:
				m.unavailable(req)
				dropped++
			default:
				break drain
			}
		}

		m.log.Info("machine closed",
			logger.String("state", string(m.Current())),
			logger.Int("dropped", dropped),
		)
	})
	return nil
}

func (m *Machine) await(ctx context.Context, req *request) (State, error) {
	done := make(chan Result, 1)
	req.onResult = func(r Result) { done <- r }

	if err := m.submit(ctx, req); err != nil {
		return m.Current(), err
	}

	select {
	case r := <-done:
		return r.State, r.Err
	case <-ctx.Done():
		return m.Current(), ctx.Err()
	}
}

// submit 按提交顺序入队；状态机已关闭时立即以 ErrMachineUnavailable 回复
func (m *Machine) submit(ctx context.Context, req *request) error {
	accepted, err := m.enqueue(ctx, req)
	if err != nil {
		return err
	}
	if !accepted {
		m.unavailable(req)
	}
	return nil
}

func (m *Machine) enqueue(ctx context.Context, req *request) (bool, error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		return false, nil
	}

	select {
	case m.queue <- req:
		return true, nil
	case <-m.ctx.Done():
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (m *Machine) unavailable(req *request) {
	m.metrics.unavailable.Add(1)
	m.reply(req, Result{State: m.Current(), Err: ErrMachineUnavailable})
}

// loop 工作协程，一次只处理一个事件
func (m *Machine) loop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case req := <-m.queue:
			if m.ctx.Err() != nil {
				m.unavailable(req)
				return
			}
			m.dispatch(req)
		}
	}
}

func (m *Machine) dispatch(req *request) {
	if req.reset {
		from := m.Current()
		m.apply(from, m.initial)
		m.reply(req, Result{State: m.initial})
		return
	}

	m.metrics.handled.Add(1)

	from := m.Current()
	t := m.registry.match(req.event, from)
	if t == nil {
		m.metrics.noMatch.Add(1)
		m.log.Warn("no transition found",
			logger.String("event", string(req.event)),
			logger.String("state", string(from)),
		)
		m.reply(req, Result{
			State: from,
			Err:   fmt.Errorf("%w: event %q from state %q", ErrNoMatchingTransition, req.event, from),
		})
		return
	}

	m.log.Debug("dispatching", logger.Stringer("transition", t))

	if t.IsDeferred() {
		m.runDeferred(req, t, from)
		return
	}
	m.runImmediate(req, t, from)
}

func (m *Machine) runImmediate(req *request, t *Transition, from State) {
	next, err := m.produce(t, from)
	if err != nil {
		m.metrics.panics.Add(1)
		m.log.Error("transition panicked",
			logger.Stringer("transition", t),
			logger.Err(err),
		)
		m.reply(req, Result{State: from, Err: err})
		return
	}

	m.apply(from, next)
	m.metrics.succeeded.Add(1)
	m.reply(req, Result{State: next})
	m.guard("on_completed", func() { t.completed(next) })
}

func (m *Machine) produce(t *Transition, from State) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransitionPanic, r)
		}
	}()
	return t.Produce(m.ctx, from), nil
}

// apply 唯一写入 current 的位置，只在工作协程上调用
func (m *Machine) apply(from, to State) {
	m.mu.Lock()
	m.current = to
	m.mu.Unlock()

	m.log.Debug("state changed",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)

	if m.stateChangeCallback != nil {
		m.guard("state_change", func() { m.stateChangeCallback(from, to) })
	}
}

func (m *Machine) reply(req *request, r Result) {
	if req.onResult == nil {
		return
	}
	m.guard("on_result", func() { req.onResult(r) })
}

// guard 执行用户回调，panic 只记录不扩散到工作协程
func (m *Machine) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.panics.Add(1)
			m.log.Error("callback panicked",
				logger.String("callback", name),
				logger.Any("panic", r),
			)
		}
	}()
	fn()
}
