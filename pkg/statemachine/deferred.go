package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/timer"
)

// outcome 延迟转换的最终结果，由竞争胜出的一方交给工作协程
type outcome struct {
	state State
	err   error
}

// inflight 一次执行中的延迟转换。
//
// resolve 回调与看门狗通过 resolved 标志竞争，只有先完成 CAS 的一方生效。
// 记录本身不持有状态机：胜出方经 handoff 把结果交给仍在等待的工作协程，
// 工作协程放弃等待（状态机关闭）后 abandoned 被关闭，胜出方直接回复调用方。
type inflight struct {
	id         string
	transition *Transition
	from       State
	started    time.Time
	timeout    time.Duration

	resolved atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	handoff   chan outcome
	abandoned chan struct{}

	timers   *timer.Manager
	metrics  *Metrics
	log      logger.Logger
	onResult ResultFunc
}

func (m *Machine) runDeferred(req *request, t *Transition, from State) {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	d := &inflight{
		id:         "deferred-" + uuid.NewString(),
		transition: t,
		from:       from,
		started:    time.Now(),
		timeout:    m.timeout,
		ctx:        ctx,
		cancel:     cancel,
		handoff:    make(chan outcome),
		abandoned:  make(chan struct{}),
		timers:     m.timers,
		metrics:    m.metrics,
		log:        m.log,
		onResult:   req.onResult,
	}

	if err := m.timers.CreateOnceTimer(d.id, m.timeout, d.expire); err != nil {
		m.reply(req, Result{State: from, Err: fmt.Errorf("arm watchdog: %w", err)})
		return
	}
	m.metrics.recordDeferredStart()

	go d.run()

	select {
	case out := <-d.handoff:
		if out.err != nil {
			m.metrics.cancelled.Add(1)
			m.reply(req, Result{State: from, Err: out.err})
			return
		}
		m.apply(from, out.state)
		m.metrics.succeeded.Add(1)
		m.reply(req, Result{State: out.state})
		m.guard("on_completed", func() { t.completed(out.state) })

	case <-m.ctx.Done():
		close(d.abandoned)
		m.log.Warn("machine closed with deferred transition in flight",
			logger.Stringer("transition", t),
			logger.String("inflight", d.id),
		)
	}
}

// run 在独立协程上执行产出函数，panic 交由看门狗以取消结束
func (d *inflight) run() {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.panics.Add(1)
			d.log.Error("deferred transition panicked",
				logger.Stringer("transition", d.transition),
				logger.Any("panic", r),
			)
		}
	}()
	d.transition.Defer(d.ctx, d.from, d.resolve)
}

// resolve 产出函数交付目标状态；看门狗已触发或重复调用时为空操作
func (d *inflight) resolve(state State) {
	if !d.resolved.CompareAndSwap(false, true) {
		d.log.Debug("late resolve ignored",
			logger.Stringer("transition", d.transition),
			logger.String("state", string(state)),
		)
		return
	}

	// ErrTimerNotFound 说明看门狗已触发但输掉了 CAS，无需处理
	if err := d.timers.RemoveTimer(d.id); err != nil && !errors.Is(err, timer.ErrTimerNotFound) {
		d.log.Warn("disarm watchdog failed", logger.String("inflight", d.id), logger.Err(err))
	}
	d.metrics.recordDeferredEnd(time.Since(d.started))
	d.deliver(outcome{state: state})
}

// expire 看门狗回调
func (d *inflight) expire() {
	if !d.resolved.CompareAndSwap(false, true) {
		return
	}

	elapsed := time.Since(d.started)
	d.metrics.recordDeferredEnd(elapsed)

	d.cancel()
	if d.transition.OnCancel != nil {
		d.safe(d.transition.OnCancel)
	}

	d.log.Warn("processing took too long, cancelling",
		logger.Stringer("transition", d.transition),
		logger.Duration("timeout", d.timeout),
		logger.Duration("elapsed", elapsed),
	)

	d.deliver(outcome{
		state: d.from,
		err:   fmt.Errorf("%w: event %q from %q exceeded %s", ErrCancelled, d.transition.Event, d.from, d.timeout),
	})
}

func (d *inflight) deliver(out outcome) {
	select {
	case d.handoff <- out:
	case <-d.abandoned:
		if out.err == nil {
			out.err = ErrMachineUnavailable
			d.metrics.unavailable.Add(1)
		} else {
			d.metrics.cancelled.Add(1)
		}
		if d.onResult != nil {
			d.safe(func() { d.onResult(Result{State: d.from, Err: out.err}) })
		}
	}
}

func (d *inflight) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.panics.Add(1)
			d.log.Error("callback panicked", logger.Any("panic", r))
		}
	}()
	fn()
}
