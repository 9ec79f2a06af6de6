package statemachine

import (
	"sync/atomic"
	"time"
)

// Metrics 指标统计
type Metrics struct {
	handled         atomic.Int64 // 已处理事件数
	succeeded       atomic.Int64 // 成功转换数
	noMatch         atomic.Int64 // 无匹配转换数
	cancelled       atomic.Int64 // 看门狗取消数
	unavailable     atomic.Int64 // 状态机不可用数
	panics          atomic.Int64 // panic 数
	deferredStarted atomic.Int64 // 已启动延迟转换数
	inFlight        atomic.Int64 // 等待结果的延迟转换数
	deferredTime    atomic.Int64 // 延迟转换总耗时（纳秒）
	deferredDone    atomic.Int64 // 已结束延迟转换数
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordDeferredStart() {
	m.deferredStarted.Add(1)
	m.inFlight.Add(1)
}

func (m *Metrics) recordDeferredEnd(d time.Duration) {
	m.inFlight.Add(-1)
	m.deferredDone.Add(1)
	m.deferredTime.Add(d.Nanoseconds())
}

func (m *Metrics) snapshot() MetricsSnapshot {
	var avg time.Duration
	if done := m.deferredDone.Load(); done > 0 {
		avg = time.Duration(m.deferredTime.Load() / done)
	}

	return MetricsSnapshot{
		Handled:         m.handled.Load(),
		Succeeded:       m.succeeded.Load(),
		NoMatch:         m.noMatch.Load(),
		Cancelled:       m.cancelled.Load(),
		Unavailable:     m.unavailable.Load(),
		Panics:          m.panics.Load(),
		DeferredStarted: m.deferredStarted.Load(),
		InFlight:        m.inFlight.Load(),
		AvgDeferredTime: avg,
	}
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Handled         int64
	Succeeded       int64
	NoMatch         int64
	Cancelled       int64
	Unavailable     int64
	Panics          int64
	DeferredStarted int64
	InFlight        int64
	AvgDeferredTime time.Duration
}
