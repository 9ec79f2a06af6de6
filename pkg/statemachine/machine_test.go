package statemachine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

const (
	stateA State = "A"
	stateB State = "B"
	stateC State = "C"

	eventX Event = "X"
	eventY Event = "Y"

	testTimeout = 50 * time.Millisecond
)

func newTestMachine(t *testing.T, initial State, transitions []*Transition, opts ...Option) *Machine {
	t.Helper()

	opts = append([]Option{WithLogger(logger.Nop()), WithDeferredTimeout(testTimeout)}, opts...)
	m, err := NewMachine(initial, transitions, opts...)
	if err != nil {
		t.Fatalf("创建状态机失败: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// sleepyDeferred 延迟 delay 后交付 to，ctx 取消时放弃
func sleepyDeferred(event Event, from, to State, delay time.Duration) *Transition {
	return NewDeferred(event, from, func(ctx context.Context, _ State, resolve func(State)) {
		select {
		case <-time.After(delay):
			resolve(to)
		case <-ctx.Done():
		}
	})
}

func handleAndWait(t *testing.T, m *Machine, event Event) Result {
	t.Helper()

	done := make(chan Result, 1)
	m.HandleFunc(event, func(r Result) { done <- r })

	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("事件 %s 未返回结果", event)
		return Result{}
	}
}

// 场景1：即时转换 (X, A→B)
func TestMachine_ImmediateTransition(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
	})

	r := handleAndWait(t, m, eventX)
	if r.Err != nil {
		t.Fatalf("期望成功, got %v", r.Err)
	}
	if r.State != stateB || m.Current() != stateB {
		t.Errorf("状态错误: result %v, current %v, want B", r.State, m.Current())
	}
}

// 场景2：(Y, B) 没有转换
func TestMachine_NoMatchingTransition(t *testing.T) {
	m := newTestMachine(t, stateB, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
	})

	r := handleAndWait(t, m, eventY)
	if !errors.Is(r.Err, ErrNoMatchingTransition) {
		t.Errorf("期望 ErrNoMatchingTransition, got %v", r.Err)
	}
	if m.Current() != stateB {
		t.Errorf("无匹配时状态不应变化: got %v", m.Current())
	}

	// 状态机仍可继续处理
	if err := m.Add(NewTransition(eventY, stateB, stateC, nil)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	if r := handleAndWait(t, m, eventY); r.Err != nil || r.State != stateC {
		t.Errorf("期望 C, got %v (%v)", r.State, r.Err)
	}
}

// 场景3：延迟转换超时被取消
func TestMachine_DeferredTimeout(t *testing.T) {
	m := newTestMachine(t, stateB, []*Transition{
		sleepyDeferred(eventX, stateB, stateC, 4*testTimeout),
	})

	r := handleAndWait(t, m, eventX)
	if !errors.Is(r.Err, ErrCancelled) {
		t.Errorf("期望 ErrCancelled, got %v", r.Err)
	}
	if m.Current() != stateB {
		t.Errorf("取消后状态不应变化: got %v", m.Current())
	}
}

// 场景4：延迟转换在超时前完成
func TestMachine_DeferredSuccess(t *testing.T) {
	var completed atomic.Value
	tr := sleepyDeferred(eventX, stateB, stateC, 5*time.Millisecond)
	tr.OnCompleted = func(s State) { completed.Store(s) }

	m := newTestMachine(t, stateB, []*Transition{tr})

	r := handleAndWait(t, m, eventX)
	if r.Err != nil {
		t.Fatalf("期望成功, got %v", r.Err)
	}
	if r.State != stateC || m.Current() != stateC {
		t.Errorf("状态错误: result %v, current %v, want C", r.State, m.Current())
	}

	time.Sleep(10 * time.Millisecond)
	if got, _ := completed.Load().(State); got != stateC {
		t.Errorf("OnCompleted 未收到目标状态: got %v", got)
	}
}

// 场景5：第二个事件在第一个延迟转换完成后按新状态匹配
func TestMachine_SerializesAcrossDeferred(t *testing.T) {
	m := newTestMachine(t, stateB, []*Transition{
		sleepyDeferred(eventX, stateB, stateC, 20*time.Millisecond),
		NewTransition(eventY, stateC, stateA, nil),
	})

	first := make(chan Result, 1)
	second := make(chan Result, 1)
	m.HandleFunc(eventX, func(r Result) { first <- r })
	m.HandleFunc(eventY, func(r Result) { second <- r })

	r1 := <-first
	r2 := <-second

	if r1.Err != nil || r1.State != stateC {
		t.Errorf("第一个事件期望 C, got %v (%v)", r1.State, r1.Err)
	}
	if r2.Err != nil || r2.State != stateA {
		t.Errorf("第二个事件期望 A, got %v (%v)", r2.State, r2.Err)
	}
	if m.Current() != stateA {
		t.Errorf("最终状态错误: got %v, want A", m.Current())
	}
}

func TestMachine_ResultBeforeOnCompleted(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, func(State) { record("completed") }),
	}, WithStateChangeCallback(func(from, to State) { record("changed") }))

	done := make(chan struct{})
	m.HandleFunc(eventX, func(Result) { record("result") })
	m.HandleFunc(eventY, func(Result) { close(done) })
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []string{"changed", "result", "completed"}
	if len(order) != len(want) {
		t.Fatalf("回调顺序错误: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("回调顺序错误: got %v, want %v", order, want)
		}
	}
}

func TestMachine_FirstRegisteredWins(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
		NewTransition(eventX, stateA, stateC, nil),
	})

	if r := handleAndWait(t, m, eventX); r.State != stateB {
		t.Errorf("先注册的转换应优先: got %v, want B", r.State)
	}
}

func TestMachine_TriggerAndCan(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
	})

	if !m.Can(eventX) {
		t.Error("应该可以触发 X")
	}
	if m.Can(eventY) {
		t.Error("不应该可以触发 Y")
	}

	var sm StateMachine = m
	if err := sm.Trigger(context.Background(), eventX); err != nil {
		t.Fatalf("Trigger 失败: %v", err)
	}
	if err := sm.Trigger(context.Background(), eventX); !errors.Is(err, ErrNoMatchingTransition) {
		t.Errorf("期望 ErrNoMatchingTransition, got %v", err)
	}
}

func TestMachine_HandleSyncContext(t *testing.T) {
	m := newTestMachine(t, stateB, []*Transition{
		sleepyDeferred(eventX, stateB, stateC, 30*time.Millisecond),
	}, WithDeferredTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := m.HandleSync(ctx, eventX); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望 DeadlineExceeded, got %v", err)
	}

	// 已入队的事件仍会完成
	time.Sleep(60 * time.Millisecond)
	if m.Current() != stateC {
		t.Errorf("事件应继续处理: got %v, want C", m.Current())
	}
}

func TestMachine_Reset(t *testing.T) {
	var changes []State
	var mu sync.Mutex

	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
	}, WithStateChangeCallback(func(from, to State) {
		mu.Lock()
		changes = append(changes, to)
		mu.Unlock()
	}))

	_ = handleAndWait(t, m, eventX)
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset 失败: %v", err)
	}
	if m.Current() != stateA {
		t.Errorf("重置后状态错误: got %v, want A", m.Current())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || changes[0] != stateB || changes[1] != stateA {
		t.Errorf("状态变更回调错误: %v", changes)
	}
}

func TestMachine_ImmediatePanic(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewImmediate(eventX, stateA, func(context.Context, State) State {
			panic("boom")
		}),
		NewTransition(eventY, stateA, stateB, nil),
	})

	r := handleAndWait(t, m, eventX)
	if !errors.Is(r.Err, ErrTransitionPanic) {
		t.Errorf("期望 ErrTransitionPanic, got %v", r.Err)
	}
	if m.Current() != stateA {
		t.Errorf("panic 后状态不应变化: got %v", m.Current())
	}

	if r := handleAndWait(t, m, eventY); r.Err != nil || r.State != stateB {
		t.Errorf("panic 后应继续处理事件: got %v (%v)", r.State, r.Err)
	}
}

func TestMachine_CallbackPanicDoesNotStopWorker(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, func(State) { panic("completed") }),
		NewTransition(eventY, stateB, stateC, nil),
	})

	m.HandleFunc(eventX, func(Result) { panic("result") })

	if r := handleAndWait(t, m, eventY); r.Err != nil || r.State != stateC {
		t.Errorf("回调 panic 后应继续处理事件: got %v (%v)", r.State, r.Err)
	}
	if m.Metrics().Panics != 2 {
		t.Errorf("期望记录2次 panic, got %d", m.Metrics().Panics)
	}
}

func TestMachine_InvalidTransition(t *testing.T) {
	_, err := NewMachine(stateA, []*Transition{{Event: eventX, From: stateA}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("期望 ErrInvalidTransition, got %v", err)
	}

	m := newTestMachine(t, stateA, nil)
	both := &Transition{
		Event:   eventX,
		From:    stateA,
		Produce: func(context.Context, State) State { return stateB },
		Defer:   func(context.Context, State, func(State)) {},
	}
	if err := m.Add(both); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("期望 ErrInvalidTransition, got %v", err)
	}
	if err := m.Add(nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("期望 ErrInvalidTransition, got %v", err)
	}
}

func TestMachine_HandleAfterClose(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
	})
	_ = m.Close()

	r := handleAndWait(t, m, eventX)
	if !errors.Is(r.Err, ErrMachineUnavailable) {
		t.Errorf("期望 ErrMachineUnavailable, got %v", r.Err)
	}
	if err := m.Trigger(context.Background(), eventX); !errors.Is(err, ErrMachineUnavailable) {
		t.Errorf("期望 ErrMachineUnavailable, got %v", err)
	}
	if m.Current() != stateA {
		t.Errorf("关闭后状态不应变化: got %v", m.Current())
	}

	// 重复关闭安全
	if err := m.Close(); err != nil {
		t.Errorf("重复关闭失败: %v", err)
	}
}

func TestMachine_CloseDrainsQueue(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	m := newTestMachine(t, stateB, []*Transition{
		NewDeferred(eventX, stateB, func(_ context.Context, _ State, resolve func(State)) {
			close(started)
			<-release
			resolve(stateC)
		}),
		NewTransition(eventY, stateB, stateA, nil),
	}, WithDeferredTimeout(time.Second))

	first := make(chan Result, 1)
	queued := make(chan Result, 1)
	m.HandleFunc(eventX, func(r Result) { first <- r })
	<-started
	m.HandleFunc(eventY, func(r Result) { queued <- r })

	_ = m.Close()

	select {
	case r := <-queued:
		if !errors.Is(r.Err, ErrMachineUnavailable) {
			t.Errorf("排队事件期望 ErrMachineUnavailable, got %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("排队事件未得到结果")
	}

	// 关闭后产出函数才完成：回调发现状态机不可用
	close(release)

	select {
	case r := <-first:
		if !errors.Is(r.Err, ErrMachineUnavailable) {
			t.Errorf("延迟转换期望 ErrMachineUnavailable, got %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("延迟转换未得到结果")
	}

	if m.Current() != stateB {
		t.Errorf("关闭后状态不应变化: got %v", m.Current())
	}
}

func TestMachine_CloseThenWatchdog(t *testing.T) {
	started := make(chan struct{})

	m := newTestMachine(t, stateB, []*Transition{
		NewDeferred(eventX, stateB, func(context.Context, State, func(State)) {
			close(started)
		}),
	})

	result := make(chan Result, 2)
	m.HandleFunc(eventX, func(r Result) { result <- r })
	<-started
	_ = m.Close()

	select {
	case r := <-result:
		if !errors.Is(r.Err, ErrCancelled) {
			t.Errorf("期望 ErrCancelled, got %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("看门狗未结束延迟转换")
	}

	time.Sleep(2 * testTimeout)
	if len(result) != 0 {
		t.Error("结果只能回调一次")
	}
}

func TestMachine_Metrics(t *testing.T) {
	m := newTestMachine(t, stateA, []*Transition{
		NewTransition(eventX, stateA, stateB, nil),
		sleepyDeferred(eventX, stateB, stateC, 5*time.Millisecond),
		sleepyDeferred(eventY, stateC, stateA, 4*testTimeout),
	})

	_ = handleAndWait(t, m, eventX)
	_ = handleAndWait(t, m, eventX)
	_ = handleAndWait(t, m, eventY)
	_ = handleAndWait(t, m, eventX)

	s := m.Metrics()
	if s.Handled != 4 {
		t.Errorf("Handled: got %d, want 4", s.Handled)
	}
	if s.Succeeded != 2 {
		t.Errorf("Succeeded: got %d, want 2", s.Succeeded)
	}
	if s.Cancelled != 1 {
		t.Errorf("Cancelled: got %d, want 1", s.Cancelled)
	}
	if s.NoMatch != 1 {
		t.Errorf("NoMatch: got %d, want 1", s.NoMatch)
	}
	if s.DeferredStarted != 2 || s.InFlight != 0 {
		t.Errorf("延迟转换统计错误: started %d, inflight %d", s.DeferredStarted, s.InFlight)
	}
	if s.AvgDeferredTime <= 0 {
		t.Error("AvgDeferredTime 应为正")
	}
}

// 每条日志都带有状态机标识
func TestMachine_LogsCarryMachineID(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMachine(t, stateA, nil, WithLogger(logger.New(&buf, logger.WarnLevel)), WithID("matter-7"))

	_ = handleAndWait(t, m, eventY)

	out := buf.String()
	if !strings.Contains(out, "no transition found") || !strings.Contains(out, "matter-7") {
		t.Errorf("告警日志缺少消息或状态机标识: %q", out)
	}
}
