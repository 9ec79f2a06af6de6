package statemachine

import "context"

// State 表示状态机中的状态，按值比较
type State string

// Event 表示触发状态转换的事件，按值比较
type Event string

// ProduceFunc 即时转换的产出函数，同步返回目标状态
type ProduceFunc func(ctx context.Context, from State) State

// DeferFunc 延迟转换的产出函数，完成后调用 resolve 交付目标状态。
// ctx 在看门狗超时或状态机关闭时被取消，实现方应据此停止工作。
type DeferFunc func(ctx context.Context, from State, resolve func(State))

// CompletedFunc 转换成功后的回调
type CompletedFunc func(state State)

// Result 一次事件处理的结果
type Result struct {
	State State
	Err   error
}

// ResultFunc 接收事件处理结果
type ResultFunc func(Result)

// StateMachine 定义所有状态机的核心接口
type StateMachine interface {
	// Current 返回当前状态
	Current() State

	// Trigger 触发事件以转换状态
	Trigger(ctx context.Context, event Event) error

	// Can 检查是否可以从当前状态触发事件
	Can(event Event) bool

	// Reset 重置状态机到初始状态
	Reset() error
}
