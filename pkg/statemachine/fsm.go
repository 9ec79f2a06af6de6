package statemachine

import (
	"context"
	"fmt"
)

// transitionKey 唯一标识一个转换
type transitionKey struct {
	from  State
	event Event
}

type edge struct {
	to       State
	callback func()
}

// FSM 单线程参考实现：与 Machine 的匹配语义相同，
// 但只有固定目标的即时转换，没有锁也没有协程，调用方需保证顺序调用。
type FSM struct {
	current     State
	initial     State
	transitions map[transitionKey]edge
}

var _ StateMachine = (*FSM)(nil)

// NewFSM 创建新的有限状态机
func NewFSM(initial State) *FSM {
	return &FSM{
		current:     initial,
		initial:     initial,
		transitions: make(map[transitionKey]edge),
	}
}

// Current 返回当前状态
func (f *FSM) Current() State {
	return f.current
}

// AddTransition 添加状态转换规则，callback 可为 nil
func (f *FSM) AddTransition(from, to State, event Event, callback func()) error {
	key := transitionKey{from: from, event: event}
	if _, exists := f.transitions[key]; exists {
		return ErrDuplicateTransition
	}

	f.transitions[key] = edge{to: to, callback: callback}
	return nil
}

// Can 检查是否可以触发事件
func (f *FSM) Can(event Event) bool {
	_, exists := f.transitions[transitionKey{from: f.current, event: event}]
	return exists
}

// On 处理事件，无匹配时状态不变
func (f *FSM) On(event Event) error {
	e, exists := f.transitions[transitionKey{from: f.current, event: event}]
	if !exists {
		return fmt.Errorf("%w: event %q from state %q", ErrNoMatchingTransition, event, f.current)
	}

	f.current = e.to
	if e.callback != nil {
		e.callback()
	}
	return nil
}

// Trigger 实现 StateMachine，ctx 仅为接口兼容
func (f *FSM) Trigger(_ context.Context, event Event) error {
	return f.On(event)
}

// Reset 重置到初始状态
func (f *FSM) Reset() error {
	f.current = f.initial
	return nil
}
