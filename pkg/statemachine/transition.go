package statemachine

import (
	"context"
	"fmt"
)

// Transition 定义一条状态转换规则。
// Event 与 From 构成匹配键；Produce（即时）与 Defer（延迟）二选一。
// 转换的身份是其指针，重复注册同一指针是幂等的。
type Transition struct {
	Event Event
	From  State

	Produce ProduceFunc
	Defer   DeferFunc

	// OnCancel 看门狗超时时调用，最多一次
	OnCancel func()

	// OnCompleted 状态更新并通知调用方之后调用
	OnCompleted CompletedFunc
}

// NewTransition 创建目标状态固定的即时转换
func NewTransition(event Event, from, to State, onCompleted CompletedFunc) *Transition {
	return &Transition{
		Event: event,
		From:  from,
		Produce: func(context.Context, State) State {
			return to
		},
		OnCompleted: onCompleted,
	}
}

// NewImmediate 创建即时转换
func NewImmediate(event Event, from State, produce ProduceFunc) *Transition {
	return &Transition{Event: event, From: from, Produce: produce}
}

// NewDeferred 创建延迟转换
func NewDeferred(event Event, from State, fn DeferFunc) *Transition {
	return &Transition{Event: event, From: from, Defer: fn}
}

// IsDeferred 是否为延迟转换
func (t *Transition) IsDeferred() bool {
	return t.Defer != nil
}

// Validate 检查转换定义
func (t *Transition) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil transition", ErrInvalidTransition)
	}
	if (t.Produce == nil) == (t.Defer == nil) {
		return fmt.Errorf("%w: event %q from %q must set exactly one of Produce or Defer",
			ErrInvalidTransition, t.Event, t.From)
	}
	return nil
}

func (t *Transition) String() string {
	kind := "immediate"
	if t.IsDeferred() {
		kind = "deferred"
	}
	return fmt.Sprintf("%s(%s, %s)", kind, t.Event, t.From)
}

func (t *Transition) completed(state State) {
	if t.OnCompleted != nil {
		t.OnCompleted(state)
	}
}
