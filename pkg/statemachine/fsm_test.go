package statemachine

import (
	"context"
	"errors"
	"testing"
)

func TestFSM_BasicTransition(t *testing.T) {
	fsm := NewFSM("idle")

	err := fsm.AddTransition("idle", "running", "start", nil)
	if err != nil {
		t.Fatalf("添加转换失败: %v", err)
	}

	err = fsm.AddTransition("running", "idle", "stop", nil)
	if err != nil {
		t.Fatalf("添加转换失败: %v", err)
	}

	if fsm.Current() != "idle" {
		t.Errorf("初始状态错误: got %v, want idle", fsm.Current())
	}

	ctx := context.Background()
	err = fsm.Trigger(ctx, "start")
	if err != nil {
		t.Fatalf("触发事件失败: %v", err)
	}

	if fsm.Current() != "running" {
		t.Errorf("状态转换失败: got %v, want running", fsm.Current())
	}
}

func TestFSM_NoMatchingTransition(t *testing.T) {
	fsm := NewFSM("idle")
	_ = fsm.AddTransition("idle", "running", "start", nil)

	err := fsm.On("invalid")
	if !errors.Is(err, ErrNoMatchingTransition) {
		t.Errorf("期望 ErrNoMatchingTransition, got %v", err)
	}
	if fsm.Current() != "idle" {
		t.Errorf("无匹配时状态不应变化: got %v", fsm.Current())
	}
}

func TestFSM_DuplicateTransition(t *testing.T) {
	fsm := NewFSM("idle")
	_ = fsm.AddTransition("idle", "running", "start", nil)

	if err := fsm.AddTransition("idle", "stopped", "start", nil); err != ErrDuplicateTransition {
		t.Errorf("期望 ErrDuplicateTransition, got %v", err)
	}
}

func TestFSM_Callback(t *testing.T) {
	fsm := NewFSM("liquid")

	var seen State
	_ = fsm.AddTransition("liquid", "solid", "freeze", func() {
		seen = fsm.Current()
	})

	_ = fsm.On("freeze")

	if seen != "solid" {
		t.Errorf("回调应在状态更新后执行: got %v, want solid", seen)
	}
}

func TestFSM_Reset(t *testing.T) {
	fsm := NewFSM("idle")
	_ = fsm.AddTransition("idle", "running", "start", nil)

	_ = fsm.On("start")

	if fsm.Current() != "running" {
		t.Errorf("状态错误: got %v, want running", fsm.Current())
	}

	_ = fsm.Reset()

	if fsm.Current() != "idle" {
		t.Errorf("重置后状态错误: got %v, want idle", fsm.Current())
	}
}

func TestFSM_Can(t *testing.T) {
	fsm := NewFSM("idle")
	_ = fsm.AddTransition("idle", "running", "start", nil)

	if !fsm.Can("start") {
		t.Error("应该可以触发 start 事件")
	}

	if fsm.Can("stop") {
		t.Error("不应该可以触发 stop 事件")
	}
}

func TestFSM_StatesOfMatter(t *testing.T) {
	fsm := newMatterFSM()

	events := []Event{
		"ionize", "freeze", "sublimate", "ionize", "freeze", "boil",
		"deionize", "condensate", "boil", "deposit", "melt",
	}
	want := []State{
		"liquid", "solid", "gas", "plasma", "plasma", "plasma",
		"gas", "liquid", "gas", "solid", "liquid",
	}

	for i, e := range events {
		_ = fsm.On(e)
		if fsm.Current() != want[i] {
			t.Fatalf("第 %d 个事件 %s 后状态错误: got %v, want %v", i, e, fsm.Current(), want[i])
		}
	}
}

// matterEdges 物态变化：from, to, event
var matterEdges = [][3]string{
	{"solid", "liquid", "melt"},
	{"solid", "gas", "sublimate"},
	{"gas", "solid", "deposit"},
	{"gas", "liquid", "condensate"},
	{"liquid", "gas", "boil"},
	{"liquid", "solid", "freeze"},
	{"gas", "plasma", "ionize"},
	{"plasma", "gas", "deionize"},
}

func newMatterFSM() *FSM {
	fsm := NewFSM("liquid")
	for _, e := range matterEdges {
		_ = fsm.AddTransition(State(e[0]), State(e[1]), Event(e[2]), nil)
	}
	return fsm
}
