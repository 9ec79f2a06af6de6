package statemachine

import (
	"sync"
	"sync/atomic"
)

type table map[Event][]*Transition

// registry 事件到转换集合的索引。
// 写时复制：读取方拿到的快照不可变，写入方串行发布新表。
type registry struct {
	mu    sync.Mutex
	table atomic.Pointer[table]
}

func newRegistry(transitions []*Transition) *registry {
	r := &registry{}
	t := make(table)
	for _, tr := range transitions {
		t[tr.Event] = appendUnique(t[tr.Event], tr)
	}
	r.table.Store(&t)
	return r
}

// register 将转换并入 t.Event 下的集合
func (r *registry) register(tr *Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.table.Load()
	next := make(table, len(old)+1)
	for k, v := range old {
		next[k] = v
	}

	// appendUnique 总是复制，旧快照中的切片保持不变
	next[tr.Event] = appendUnique(old[tr.Event], tr)
	r.table.Store(&next)
}

// candidates 返回该事件下按注册顺序排列的转换
func (r *registry) candidates(e Event) []*Transition {
	return (*r.table.Load())[e]
}

// match 返回第一个源状态等于 current 的转换，先注册者优先
func (r *registry) match(e Event, current State) *Transition {
	for _, tr := range r.candidates(e) {
		if tr.From == current {
			return tr
		}
	}
	return nil
}

func (r *registry) size() int {
	n := 0
	for _, v := range *r.table.Load() {
		n += len(v)
	}
	return n
}

func appendUnique(set []*Transition, tr *Transition) []*Transition {
	for _, existing := range set {
		if existing == tr {
			return set
		}
	}
	next := make([]*Transition, len(set), len(set)+1)
	copy(next, set)
	return append(next, tr)
}
