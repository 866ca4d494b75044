package ioworker

import (
	"testing"
	"time"
)

type stubItem struct {
	id         int64
	bound      int
	unbound    int
	lastCtx    Context
	idleChecks int
}

func (s *stubItem) ID() int64                          { return s.id }
func (s *stubItem) OnBind(ctx Context)                 { s.bound++; s.lastCtx = ctx }
func (s *stubItem) OnUnbind()                           { s.unbound++ }
func (s *stubItem) OnItemIdleCheck(_ time.Duration)     { s.idleChecks++ }

func TestItemRegistry_BindRejectsDoubleBind(t *testing.T) {
	r := newItemRegistry()
	ctx := NewContext(1, nil)
	item := &stubItem{id: 1}

	if err := r.bind(item, ctx); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := r.bind(item, ctx); err != ErrAlreadyBound {
		t.Fatalf("second bind: got %v, want ErrAlreadyBound", err)
	}
	if item.bound != 1 {
		t.Fatalf("OnBind called %d times, want 1", item.bound)
	}
}

func TestItemRegistry_UnbindUnknown(t *testing.T) {
	r := newItemRegistry()
	if err := r.unbind(42); err != ErrNotBound {
		t.Fatalf("unbind unknown: got %v, want ErrNotBound", err)
	}
}

func TestItemRegistry_UnbindInvokesHook(t *testing.T) {
	r := newItemRegistry()
	item := &stubItem{id: 7}
	_ = r.bind(item, NewContext(7, nil))

	if err := r.unbind(7); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if item.unbound != 1 {
		t.Fatalf("OnUnbind called %d times, want 1", item.unbound)
	}
	if _, ok := r.get(7); ok {
		t.Fatal("item still present after unbind")
	}
}

func TestItemRegistry_ReplaceUnknownReturnsFalse(t *testing.T) {
	r := newItemRegistry()
	ok, err := r.replace(&stubItem{id: 99}, NewContext(99, nil))
	if err != ErrNotBound {
		t.Fatalf("replace unknown: got err %v, want ErrNotBound", err)
	}
	if ok {
		t.Fatal("replace unknown reported ok=true")
	}
}

func TestItemRegistry_ReplaceSwapsAndInvokesHooks(t *testing.T) {
	r := newItemRegistry()
	oldItem := &stubItem{id: 3}
	newItem := &stubItem{id: 3}
	_ = r.bind(oldItem, NewContext(3, nil))

	ok, err := r.replace(newItem, NewContext(3, nil))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !ok {
		t.Fatal("replace reported ok=false for an existing id")
	}
	if oldItem.unbound != 1 {
		t.Fatalf("old item OnUnbind called %d times, want 1", oldItem.unbound)
	}
	if newItem.bound != 1 {
		t.Fatalf("new item OnBind called %d times, want 1", newItem.bound)
	}
	got, ok := r.get(3)
	if !ok || got != WorkerItem(newItem) {
		t.Fatal("registry does not hold the replacement item")
	}
}

func TestItemRegistry_Size(t *testing.T) {
	r := newItemRegistry()
	if r.size() != 0 {
		t.Fatalf("size = %d, want 0", r.size())
	}
	_ = r.bind(&stubItem{id: 1}, NewContext(1, nil))
	_ = r.bind(&stubItem{id: 2}, NewContext(2, nil))
	if r.size() != 2 {
		t.Fatalf("size = %d, want 2", r.size())
	}
}
