package app

import (
	"testing"
)

type fakeSink struct {
	frames [][]byte
	kicks  []int
}

func (s *fakeSink) TrySend(frame []byte) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Kick(code int, _ string) {
	s.kicks = append(s.kicks, code)
}

func TestRegistryBindGet(t *testing.T) {
	r := NewRegistry()
	a := &fakeSink{}

	if _, ok := r.Get("alice"); ok {
		t.Fatal("Get on empty registry reported a sink")
	}
	r.Bind("alice", a)
	if got, ok := r.Get("alice"); !ok || got != Sink(a) {
		t.Fatalf("Get = %v, %v; want bound sink", got, ok)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryBindReplaces(t *testing.T) {
	r := NewRegistry()
	old, fresh := &fakeSink{}, &fakeSink{}

	r.Bind("alice", old)
	r.Bind("alice", fresh)
	if got, _ := r.Get("alice"); got != Sink(fresh) {
		t.Fatal("Bind did not replace the previous sink")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryUnbindOnlyCurrent(t *testing.T) {
	r := NewRegistry()
	old, fresh := &fakeSink{}, &fakeSink{}

	r.Bind("alice", old)
	r.Bind("alice", fresh)

	// The stale connection's deferred cleanup must not evict the
	// fresh session.
	r.Unbind("alice", old)
	if _, ok := r.Get("alice"); !ok {
		t.Fatal("stale Unbind evicted the fresh session")
	}

	r.Unbind("alice", fresh)
	if _, ok := r.Get("alice"); ok {
		t.Fatal("current Unbind left the session bound")
	}

	// Second call is a no-op.
	r.Unbind("alice", fresh)
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}
