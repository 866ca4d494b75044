package ioworker

import "testing"

func TestInitializerRegistry_RegisterIsIdempotent(t *testing.T) {
	r := newInitializerRegistry()
	calls := 0
	factory := func() (*Initializer, error) {
		calls++
		return &Initializer{}, nil
	}

	already, ok, err := r.register("srv", factory)
	if err != nil || !ok || already {
		t.Fatalf("first register: already=%v ok=%v err=%v", already, ok, err)
	}
	already, ok, err = r.register("srv", factory)
	if err != nil || !ok || !already {
		t.Fatalf("second register: already=%v ok=%v err=%v, want already=true ok=true", already, ok, err)
	}
	if calls != 1 {
		t.Fatalf("factory invoked %d times, want 1", calls)
	}
}

func TestInitializerRegistry_RegisterFailurePropagates(t *testing.T) {
	r := newInitializerRegistry()
	wantErr := ErrInitFailed
	_, ok, err := r.register("srv", func() (*Initializer, error) { return nil, wantErr })
	if ok {
		t.Fatal("register reported ok=true on factory error")
	}
	if err != wantErr {
		t.Fatalf("register err = %v, want %v", err, wantErr)
	}
	if _, present := r.get("srv"); present {
		t.Fatal("server should not be registered after a factory error")
	}
}

func TestInitializerRegistry_RegisterNilInitializer(t *testing.T) {
	r := newInitializerRegistry()
	_, ok, err := r.register("srv", func() (*Initializer, error) { return nil, nil })
	if ok || err != ErrInitFailed {
		t.Fatalf("register nil initializer: ok=%v err=%v, want ok=false err=ErrInitFailed", ok, err)
	}
}

func TestInitializerRegistry_UnregisterUnknown(t *testing.T) {
	r := newInitializerRegistry()
	if _, ok := r.unregister("ghost"); ok {
		t.Fatal("unregister should report false for an unknown server")
	}
}

func TestInitializerRegistry_UnregisterReturnsAndDrops(t *testing.T) {
	r := newInitializerRegistry()
	init := &Initializer{}
	_, _, _ = r.register("srv", func() (*Initializer, error) { return init, nil })

	got, ok := r.unregister("srv")
	if !ok || got != init {
		t.Fatalf("unregister: got %v, %v", got, ok)
	}
	if _, present := r.get("srv"); present {
		t.Fatal("server still present after unregister")
	}
}
