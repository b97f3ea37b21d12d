package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/randomizedcoder/go-snippet-exec/internal/registry"
)

// countingHandle records how often Terminate was called.
type countingHandle struct {
	terminated atomic.Int32
}

func (h *countingHandle) Terminate() {
	h.terminated.Add(1)
}

func TestRegisterAndLookup(t *testing.T) {
	reg := registry.New()
	h := &countingHandle{}

	if err := reg.Register("p1", h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := reg.Lookup("p1")
	if !ok {
		t.Fatal("Lookup(p1) not found")
	}
	if got != h {
		t.Error("Lookup returned a different handle")
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Error("Lookup(missing) found, want not found")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := registry.New()
	first := &countingHandle{}

	if err := reg.Register("p1", first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := reg.Register("p1", &countingHandle{})
	if !errors.Is(err, registry.ErrAlreadyRunning) {
		t.Fatalf("second Register error = %v, want ErrAlreadyRunning", err)
	}

	got, _ := reg.Lookup("p1")
	if got != first {
		t.Error("duplicate Register replaced the original handle")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	reg := registry.New()
	reg.Register("p1", &countingHandle{})

	reg.Unregister("p1")
	reg.Unregister("p1")
	reg.Unregister("never-registered")

	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}

	// The ID is free again.
	if err := reg.Register("p1", &countingHandle{}); err != nil {
		t.Errorf("Register after Unregister: %v", err)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name      string
		register  bool
		cancels   int
		wantErr   error
		wantCalls int32
	}{
		{"registered", true, 1, nil, 1},
		{"registered twice cancelled", true, 2, nil, 2},
		{"unknown", false, 1, registry.ErrNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			h := &countingHandle{}
			if tt.register {
				reg.Register("p1", h)
			}

			var err error
			for i := 0; i < tt.cancels; i++ {
				err = reg.Cancel("p1")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Cancel error = %v, want %v", err, tt.wantErr)
			}
			if got := h.terminated.Load(); got != tt.wantCalls {
				t.Errorf("Terminate calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestCancel_AfterUnregister(t *testing.T) {
	reg := registry.New()
	h := &countingHandle{}
	reg.Register("p1", h)
	reg.Unregister("p1")

	if err := reg.Cancel("p1"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Cancel error = %v, want ErrNotFound", err)
	}
	if h.terminated.Load() != 0 {
		t.Error("Terminate called on an unregistered handle")
	}
}

func TestIDs_Sorted(t *testing.T) {
	reg := registry.New()
	for _, id := range []string{"c", "a", "b"} {
		reg.Register(id, &countingHandle{})
	}

	ids := reg.IDs()
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := registry.New()
	const workers = 50

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Everyone races for the same ID; exactly one wins.
			if err := reg.Register("shared", &countingHandle{}); err == nil {
				accepted.Add(1)
			}
			id := fmt.Sprintf("run-%d", i)
			reg.Register(id, &countingHandle{})
			reg.Cancel(id)
			reg.Cancel(id)
			reg.Unregister(id)
			reg.Unregister(id)
		}(i)
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("accepted registrations for shared ID = %d, want 1", accepted.Load())
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (only the shared run)", reg.Len())
	}
}
