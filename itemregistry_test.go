package mdsession

import (
	"runtime"
	"testing"
)

func TestItemRegistryRegisterAndLookup(t *testing.T) {
	r := newItemRegistry()
	h, req := r.register(ItemKindItem, "closure-value", 0)
	if h == 0 {
		t.Fatal("want non-zero handle")
	}
	got, ok := r.lookup(h)
	if !ok || got != req {
		t.Fatalf("lookup(%d) = %v, %v; want %v, true", h, got, ok, req)
	}
}

func TestItemRegistryUnregisterRemovesImmediately(t *testing.T) {
	r := newItemRegistry()
	h, _ := r.register(ItemKindLogin, nil, 0)
	r.unregister(h)
	if _, ok := r.lookup(h); ok {
		t.Fatal("want lookup to miss after unregister")
	}
}

// TestItemRegistryHandlesSurviveGC proves a registered Handle stays
// valid across GC cycles even once the caller has dropped every
// reference of its own to the returned *itemRequest -- the registry
// itself must be the strong holder, or the Handle would go invalid at
// an arbitrary GC cycle independent of whether the stream is still
// open.
func TestItemRegistryHandlesSurviveGC(t *testing.T) {
	r := newItemRegistry()
	var handles []Handle
	func() {
		for i := 0; i < 10; i++ {
			h, _ := r.register(ItemKindItem, nil, 0)
			handles = append(handles, h)
		}
	}()

	runtime.GC()
	runtime.GC()

	for _, h := range handles {
		if _, ok := r.lookup(h); !ok {
			t.Fatalf("lookup(%d) missed after GC, want the registry to retain it until unregister", h)
		}
	}
}

func TestItemRegistryCloseAllClearsEverything(t *testing.T) {
	r := newItemRegistry()
	r.register(ItemKindDirectory, nil, 0)
	r.register(ItemKindDictionary, nil, 0)
	r.closeAll()
	r.mu.RLock()
	n := len(r.data)
	r.mu.RUnlock()
	if n != 0 {
		t.Fatalf("want 0 entries after closeAll, got %d", n)
	}
}
