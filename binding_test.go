package shaderjob

import (
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(0); ok {
		t.Fatal("Lookup on an empty registry succeeded")
	}
	r.Register(2, Binding{Key: "ns/2"})
	r.Register(0, Binding{Key: "ns/0"})
	r.Register(2, Binding{Key: "ns/2", Generation: 5})

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	b, ok := r.Lookup(2)
	if !ok || b.Generation != 5 {
		t.Errorf("Lookup(2) = %+v, %v; want the last registration", b, ok)
	}
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("IDs() = %v, want [0 2]", ids)
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.Register(id, Binding{})
			r.Lookup(id)
		}(i)
	}
	wg.Wait()
	if r.Len() != 8 {
		t.Errorf("Len() = %d, want 8", r.Len())
	}
}
