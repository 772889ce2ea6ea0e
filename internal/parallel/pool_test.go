package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoolWorkers(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		p := NewPool(tt.in)
		if p.Workers() != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.in, p.Workers(), tt.want)
		}
		p.Close()
	}
}

func TestRunWaitsForAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var n atomic.Int64
	tasks := make([]func(), 100)
	for i := range tasks {
		tasks[i] = func() { n.Add(1) }
	}
	p.Run(tasks)
	if n.Load() != 100 {
		t.Errorf("ran %d tasks, want 100", n.Load())
	}
}

func TestRunDistinctSlots(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	out := make([]int, 50)
	tasks := make([]func(), len(out))
	for i := range tasks {
		tasks[i] = func() { out[i] = i * i }
	}
	p.Run(tasks)
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestRunSlowTasksAreStolen(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var n atomic.Int64
	tasks := make([]func(), 16)
	for i := range tasks {
		tasks[i] = func() {
			if i%4 == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			n.Add(1)
		}
	}
	p.Run(tasks)
	if n.Load() != 16 {
		t.Errorf("ran %d tasks, want 16", n.Load())
	}
}

func TestRunAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()

	ran := 0
	p.Run([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran %d tasks on a closed pool, want 2", ran)
	}
}

func TestRunConcurrentCallers(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var n atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks := make([]func(), 10)
			for i := range tasks {
				tasks[i] = func() { n.Add(1) }
			}
			p.Run(tasks)
		}()
	}
	wg.Wait()
	if n.Load() != 80 {
		t.Errorf("ran %d tasks, want 80", n.Load())
	}
}
