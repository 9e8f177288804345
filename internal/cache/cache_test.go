package cache

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHitAvoidsLoad(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	var loads atomic.Int32
	load := func() ([]byte, error) {
		loads.Add(1)
		return []byte{1, 2, 3}, nil
	}

	for range 5 {
		data, err := c.Get(42, load)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, []byte{1, 2, 3}) {
			t.Fatalf("got %v", data)
		}
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("load ran %d times, want 1", got)
	}
}

func TestConcurrentMissDecodesOnce(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	var loads atomic.Int32
	started := make(chan struct{})
	load := func() ([]byte, error) {
		loads.Add(1)
		close(started)
		time.Sleep(30 * time.Millisecond)
		return []byte("decoded"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([][]byte, n)

	wg.Go(func() {
		results[0], _ = c.Get(7, load)
	})
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			results[i], _ = c.Get(7, load)
		})
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("load ran %d times under concurrency, want 1", got)
	}
	for i, r := range results {
		if string(r) != "decoded" {
			t.Errorf("caller %d got %q", i, r)
		}
	}
}

func TestFailedLoadNotCached(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	wantErr := errors.New("io failure")
	var loads atomic.Int32

	for range 2 {
		_, err := c.Get(1, func() ([]byte, error) {
			loads.Add(1)
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("err = %v", err)
		}
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("failed load cached: ran %d times, want 2", got)
	}
}

func TestInvalidate(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	version := 0
	load := func() ([]byte, error) {
		version++
		return []byte{byte(version)}, nil
	}

	first, _ := c.Get(3, load)
	c.Invalidate(3)
	second, _ := c.Get(3, load)

	if bytes.Equal(first, second) {
		t.Error("invalidated entry served stale data")
	}
}

func TestLRUEviction(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	var loads atomic.Int32
	load := func() ([]byte, error) {
		loads.Add(1)
		return []byte{0}, nil
	}

	c.Get(1, load)
	c.Get(2, load)
	c.Get(3, load) // evicts 1
	c.Get(1, load) // reloads

	if got := loads.Load(); got != 4 {
		t.Errorf("loads = %d, want 4", got)
	}
}
