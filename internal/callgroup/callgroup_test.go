package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplication(t *testing.T) {
	var g Group[int, string]
	var calls atomic.Int32
	started := make(chan struct{})

	fn := func() (string, error) {
		calls.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "result", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	// First caller starts the work.
	wg.Go(func() {
		results[0], errs[0] = g.Do(1, fn)
	})

	// Wait for fn to start, then pile on.
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			results[i], errs[i] = g.Do(1, fn)
		})
	}

	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Errorf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Errorf("caller %d got %q, want %q", i, results[i], "result")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, key := range []int{1, 2, 3} {
		wg.Go(func() {
			g.Do(key, fn)
		})
	}

	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn called %d times, want 3", got)
	}
}

func TestErrorShared(t *testing.T) {
	var g Group[string, []byte]
	wantErr := errors.New("decode failed")
	started := make(chan struct{})

	fn := func() ([]byte, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return nil, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	wg.Go(func() {
		_, errs[0] = g.Do("k", fn)
	})
	<-started
	for i := 1; i < 4; i++ {
		wg.Go(func() {
			_, errs[i] = g.Do("k", fn)
		})
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("caller %d got %v, want %v", i, err, wantErr)
		}
	}
}

func TestKeyForgottenAfterReturn(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		return int(calls.Add(1)), nil
	}

	first, _ := g.Do(7, fn)
	second, _ := g.Do(7, fn)

	if first == second {
		t.Errorf("sequential calls shared a result: %d, %d", first, second)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fn called %d times, want 2", got)
	}
}
