package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/cyclear/pkg/metrics"
)

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("computes once then serves from cache", func(t *testing.T) {
		m := New(10, metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry())))
		var calls int
		fn := func(context.Context) ([]int, error) {
			calls++
			return []int{1, 2, 3}, nil
		}

		key := NewKey("TeamTotals", 1, nil, time.Time{}, time.Time{})
		for i := 0; i < 3; i++ {
			got, err := Do(ctx, m, key, fn)
			if err != nil {
				t.Fatalf("Do failed: %v", err)
			}
			if len(got) != 3 {
				t.Errorf("Do = %v, want 3 items", got)
			}
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("distinct keys are cached separately", func(t *testing.T) {
		m := New(10, nil)
		team := int64(4)
		a := NewKey("TeamTotals", 1, nil, time.Time{}, time.Time{})
		b := NewKey("TeamTotals", 1, &team, time.Time{}, time.Time{})

		va, _ := Do(ctx, m, a, func(context.Context) (int, error) { return 1, nil })
		vb, _ := Do(ctx, m, b, func(context.Context) (int, error) { return 2, nil })
		if va != 1 || vb != 2 {
			t.Errorf("values = %d, %d, want 1, 2", va, vb)
		}
		if m.Len() != 2 {
			t.Errorf("Len() = %d, want 2", m.Len())
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		m := New(10, nil)
		key := Key{Method: "DraftTotals"}
		boom := errors.New("boom")

		if _, err := Do(ctx, m, key, func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("Do error = %v, want boom", err)
		}
		got, err := Do(ctx, m, key, func(context.Context) (int, error) { return 7, nil })
		if err != nil || got != 7 {
			t.Errorf("Do = %d, %v, want 7", got, err)
		}
	})

	t.Run("invalidate forces recomputation", func(t *testing.T) {
		m := New(10, nil)
		key := Key{Method: "LostDraftPoints"}
		var n int
		fn := func(context.Context) (int, error) { n++; return n, nil }

		first, _ := Do(ctx, m, key, fn)
		m.Invalidate()
		second, _ := Do(ctx, m, key, fn)
		if first != 1 || second != 2 {
			t.Errorf("values = %d, %d, want 1, 2", first, second)
		}
	})

	t.Run("computation spanning an invalidation is not stored", func(t *testing.T) {
		m := New(10, nil)
		key := Key{Method: "BestTransfers"}
		started := make(chan struct{})
		release := make(chan struct{})

		done := make(chan int)
		go func() {
			v, _ := Do(ctx, m, key, func(context.Context) (int, error) {
				close(started)
				<-release
				return 1, nil
			})
			done <- v
		}()

		<-started
		m.Invalidate()
		close(release)
		if v := <-done; v != 1 {
			t.Errorf("in-flight caller got %d, want 1", v)
		}

		got, _ := Do(ctx, m, key, func(context.Context) (int, error) { return 2, nil })
		if got != 2 {
			t.Errorf("Do after invalidation = %d, want fresh value 2", got)
		}
	})

	t.Run("concurrent callers share one computation", func(t *testing.T) {
		m := New(10, nil)
		key := Key{Method: "PeriodTotals"}
		var calls atomic.Int32
		gate := make(chan struct{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				Do(ctx, m, key, func(context.Context) (int, error) {
					calls.Add(1)
					<-gate
					return 1, nil
				})
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(gate)
		wg.Wait()

		if c := calls.Load(); c < 1 || c > 8 {
			t.Errorf("calls = %d, want between 1 and 8", c)
		}
		if m.Len() != 1 {
			t.Errorf("Len() = %d, want 1", m.Len())
		}
	})
}

func TestDoCancellation(t *testing.T) {
	m := New(10, nil)
	key := Key{Method: "TeamTotals"}
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error)
	go func() {
		_, err := Do(ctxA, m, key, fn)
		errA <- err
	}()

	<-started
	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}

	type result struct {
		v   int
		err error
	}
	resB := make(chan result)
	go func() {
		v, err := Do(context.Background(), m, key, fn)
		resB <- result{v, err}
	}()
	close(release)

	if r := <-resB; r.err != nil || r.v != 42 {
		t.Errorf("second caller = %d, %v, want 42", r.v, r.err)
	}
	if c := calls.Load(); c != 1 {
		t.Errorf("calls = %d, want 1", c)
	}
}

type counterSource struct {
	v   atomic.Int64
	err error
}

func (s *counterSource) DataVersion(context.Context) (int64, error) {
	return s.v.Load(), s.err
}

func TestVersionSource(t *testing.T) {
	ctx := context.Background()

	t.Run("external write drops cached entries", func(t *testing.T) {
		src := &counterSource{}
		m := New(10, nil, WithVersionSource(src))
		key := Key{Method: "TeamTotals", SeasonID: 1}
		var n int
		fn := func(context.Context) (int, error) { n++; return n, nil }

		first, _ := Do(ctx, m, key, fn)
		again, _ := Do(ctx, m, key, fn)
		if first != 1 || again != 1 {
			t.Fatalf("values = %d, %d, want cached 1", first, again)
		}

		src.v.Add(1)
		fresh, err := Do(ctx, m, key, fn)
		if err != nil || fresh != 2 {
			t.Errorf("Do after version change = %d, %v, want 2", fresh, err)
		}
	})

	t.Run("version read failure is returned", func(t *testing.T) {
		boom := errors.New("database is closed")
		m := New(10, nil, WithVersionSource(&counterSource{err: boom}))
		_, err := Do(ctx, m, Key{Method: "DraftTotals"}, func(context.Context) (int, error) { return 1, nil })
		if !errors.Is(err, boom) {
			t.Errorf("Do error = %v, want %v", err, boom)
		}
	})
}
