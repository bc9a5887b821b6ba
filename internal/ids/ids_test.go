package ids

import (
	"sync"
	"testing"
)

func TestNewIsUniqueAndOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if id <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	const n = 200
	var wg sync.WaitGroup
	seen := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- New()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]struct{}, n)
	for id := range seen {
		if _, dup := unique[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		unique[id] = struct{}{}
	}
}
