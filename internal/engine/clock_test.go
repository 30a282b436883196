package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_FreshLog(t *testing.T) {
	c := NewClockAt(0)
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next(), "the first call of a log gets seq 1")
}

func TestClock_Resume(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current())
	assert.Equal(t, int64(101), c.Next(), "resumed clock continues after the last seq")
}

func TestClock_ClaimCallSpan(t *testing.T) {
	c := NewClockAt(10)

	call := c.Next()
	last := c.Claim(3) // two notifications and the outcome
	assert.Equal(t, int64(11), call)
	assert.Equal(t, int64(14), last)
	assert.Equal(t, int64(14), c.Current())

	assert.Equal(t, int64(14), c.Claim(0), "empty claim consumes nothing")
	assert.Equal(t, int64(15), c.Next())
}

func TestClock_Next_Concurrent(t *testing.T) {
	c := NewClockAt(0)
	const goroutines, perGoroutine = 8, 250

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "every seq must be unique")
	assert.Equal(t, int64(goroutines*perGoroutine), c.Current())
}
