package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func TestFakeClock_Frozen(t *testing.T) {
	c := NewFakeClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch, c.Now())
}

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	c := NewFakeClock(epoch)
	c.Advance(36 * time.Hour)
	assert.Equal(t, epoch.Add(36*time.Hour), c.Now())

	c.Set(epoch)
	assert.Equal(t, epoch, c.Now())
}

func TestFakeClock_Concurrent(t *testing.T) {
	c := NewFakeClock(epoch)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, epoch.Add(50*time.Second), c.Now())
}
