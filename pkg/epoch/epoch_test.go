package epoch_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxrts/aura-sub005/pkg/epoch"
)

func TestCheckFencesStaleEpochs(t *testing.T) {
	c := epoch.NewClock(epoch.Initial)
	assert.NoError(t, c.Check(epoch.Initial))

	c.Observe(epoch.Initial + 1)
	assert.ErrorIs(t, c.Check(epoch.Initial), epoch.ErrStale)
	assert.NoError(t, c.Check(epoch.Initial+1))
	// A higher epoch than locally known is not stale; this replica is
	// simply behind.
	assert.NoError(t, c.Check(epoch.Initial+5))
}

func TestObserveIsMonotonic(t *testing.T) {
	c := epoch.NewClock(epoch.Initial)
	c.Observe(5)
	c.Observe(3)
	assert.Equal(t, uint64(5), c.Current())
}

func TestBump(t *testing.T) {
	c := epoch.NewClock(epoch.Initial)
	assert.Equal(t, epoch.Initial+1, c.Bump())
	assert.Equal(t, epoch.Initial+1, c.Current())
}

func TestNewClockFloorsAtInitial(t *testing.T) {
	assert.Equal(t, epoch.Initial, epoch.NewClock(0).Current())
}

func TestClockIsConcurrencySafe(t *testing.T) {
	c := epoch.NewClock(epoch.Initial)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Bump()
			_ = c.Current()
			c.Observe(3)
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, c.Current(), epoch.Initial+uint64(16))
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a := epoch.NewSessionID()
	b := epoch.NewSessionID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
