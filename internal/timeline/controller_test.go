package timeline

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadBounds(t *testing.T) {
	_, err := New(10, 0, 0)
	assert.Error(t, err)
	_, err = New(math.NaN(), 1, 0)
	assert.Error(t, err)
	_, err = New(0, math.Inf(1), 0)
	assert.Error(t, err)
}

func TestSetTimeWithinBounds(t *testing.T) {
	c, err := New(0, 1439, 0)
	require.NoError(t, err)

	for _, v := range []float64{0, 0.25, 5.9, 720, 1438.999, 1439} {
		c.SetTime(v)
		assert.Equal(t, v, c.CurrentTime())
	}
}

func TestSetTimeClamps(t *testing.T) {
	c, err := New(0, 1439, 0)
	require.NoError(t, err)

	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{-1e9, 0},
		{1440, 1439},
		{math.Inf(1), 1439},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		tick := c.SetTime(tt.in)
		assert.Equal(t, tt.want, tick.Time)
		assert.Equal(t, tt.want, c.CurrentTime())
	}
}

func TestInitialTimeIsClamped(t *testing.T) {
	c, err := New(10, 20, 99)
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.CurrentTime())
	assert.Equal(t, uint64(0), c.Current().Seq)

	min, max := c.Bounds()
	assert.Equal(t, 10.0, min)
	assert.Equal(t, 20.0, max)
}

func TestSeqIncreases(t *testing.T) {
	c, _ := New(0, 10, 0)
	a := c.SetTime(3)
	b := c.SetTime(3)
	assert.Equal(t, a.Seq+1, b.Seq)
}

func TestSubscriptionKeepsLatestOnly(t *testing.T) {
	c, _ := New(0, 100, 0)
	sub := c.Subscribe()
	defer sub.Close()

	// primed with the current tick
	first := <-sub.C()
	assert.Equal(t, 0.0, first.Time)

	c.SetTime(1)
	c.SetTime(2)
	last := c.SetTime(3)

	got := <-sub.C()
	assert.Equal(t, last, got)
	select {
	case stale := <-sub.C():
		t.Fatalf("unexpected backlog tick %+v", stale)
	default:
	}
}

func TestSubscriptionClose(t *testing.T) {
	c, _ := New(0, 100, 0)
	sub := c.Subscribe()
	<-sub.C()
	sub.Close()
	sub.Close()

	c.SetTime(5)
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestConcurrentSetTime(t *testing.T) {
	c, _ := New(0, 1000, 0)
	sub := c.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			c.SetTime(v)
		}(float64(i))
	}
	wg.Wait()

	cur := c.Current()
	assert.Equal(t, uint64(50), cur.Seq)
	got := <-sub.C()
	assert.Equal(t, cur, got, "mailbox holds the last accepted tick")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 60.0, Clamp(12, 60, 120))
	assert.Equal(t, 120.0, Clamp(500, 60, 120))
	assert.Equal(t, 61.5, Clamp(61.5, 60, 120))
	assert.Equal(t, 60.0, Clamp(math.NaN(), 60, 120))
}
