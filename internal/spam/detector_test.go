package spam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(Config{})
	assert.Equal(t, DefaultConfig(), d.Config())
}

func TestRecordAndCheck_BelowThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())

	assert.Empty(t, d.RecordAndCheck("buy now", "u1", t0))
	assert.Empty(t, d.RecordAndCheck("buy now", "u2", t0.Add(time.Second)))
	assert.False(t, d.IsRecentlyFlagged("buy now", t0.Add(time.Second)))
}

func TestRecordAndCheck_ThreeSendersFlagged(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.RecordAndCheck("Buy Now", "u1", t0)
	d.RecordAndCheck("buy now ", "u2", t0.Add(5*time.Second))
	got := d.RecordAndCheck("BUY NOW", "u3", t0.Add(10*time.Second))

	assert.Equal(t, []string{"u1", "u2", "u3"}, got)
	assert.True(t, d.IsRecentlyFlagged("buy now", t0.Add(10*time.Second)))
}

func TestRecordAndCheck_SameSenderCountsTowardWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.RecordAndCheck("spam", "u1", t0)
	d.RecordAndCheck("spam", "u1", t0.Add(time.Second))
	got := d.RecordAndCheck("spam", "u2", t0.Add(2*time.Second))

	assert.Equal(t, []string{"u1", "u2"}, got)
}

func TestRecordAndCheck_WindowExpiry(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.RecordAndCheck("spam", "u1", t0)
	d.RecordAndCheck("spam", "u2", t0.Add(5*time.Second))
	// u1 is 16s old by now and no longer counts
	got := d.RecordAndCheck("spam", "u3", t0.Add(16*time.Second))

	assert.Empty(t, got)
	assert.False(t, d.IsRecentlyFlagged("spam", t0.Add(16*time.Second)))
}

func TestRecordAndCheck_WindowBounded(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i, sender := range []string{"u1", "u2", "u3", "u4", "u5"} {
		d.RecordAndCheck("spam", sender, t0.Add(time.Duration(i)*time.Second))
	}

	d.mu.Lock()
	size := len(d.windows["spam"])
	d.mu.Unlock()
	assert.Equal(t, DefaultThreshold, size)

	got := d.RecordAndCheck("spam", "u6", t0.Add(5*time.Second))
	assert.Equal(t, []string{"u4", "u5", "u6"}, got)
}

func TestIsRecentlyFlagged_RecordDuration(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i, sender := range []string{"u1", "u2", "u3"} {
		d.RecordAndCheck("spam", sender, t0.Add(time.Duration(i)*time.Second))
	}
	flaggedAt := t0.Add(2 * time.Second)

	assert.True(t, d.IsRecentlyFlagged("spam", flaggedAt.Add(4*time.Minute)))
	assert.True(t, d.IsRecentlyFlagged("spam", flaggedAt.Add(DefaultRecordDuration)))
	assert.False(t, d.IsRecentlyFlagged("spam", flaggedAt.Add(DefaultRecordDuration+time.Nanosecond)))

	// expired records are removed on read
	assert.Equal(t, 0, d.Stats().Records)
}

func TestSweep(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i, sender := range []string{"u1", "u2", "u3"} {
		d.RecordAndCheck("spam", sender, t0.Add(time.Duration(i)*time.Second))
	}
	d.RecordAndCheck("other", "u9", t0)
	flaggedAt := t0.Add(2 * time.Second)

	assert.Equal(t, 0, d.Sweep(flaggedAt.Add(DefaultRecordDuration)))
	assert.Equal(t, Stats{Windows: 0, Records: 1}, d.Stats())

	assert.Equal(t, 1, d.Sweep(flaggedAt.Add(DefaultRecordDuration+time.Second)))
	assert.Equal(t, Stats{}, d.Stats())
}

func TestSweep_KeepsFreshWindows(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.RecordAndCheck("hello", "u1", t0)
	d.Sweep(t0.Add(10 * time.Second))
	assert.Equal(t, 1, d.Stats().Windows)

	d.Sweep(t0.Add(20 * time.Second))
	assert.Equal(t, 0, d.Stats().Windows)
}

func TestDetector_Concurrent(t *testing.T) {
	d := NewDetector(Config{Threshold: 50, Window: time.Minute, RecordDuration: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.RecordAndCheck("flood", string(rune('a'+i%26)), t0)
			d.IsRecentlyFlagged("flood", t0)
			d.Sweep(t0)
		}(i)
	}
	wg.Wait()

	assert.True(t, d.IsRecentlyFlagged("flood", t0))
}

func TestSweeper_StartStop(t *testing.T) {
	d := NewDetector(DefaultConfig())
	for i, sender := range []string{"u1", "u2", "u3"} {
		d.RecordAndCheck("spam", sender, t0.Add(time.Duration(i)*time.Second))
	}

	s := NewSweeper(d, 10*time.Millisecond)
	s.now = func() time.Time { return t0.Add(time.Hour) }

	swept := make(chan Stats, 10)
	s.SetCallback(func(removed int, stats Stats) {
		select {
		case swept <- stats:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case stats := <-swept:
		assert.Equal(t, 0, stats.Records)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Start() should return after cancel")
	}
}
