package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRealClockNow(t *testing.T) {
	require.False(t, RealClock{}.Now().IsZero())
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFake(start)
	require.True(t, clk.Now().Equal(start))
	clk.Advance(1500 * time.Millisecond)
	require.True(t, clk.Now().Equal(start.Add(1500*time.Millisecond)), "got %v", clk.Now())
}
