package notation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat_Table(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{1000, "1.00K"},
		{1250000, "1.25M"},
		{1e9, "1.00B"},
		{2.5e12, "2.50T"},
		{1e15, "1.00Qa"},
		{1e33, "1.00Dc"},
		{4.2e63, "4.20Vg"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Format(c.in), "Format(%v)", c.in)
	}
}

func TestFormat_BeyondTableClampsToLastSuffix(t *testing.T) {
	require.Equal(t, "1000.00Vg", Format(1e66))
	require.Equal(t, "Vg", Suffix(40))
	require.Equal(t, MaxTier, Tier(math.MaxFloat64))
}

func TestFormat_NonFinite(t *testing.T) {
	require.Equal(t, Infinity, Format(math.Inf(1)))
	require.Equal(t, "0", Format(math.NaN()))
	require.Equal(t, "-1.50K", Format(-1500))
}

func TestSuffix_Negative(t *testing.T) {
	require.Equal(t, "", Suffix(-1))
	require.Equal(t, "K", Suffix(1))
}
