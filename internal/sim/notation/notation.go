// Package notation renders currency magnitudes in short-scale form (1.25M, 3.00Qa).
package notation

import (
	"math"
	"strconv"
)

// suffixes is indexed by tier (groups of three decimal digits).
var suffixes = [...]string{
	"", "K", "M", "B", "T", "Qa", "Qi", "Sx", "Sp", "Oc", "No", "Dc",
	"UDc", "DDc", "TDc", "QaDc", "QiDc", "SxDc", "SpDc", "ODc", "NDc", "Vg",
}

// MaxTier is the highest tier with its own suffix. Larger magnitudes are
// expressed in MaxTier units ("1000.00Vg", "12345.00Vg").
const MaxTier = len(suffixes) - 1

// Infinity is what Format renders for +Inf (unlimited balance).
const Infinity = "∞"

// Suffix returns the short-scale suffix for a tier, clamped to [0, MaxTier].
func Suffix(tier int) string {
	if tier < 0 {
		return ""
	}
	if tier > MaxTier {
		tier = MaxTier
	}
	return suffixes[tier]
}

// scales[t] is 1000^t, parsed from decimal literals so tier boundaries are exact.
var scales = func() [len(suffixes)]float64 {
	var out [len(suffixes)]float64
	for t := range out {
		out[t], _ = strconv.ParseFloat("1e"+strconv.Itoa(t*3), 64)
	}
	return out
}()

// Tier returns floor(log10(n)/3) clamped to [0, MaxTier].
func Tier(n float64) int {
	n = math.Abs(n)
	if n < 1000 || math.IsNaN(n) {
		return 0
	}
	if math.IsInf(n, 0) {
		return MaxTier
	}
	tier := int(math.Floor(math.Log10(n) / 3))
	if tier > MaxTier {
		tier = MaxTier
	}
	// Log10 is off by an ulp near exact powers of ten.
	for tier < MaxTier && n >= scales[tier+1] {
		tier++
	}
	for tier > 0 && n < scales[tier] {
		tier--
	}
	return tier
}

// Format renders n. Values below 1000 print as whole numbers; larger values
// print with two fraction digits and a suffix.
func Format(n float64) string {
	switch {
	case math.IsNaN(n):
		return "0"
	case math.IsInf(n, 1):
		return Infinity
	case math.IsInf(n, -1):
		return "-" + Infinity
	case n < 0:
		return "-" + Format(-n)
	}
	if n < 1000 {
		return strconv.FormatFloat(n, 'f', 0, 64)
	}
	tier := Tier(n)
	scaled := n / scales[tier]
	return strconv.FormatFloat(scaled, 'f', 2, 64) + suffixes[tier]
}
