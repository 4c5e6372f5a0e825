package room

import "sort"

// computeTally derives counts and display percentages from the vote map.
// Percentages use largest-remainder rounding: floor every share, then hand the
// leftover points to the options with the biggest fractional parts, ties going
// to the lower index. The result sums to exactly 100 whenever total > 0.
func computeTally(votes map[string]int, numOptions int) Tally {
	t := Tally{
		Counts:      make([]int, numOptions),
		Percentages: make([]int, numOptions),
	}
	for _, idx := range votes {
		t.Counts[idx]++
		t.Total++
	}
	if t.Total == 0 {
		return t
	}

	type share struct {
		idx       int
		remainder int // numerator of the fractional part, in 1/total units
	}
	shares := make([]share, numOptions)
	assigned := 0
	for i, c := range t.Counts {
		t.Percentages[i] = c * 100 / t.Total
		assigned += t.Percentages[i]
		shares[i] = share{idx: i, remainder: c * 100 % t.Total}
	}

	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder > shares[b].remainder
	})
	for i := 0; i < 100-assigned; i++ {
		t.Percentages[shares[i].idx]++
	}
	return t
}
