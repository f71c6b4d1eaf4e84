package table

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions the table into train and test so that each
// partition preserves the target column's class proportions within integer
// rounding. The split is deterministic for a given seed: rows are grouped
// by target value, each group is shuffled with the seeded generator, and
// round(fraction * group size) rows per group go to test.
func StratifiedSplit(t *Table, target string, testFraction float64, seed int64) (train, test *Table, err error) {
	if !t.HasColumn(target) {
		return nil, nil, fmt.Errorf("target column %q not present", target)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	if t.NumRows() == 0 {
		return nil, nil, fmt.Errorf("cannot split an empty table")
	}

	strata := make(map[string][]int)
	for i := 0; i < t.NumRows(); i++ {
		key := t.StratumKey(i, target)
		strata[key] = append(strata[key], i)
	}

	// Iterate strata in sorted key order so the seeded shuffle sequence is
	// independent of map iteration order.
	keys := make([]string, 0, len(strata))
	for k := range strata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, k := range keys {
		idx := strata[k]
		rng.Shuffle(len(idx), func(a, b int) {
			idx[a], idx[b] = idx[b], idx[a]
		})

		nTest := int(math.Round(testFraction * float64(len(idx))))
		if nTest > len(idx) {
			nTest = len(idx)
		}
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}

	// Restore source row order within each partition.
	sort.Ints(trainIdx)
	sort.Ints(testIdx)

	if len(trainIdx) == 0 {
		return nil, nil, fmt.Errorf("split produced an empty train partition (%d rows, fraction %v)", t.NumRows(), testFraction)
	}

	return t.Subset(trainIdx), t.Subset(testIdx), nil
}
