package validation

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/evolonics/modelprep/internal/table"
)

// DriftEntry is one column's two-sample test result. Non-numeric columns
// and columns whose test cannot run are marked not applicable with a
// reason, never dropped from the report.
type DriftEntry struct {
	Column       string  `json:"column"`
	Applicable   bool    `json:"applicable"`
	Reason       string  `json:"reason,omitempty"`
	Statistic    float64 `json:"statistic"`
	PValue       float64 `json:"p_value"`
	Drifted      bool    `json:"is_drifted"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
}

// DriftReport holds exactly one entry per column common to both
// partitions. It is informational: drift never gates the pipeline.
type DriftReport struct {
	RunID        string       `json:"run_id"`
	Alpha        float64      `json:"alpha"`
	GeneratedAt  time.Time    `json:"generated_at"`
	DriftedCount int          `json:"drifted_count"`
	Columns      []DriftEntry `json:"columns"`
}

// computeDrift runs the Kolmogorov-Smirnov two-sample test for every
// column present in both partitions. A column is flagged drifted when its
// p-value falls below alpha. Per-column failures degrade that column's
// entry to not-applicable rather than aborting the run.
func computeDrift(train, test *table.Table, alpha float64) ([]DriftEntry, int) {
	testCols := make(map[string]bool)
	for _, c := range test.Columns() {
		testCols[c] = true
	}
	var common []string
	for _, c := range train.Columns() {
		if testCols[c] {
			common = append(common, c)
		}
	}
	sort.Strings(common)

	entries := make([]DriftEntry, 0, len(common))
	drifted := 0
	for _, col := range common {
		entry := driftColumn(train, test, col, alpha)
		if entry.Drifted {
			drifted++
		}
		entries = append(entries, entry)
	}
	return entries, drifted
}

func driftColumn(train, test *table.Table, col string, alpha float64) DriftEntry {
	entry := DriftEntry{Column: col}

	trainKind, _ := train.ColumnKind(col)
	testKind, _ := test.ColumnKind(col)
	if trainKind != table.KindNumeric || testKind != table.KindNumeric {
		entry.Reason = "non-numeric column"
		return entry
	}

	x, _ := train.NumericValues(col)
	y, _ := test.NumericValues(col)
	entry.TrainSamples = len(x)
	entry.TestSamples = len(y)
	if len(x) < 2 || len(y) < 2 {
		entry.Reason = "insufficient samples"
		return entry
	}

	xs := append([]float64(nil), x...)
	ys := append([]float64(nil), y...)
	sort.Float64s(xs)
	sort.Float64s(ys)

	d := stat.KolmogorovSmirnov(xs, nil, ys, nil)
	p := ksPValue(d, len(xs), len(ys))

	entry.Applicable = true
	entry.Statistic = d
	entry.PValue = p
	entry.Drifted = p < alpha
	return entry
}

// ksPValue approximates the two-sample KS p-value with the asymptotic
// Kolmogorov distribution and the Stephens small-sample correction.
func ksPValue(d float64, n, m int) float64 {
	if d <= 0 {
		return 1
	}
	en := math.Sqrt(float64(n) * float64(m) / float64(n+m))
	lambda := (en + 0.12 + 0.11/en) * d

	sum := 0.0
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j)*float64(j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
