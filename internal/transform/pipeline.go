package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PipelineConfig selects the imputation strategy.
type PipelineConfig struct {
	Strategy  string // "knn" | "mean"
	Neighbors int    // k for the knn strategy
}

// Pipeline is the unfitted preprocessing pipeline: configuration only.
// Fit is the sole way to obtain a FittedPipeline, so test data can never
// reach parameter estimation by construction.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates an unfitted pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// FittedPipeline holds parameters learned from the training partition:
// imputation sources and the post-imputation standard-scaling moments.
// It serializes to deterministic JSON and reloads without refitting.
type FittedPipeline struct {
	Strategy  string    `json:"strategy"`
	Neighbors int       `json:"neighbors,omitempty"`
	Columns   []string  `json:"columns"`
	Means     []float64 `json:"means"`
	ScaleMean []float64 `json:"scale_mean"`
	ScaleStd  []float64 `json:"scale_std"`

	// TargetLabels is the label-encoder vocabulary learned from the
	// training target, empty for numeric targets.
	TargetLabels []string `json:"target_labels,omitempty"`

	// train retains the training feature matrix (with NaN for missing)
	// as the knn donor pool. Serialized with nulls for missing cells.
	train [][]float64
}

// Fit learns imputation and scaling parameters from the training feature
// matrix only. NaN marks missing cells. A column with no observed training
// value cannot be imputed and fails with that column named.
func (p *Pipeline) Fit(columns []string, X [][]float64) (*FittedPipeline, error) {
	if len(X) == 0 {
		return nil, &Error{Err: fmt.Errorf("empty training matrix")}
	}
	nCols := len(columns)

	means := make([]float64, nCols)
	for j := 0; j < nCols; j++ {
		var observed []float64
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				observed = append(observed, X[i][j])
			}
		}
		if len(observed) == 0 {
			return nil, &Error{
				Column: columns[j],
				Err:    fmt.Errorf("column entirely missing in training data"),
			}
		}
		means[j] = stat.Mean(observed, nil)
	}

	f := &FittedPipeline{
		Strategy:  p.cfg.Strategy,
		Neighbors: p.cfg.Neighbors,
		Columns:   append([]string(nil), columns...),
		Means:     means,
		train:     cloneMatrix(X),
	}

	// Scaling moments are estimated on the imputed training matrix, so
	// inference-time scaling matches what training saw.
	imputed := cloneMatrix(X)
	f.imputeInPlace(imputed)

	f.ScaleMean = make([]float64, nCols)
	f.ScaleStd = make([]float64, nCols)
	col := make([]float64, len(imputed))
	for j := 0; j < nCols; j++ {
		for i := range imputed {
			col[i] = imputed[i][j]
		}
		f.ScaleMean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		f.ScaleStd[j] = sd
	}

	return f, nil
}

// Transform imputes missing cells and scales the matrix using parameters
// learned at fit time. It returns the transformed copy and the number of
// cells imputed. The input is not modified.
func (f *FittedPipeline) Transform(X [][]float64) ([][]float64, int, error) {
	out := cloneMatrix(X)
	for i := range out {
		if len(out[i]) != len(f.Columns) {
			return nil, 0, &Error{Err: fmt.Errorf("row has %d features, pipeline fitted on %d", len(out[i]), len(f.Columns))}
		}
	}

	imputedCells := f.imputeInPlace(out)

	for i := range out {
		for j := range out[i] {
			out[i][j] = (out[i][j] - f.ScaleMean[j]) / f.ScaleStd[j]
		}
	}
	return out, imputedCells, nil
}

// imputeInPlace fills every NaN cell and returns how many were filled.
func (f *FittedPipeline) imputeInPlace(X [][]float64) int {
	filled := 0
	for i := range X {
		for j := range X[i] {
			if !math.IsNaN(X[i][j]) {
				continue
			}
			if f.Strategy == "knn" {
				X[i][j] = f.knnImpute(X[i], j)
			} else {
				X[i][j] = f.Means[j]
			}
			filled++
		}
	}
	return filled
}

// knnImpute estimates a missing cell from the k nearest training donors
// that observed the column, by NaN-aware euclidean distance over the
// remaining features. Ties break on donor index so the result is
// deterministic. Falls back to the training column mean when no donor is
// comparable.
func (f *FittedPipeline) knnImpute(row []float64, j int) float64 {
	type donor struct {
		dist float64
		idx  int
	}
	var donors []donor
	for idx, trainRow := range f.train {
		if math.IsNaN(trainRow[j]) {
			continue
		}
		d, comparable := nanEuclidean(row, trainRow, j)
		if !comparable {
			continue
		}
		donors = append(donors, donor{dist: d, idx: idx})
	}
	if len(donors) == 0 {
		return f.Means[j]
	}

	sort.Slice(donors, func(a, b int) bool {
		if donors[a].dist != donors[b].dist {
			return donors[a].dist < donors[b].dist
		}
		return donors[a].idx < donors[b].idx
	})

	k := f.Neighbors
	if k < 1 {
		k = 1
	}
	if k > len(donors) {
		k = len(donors)
	}
	sum := 0.0
	for _, d := range donors[:k] {
		sum += f.train[d.idx][j]
	}
	return sum / float64(k)
}

// nanEuclidean computes the distance between two rows over coordinates
// observed in both, excluding column j, rescaled by the fraction of
// usable coordinates.
func nanEuclidean(a, b []float64, j int) (float64, bool) {
	sum := 0.0
	used := 0
	total := 0
	for i := range a {
		if i == j {
			continue
		}
		total++
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		diff := a[i] - b[i]
		sum += diff * diff
		used++
	}
	if used == 0 {
		if total == 0 {
			// Single-column matrix: all donors are equally close.
			return 0, true
		}
		return 0, false
	}
	return math.Sqrt(sum * float64(total) / float64(used)), true
}

func cloneMatrix(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = append([]float64(nil), X[i]...)
	}
	return out
}

// serialized is the JSON form of a fitted pipeline. Missing training cells
// are encoded as nulls since JSON has no NaN.
type serialized struct {
	Strategy     string       `json:"strategy"`
	Neighbors    int          `json:"neighbors,omitempty"`
	Columns      []string     `json:"columns"`
	Means        []float64    `json:"means"`
	ScaleMean    []float64    `json:"scale_mean"`
	ScaleStd     []float64    `json:"scale_std"`
	TargetLabels []string     `json:"target_labels,omitempty"`
	Train        [][]*float64 `json:"train,omitempty"`
}

// Marshal serializes the fitted pipeline. Serialization is deterministic:
// the same fitted parameters always produce the same bytes.
func (f *FittedPipeline) Marshal() ([]byte, error) {
	s := serialized{
		Strategy:     f.Strategy,
		Neighbors:    f.Neighbors,
		Columns:      f.Columns,
		Means:        f.Means,
		ScaleMean:    f.ScaleMean,
		ScaleStd:     f.ScaleStd,
		TargetLabels: f.TargetLabels,
	}
	if f.Strategy == "knn" {
		s.Train = make([][]*float64, len(f.train))
		for i, row := range f.train {
			s.Train[i] = make([]*float64, len(row))
			for j := range row {
				if !math.IsNaN(row[j]) {
					v := row[j]
					s.Train[i][j] = &v
				}
			}
		}
	}
	return json.MarshalIndent(s, "", "  ")
}

// LoadFitted reloads a serialized fitted pipeline, ready to transform new
// data without refitting.
func LoadFitted(data []byte) (*FittedPipeline, error) {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse fitted pipeline: %w", err)
	}
	f := &FittedPipeline{
		Strategy:     s.Strategy,
		Neighbors:    s.Neighbors,
		Columns:      s.Columns,
		Means:        s.Means,
		ScaleMean:    s.ScaleMean,
		ScaleStd:     s.ScaleStd,
		TargetLabels: s.TargetLabels,
	}
	if len(s.Train) > 0 {
		f.train = make([][]float64, len(s.Train))
		for i, row := range s.Train {
			f.train[i] = make([]float64, len(row))
			for j, v := range row {
				if v == nil {
					f.train[i][j] = math.NaN()
				} else {
					f.train[i][j] = *v
				}
			}
		}
	}
	return f, nil
}
