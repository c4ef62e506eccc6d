package hbl

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//binningSubsample caps the number of rows used to estimate quantile
//boundaries. Boundaries are an approximation by design, the cap only
//bounds the sorting cost on large inputs.
const binningSubsample = 200000

//BinMapper quantizes a raw numeric feature matrix into small-integer
//bin indices using approximate quantile boundaries. Fitting records a
//sorted threshold table per feature; transforming later data (or raw
//inputs at inference time) reuses the same thresholds as a monotonic
//step function, never refit.
type BinMapper struct {
	maxBins int
	seed    int64

	binThresholds   [][]float64
	nBinsPerFeature []int
}

//NewBinMapper validates the target bin count and the construction of a
//mapper. Bin indices are stored as uint8, hence the 256 cap.
func NewBinMapper(maxBins int, seed int64) (*BinMapper, error) {
	if maxBins < 2 || maxBins > 256 {
		return nil, fmt.Errorf("%w: maxBins must be in [2, 256], got %d", ErrBadConfig, maxBins)
	}
	return &BinMapper{maxBins: maxBins, seed: seed}, nil
}

//BinThresholds returns the per-feature sorted threshold tables. For a
//feature with n thresholds the bin index of a value is the number of
//thresholds less than or equal to it, giving n+1 bins.
func (bm *BinMapper) BinThresholds() [][]float64 { return bm.binThresholds }

//NumBinsPerFeature returns the actual bin count of every feature, each
//capped by the feature's distinct-value count.
func (bm *BinMapper) NumBinsPerFeature() []int { return bm.nBinsPerFeature }

//Fit estimates the threshold table from the raw matrix. A feature with
//fewer than two distinct observed values yields an empty threshold list
//and therefore a degenerate single-bin column.
func (bm *BinMapper) Fit(x *mat.Dense) error {
	nSamples, nFeatures := x.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return fmt.Errorf("%w: empty matrix %dx%d", ErrShapeMismatch, nSamples, nFeatures)
	}

	rows := subsampleRows(nSamples, binningSubsample, bm.seed)

	bm.binThresholds = make([][]float64, nFeatures)
	bm.nBinsPerFeature = make([]int, nFeatures)

	col := make([]float64, len(rows))
	for j := 0; j < nFeatures; j++ {
		for i, r := range rows {
			col[i] = x.At(r, j)
		}
		sort.Float64s(col)
		thresholds := findBinThresholds(col, bm.maxBins)
		bm.binThresholds[j] = thresholds
		bm.nBinsPerFeature[j] = len(thresholds) + 1
	}
	return nil
}

//Transform maps a raw matrix through the fitted thresholds into a
//feature-major binned matrix.
func (bm *BinMapper) Transform(x *mat.Dense) (*BinnedMatrix, error) {
	if bm.binThresholds == nil {
		return nil, fmt.Errorf("%w: BinMapper is not fitted", ErrBadConfig)
	}
	nSamples, nFeatures := x.Dims()
	if nFeatures != len(bm.binThresholds) {
		return nil, fmt.Errorf("%w: fitted on %d features, transform got %d",
			ErrShapeMismatch, len(bm.binThresholds), nFeatures)
	}

	binned := NewBinnedMatrix(nSamples, nFeatures)
	for j := 0; j < nFeatures; j++ {
		thresholds := bm.binThresholds[j]
		dst := binned.FeatureBins(j)
		for i := 0; i < nSamples; i++ {
			dst[i] = uint8(BinValue(thresholds, x.At(i, j)))
		}
	}
	return binned, nil
}

//FitTransform fits the thresholds and bins the same matrix.
func (bm *BinMapper) FitTransform(x *mat.Dense) (*BinnedMatrix, error) {
	if err := bm.Fit(x); err != nil {
		return nil, err
	}
	return bm.Transform(x)
}

//BinValue returns the bin index of a raw value: the number of
//thresholds less than or equal to it.
func BinValue(thresholds []float64, value float64) int {
	return sort.Search(len(thresholds), func(i int) bool { return thresholds[i] > value })
}

//subsampleRows picks the row indices used for quantile estimation:
//everything when the input is small, otherwise a seeded uniform sample
//without replacement.
func subsampleRows(nSamples, limit int, seed int64) []int {
	if nSamples <= limit {
		rows := make([]int, nSamples)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rng := rand.New(rand.NewSource(seed))
	return rng.Perm(nSamples)[:limit]
}

//findBinThresholds computes strictly increasing boundaries from one
//sorted feature column. Few distinct values get exact midpoints, many
//distinct values get interpolated quantiles.
func findBinThresholds(sorted []float64, maxBins int) []float64 {
	distinct := distinctValues(sorted)
	if len(distinct) < 2 {
		return nil
	}

	if len(distinct) <= maxBins {
		thresholds := make([]float64, len(distinct)-1)
		for i := 0; i+1 < len(distinct); i++ {
			thresholds[i] = (distinct[i] + distinct[i+1]) / 2
		}
		return thresholds
	}

	thresholds := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		q := stat.Quantile(float64(k)/float64(maxBins), stat.LinInterp, sorted, nil)
		// quantiles of skewed columns can repeat, keep them strictly increasing
		if len(thresholds) == 0 || q > thresholds[len(thresholds)-1] {
			thresholds = append(thresholds, q)
		}
	}
	return thresholds
}

func distinctValues(sorted []float64) []float64 {
	distinct := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	return distinct
}
