package hbl

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func TestNewBinMapperRejectsBadBinCount(t *testing.T) {
	_, err := NewBinMapper(1, 42)
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = NewBinMapper(257, 42)
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestBinMapperIsIdempotentUnderFixedSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	x := randomDense(rng, 300, 4)

	first, err := NewBinMapper(16, 7)
	require.NoError(t, err)
	require.NoError(t, first.Fit(x))

	second, err := NewBinMapper(16, 7)
	require.NoError(t, err)
	require.NoError(t, second.Fit(x))

	require.Equal(t, first.BinThresholds(), second.BinThresholds())
	require.Equal(t, first.NumBinsPerFeature(), second.NumBinsPerFeature())
}

func TestBinMapperThresholdsAreStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := randomDense(rng, 1000, 3)

	bm, err := NewBinMapper(32, 0)
	require.NoError(t, err)
	require.NoError(t, bm.Fit(x))

	for j, thresholds := range bm.BinThresholds() {
		require.Equal(t, len(thresholds)+1, bm.NumBinsPerFeature()[j])
		for i := 1; i < len(thresholds); i++ {
			require.Greater(t, thresholds[i], thresholds[i-1], "feature %d", j)
		}
	}
}

func TestBinMapperConstantFeatureGetsSingleBin(t *testing.T) {
	x := mat.NewDense(50, 1, nil)
	for i := 0; i < 50; i++ {
		x.Set(i, 0, 3.25)
	}

	bm, err := NewBinMapper(8, 0)
	require.NoError(t, err)

	binned, err := bm.FitTransform(x)
	require.NoError(t, err)

	require.Empty(t, bm.BinThresholds()[0])
	require.Equal(t, 1, bm.NumBinsPerFeature()[0])
	for i := 0; i < 50; i++ {
		require.Equal(t, uint8(0), binned.At(i, 0))
	}
}

func TestBinMapperFewDistinctValuesGetExactMidpoints(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{2, 0, 4, 0, 2, 4})

	bm, err := NewBinMapper(8, 0)
	require.NoError(t, err)
	require.NoError(t, bm.Fit(x))

	require.Equal(t, []float64{1, 3}, bm.BinThresholds()[0])
	require.Equal(t, 3, bm.NumBinsPerFeature()[0])
}

func TestTransformAgreesWithBinValue(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randomDense(rng, 400, 2)

	bm, err := NewBinMapper(12, 3)
	require.NoError(t, err)

	binned, err := bm.FitTransform(x)
	require.NoError(t, err)

	for j := 0; j < 2; j++ {
		thresholds := bm.BinThresholds()[j]
		nBins := bm.NumBinsPerFeature()[j]
		for i := 0; i < 400; i++ {
			bin := int(binned.At(i, j))
			require.Equal(t, BinValue(thresholds, x.At(i, j)), bin)
			require.Less(t, bin, nBins)
		}
	}
}

func TestTransformValidatesShapeAndFitState(t *testing.T) {
	bm, err := NewBinMapper(8, 0)
	require.NoError(t, err)

	_, err = bm.Transform(mat.NewDense(3, 2, nil))
	require.ErrorIs(t, err, ErrBadConfig)

	rng := rand.New(rand.NewSource(9))
	require.NoError(t, bm.Fit(randomDense(rng, 20, 2)))

	_, err = bm.Transform(mat.NewDense(3, 5, nil))
	require.ErrorIs(t, err, ErrShapeMismatch)
	require.True(t, errors.Is(err, ErrShapeMismatch))
}
