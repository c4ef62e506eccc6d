package hbl

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawPredictionAgreesWithBinnedPrediction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	nSamples := 500
	x := randomDense(rng, nSamples, 3)

	bm, err := NewBinMapper(16, 0)
	require.NoError(t, err)
	binned, err := bm.FitTransform(x)
	require.NoError(t, err)

	target := make([]float64, nSamples)
	gradients := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		target[i] = x.At(i, 0) - 2*x.At(i, 1)
		gradients[i] = -target[i]
	}

	config := defaultGrowerConfig()
	config.MaxLeafNodes = 32
	grower, err := NewTreeGrower(binned, bm.NumBinsPerFeature(), gradients, ConstantHessians(1), config)
	require.NoError(t, err)
	grower.Grow()

	predictor, err := grower.MakePredictor(bm.BinThresholds())
	require.NoError(t, err)

	fromBinned := predictor.PredictBinned(binned)
	fromRaw, err := predictor.Predict(x)
	require.NoError(t, err)
	require.Equal(t, fromBinned, fromRaw)
}

func TestPredictValidatesThresholdsAndShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x, bins, gradients := growableFixture(t, rng, 100, 2, 4)

	grower, err := NewTreeGrower(x, bins, gradients, ConstantHessians(1), defaultGrowerConfig())
	require.NoError(t, err)
	grower.Grow()

	bare, err := grower.MakePredictor(nil)
	require.NoError(t, err)
	_, err = bare.Predict(randomDense(rng, 10, 2))
	require.ErrorIs(t, err, ErrBadConfig)

	withThresholds, err := grower.MakePredictor([][]float64{{0.1, 0.2, 0.3}, {0.5, 1.5, 2.5}})
	require.NoError(t, err)
	_, err = withThresholds.Predict(randomDense(rng, 10, 5))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPredictorJSONRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	x := randomDense(rng, 200, 2)

	bm, err := NewBinMapper(8, 0)
	require.NoError(t, err)
	binned, err := bm.FitTransform(x)
	require.NoError(t, err)

	gradients := make([]float64, 200)
	for i := range gradients {
		gradients[i] = x.At(i, 0) + 0.1*rng.NormFloat64()
	}

	config := defaultGrowerConfig()
	config.MaxLeafNodes = 8
	grower, err := NewTreeGrower(binned, bm.NumBinsPerFeature(), gradients, ConstantHessians(1), config)
	require.NoError(t, err)
	grower.Grow()

	for _, thresholds := range [][][]float64{bm.BinThresholds(), nil} {
		predictor, err := grower.MakePredictor(thresholds)
		require.NoError(t, err)

		// leaves carry no threshold, the encoding must still succeed
		encoded, err := json.Marshal(predictor)
		require.NoError(t, err)

		var decoded TreePredictor
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		require.Equal(t, predictor.PredictBinned(binned), decoded.PredictBinned(binned))
	}
}

func TestPredictorNodeTableShape(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	x, bins, gradients := growableFixture(t, rng, 300, 2, 8)

	config := defaultGrowerConfig()
	config.MaxLeafNodes = 8
	grower, err := NewTreeGrower(x, bins, gradients, ConstantHessians(1), config)
	require.NoError(t, err)
	grower.Grow()

	predictor, err := grower.MakePredictor(nil)
	require.NoError(t, err)

	leaves := 0
	for i, node := range predictor.Nodes {
		if node.IsLeaf {
			leaves++
			require.Equal(t, -1, node.Left, "node %d", i)
			require.Equal(t, -1, node.Right, "node %d", i)
			require.Equal(t, -1, node.FeatureIdx, "node %d", i)
			require.Equal(t, -1, node.BinIdx, "node %d", i)
		} else {
			require.Greater(t, node.Left, i)
			require.Greater(t, node.Right, i)
			require.GreaterOrEqual(t, node.FeatureIdx, 0)
			require.GreaterOrEqual(t, node.BinIdx, 0)
			require.Greater(t, node.Gain, 0.0)
		}
	}
	require.Equal(t, grower.LeafCount(), leaves)
	// a binary tree with l leaves has 2l-1 nodes
	require.Len(t, predictor.Nodes, 2*leaves-1)
}
