package hbl

import (
	"math"
	"math/rand"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func parabolaDataset(rng *rand.Rand, rows int) (*mat.Dense, []float64) {
	x := mat.NewDense(rows, 2, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		a := rng.Float64()
		b := rng.Float64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y[i] = a*a - 0.5*b + 0.1
	}
	return x, y
}

func TestBoosterHandlesConstantFeatures(t *testing.T) {
	rows := 128
	x := mat.NewDense(rows, 3, nil)
	y := make([]float64, rows)
	for i := range y {
		y[i] = 0.7
	}

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           1,
		LearningRate:      1.0,
		NBins:             32,
		MinSamplesLeaf:    1,
		MinHessianToSplit: 1e-3,
		ThreadsNum:        1,
		LossKind:          MseLoss{},
	}, x, y, nil, nil)
	require.NoError(t, err)

	require.Len(t, booster.Trees, 1)
	require.Equal(t, 1, booster.Trees[0].LeafCount())

	prediction, err := booster.Predict(x, nil)
	require.NoError(t, err)
	for i := range prediction {
		require.InDelta(t, 0.7, prediction[i], 1e-9)
	}
	require.InDelta(t, 0.0, booster.TrainScores[0], 1e-9)
}

func TestBoosterImprovesOverStages(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	x, y := parabolaDataset(rng, 1000)

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           20,
		LearningRate:      0.3,
		MaxLeafNodes:      16,
		NBins:             64,
		MinSamplesLeaf:    5,
		MinHessianToSplit: 1e-3,
		ThreadsNum:        2,
		LossKind:          MseLoss{},
	}, x, y, nil, nil)
	require.NoError(t, err)

	require.Len(t, booster.TrainScores, 20)
	first := booster.TrainScores[0]
	last := booster.TrainScores[len(booster.TrainScores)-1]
	require.Less(t, last, first)
	require.Less(t, last, 0.1)

	prediction, err := booster.Predict(x, nil)
	require.NoError(t, err)
	require.Less(t, Rmse(y, prediction), 0.1)
}

func TestBoosterEarlyStopsOnValidationPlateau(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	xTrain, yTrain := parabolaDataset(rng, 600)
	xVal, yVal := parabolaDataset(rng, 200)

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           200,
		LearningRate:      0.5,
		MaxLeafNodes:      31,
		NBins:             64,
		MinSamplesLeaf:    2,
		MinHessianToSplit: 1e-3,
		MaxNoImprovement:  5,
		Tol:               1e-7,
		ThreadsNum:        1,
		LossKind:          MseLoss{},
	}, xTrain, yTrain, xVal, yVal)
	require.NoError(t, err)

	require.Less(t, len(booster.Trees), 200)
	require.Equal(t, len(booster.Trees), len(booster.ValidationScores))
}

func TestBoosterLoglossOnSeparableData(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := 800
	x := mat.NewDense(rows, 2, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := rng.NormFloat64()
		x.Set(i, 0, v)
		x.Set(i, 1, rng.NormFloat64())
		if v > 0 {
			y[i] = 1
		}
	}

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           10,
		LearningRate:      0.5,
		MaxLeafNodes:      8,
		NBins:             32,
		MinSamplesLeaf:    5,
		MinHessianToSplit: 1e-3,
		ThreadsNum:        1,
		LossKind:          LogLoss{},
	}, x, y, nil, nil)
	require.NoError(t, err)

	prediction, err := booster.Predict(x, nil)
	require.NoError(t, err)

	correct := 0
	for i := range prediction {
		if (prediction[i] > 0) == (y[i] == 1) {
			correct++
		}
	}
	require.Greater(t, float64(correct)/float64(rows), 0.95)
	require.Less(t, Logloss(y, prediction), math.Log(2))
}

func TestBoosterSaveLoadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x, y := parabolaDataset(rng, 300)

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           5,
		LearningRate:      0.4,
		MaxLeafNodes:      8,
		NBins:             32,
		MinSamplesLeaf:    2,
		MinHessianToSplit: 1e-3,
		ThreadsNum:        1,
		LossKind:          MseLoss{},
	}, x, y, nil, nil)
	require.NoError(t, err)

	modelFile := path.Join(t.TempDir(), "model.json")
	booster.Save(modelFile)
	loaded := LoadModel(modelFile)

	require.Len(t, loaded.Trees, len(booster.Trees))
	require.Equal(t, booster.BinThresholds, loaded.BinThresholds)

	want, err := booster.Predict(x, nil)
	require.NoError(t, err)
	got, err := loaded.Predict(x, nil)
	require.NoError(t, err)
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-12)
	}
}

func TestBoosterTreeLimitOnPredict(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x, y := parabolaDataset(rng, 200)

	booster, err := NewGradientBooster(BoosterParams{
		NStages:           4,
		LearningRate:      0.4,
		MaxLeafNodes:      8,
		NBins:             16,
		MinSamplesLeaf:    2,
		MinHessianToSplit: 1e-3,
		ThreadsNum:        1,
		LossKind:          MseLoss{},
	}, x, y, nil, nil)
	require.NoError(t, err)

	one := 1
	limited, err := booster.Predict(x, &one)
	require.NoError(t, err)
	firstTree, err := booster.Trees[0].Predict(x)
	require.NoError(t, err)
	require.Equal(t, firstTree, limited)
}

func TestBoosterParamValidation(t *testing.T) {
	x := mat.NewDense(10, 1, nil)
	y := make([]float64, 10)

	_, err := NewGradientBooster(BoosterParams{NStages: 0, LearningRate: 0.1, NBins: 8, MinSamplesLeaf: 1}, x, y, nil, nil)
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = NewGradientBooster(BoosterParams{NStages: 1, LearningRate: 0, NBins: 8, MinSamplesLeaf: 1}, x, y, nil, nil)
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = NewGradientBooster(BoosterParams{NStages: 1, LearningRate: 0.1, NBins: 8, MinSamplesLeaf: 1}, x, y[:5], nil, nil)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewGradientBooster(BoosterParams{NStages: 1, LearningRate: 0.1, NBins: 1, MinSamplesLeaf: 1}, x, y, nil, nil)
	require.ErrorIs(t, err, ErrBadConfig)
}
