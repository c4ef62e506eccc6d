package hbl

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/goccy/go-graphviz"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

//GradientBooster is the trained model: the ordered list of compiled
//trees plus the threshold table they all share.
type GradientBooster struct {
	Trees            []*TreePredictor `json:"trees"`
	BinThresholds    [][]float64      `json:"bin_thresholds"`
	TrainScores      []float64        `json:"train_scores"`
	ValidationScores []float64        `json:"validation_scores,omitempty"`
}

//BoosterParams collect arguments required to train a booster.
type BoosterParams struct {
	NStages           int
	LearningRate      float64
	MaxLeafNodes      int
	MaxDepth          int
	L2Regularization  float64
	NBins             int
	MinSamplesLeaf    int
	MinHessianToSplit float64
	MinGainToSplit    float64
	//MaxNoImprovement stops training when the monitored score has not
	//improved for that many rounds; zero disables early stopping.
	MaxNoImprovement int
	Tol              float64
	ThreadsNum       int
	Seed             int64
	LossKind         SplitLoss
	Logger           *zerolog.Logger
}

func (params *BoosterParams) validate(nSamples int, y []float64) error {
	if params.NStages < 1 {
		return fmt.Errorf("%w: NStages must be positive, got %d", ErrBadConfig, params.NStages)
	}
	if params.LearningRate <= 0 {
		return fmt.Errorf("%w: LearningRate must be positive, got %g", ErrBadConfig, params.LearningRate)
	}
	if params.Tol < 0 {
		return fmt.Errorf("%w: negative Tol %g", ErrBadConfig, params.Tol)
	}
	if len(y) != nSamples {
		return fmt.Errorf("%w: %d targets for %d samples", ErrShapeMismatch, len(y), nSamples)
	}
	return nil
}

//NewGradientBooster bins the training data once and grows one tree per
//boosting round on the current gradients and hessians. The optional
//validation set is monitored with the same score as training and drives
//early stopping when MaxNoImprovement is set.
func NewGradientBooster(params BoosterParams, x *mat.Dense, y []float64, xVal *mat.Dense, yVal []float64) (*GradientBooster, error) {
	nSamples, _ := x.Dims()
	if err := params.validate(nSamples, y); err != nil {
		return nil, err
	}
	lossKind := params.LossKind
	if lossKind == nil {
		lossKind = MseLoss{}
	}
	logger := zerolog.Nop()
	if params.Logger != nil {
		logger = *params.Logger
	}

	binMapper, err := NewBinMapper(params.NBins, params.Seed)
	if err != nil {
		return nil, err
	}
	xBinned, err := binMapper.FitTransform(x)
	if err != nil {
		return nil, err
	}

	var xValBinned *BinnedMatrix
	if xVal != nil {
		valSamples, _ := xVal.Dims()
		if len(yVal) != valSamples {
			return nil, fmt.Errorf("%w: %d validation targets for %d samples", ErrShapeMismatch, len(yVal), valSamples)
		}
		if xValBinned, err = binMapper.Transform(xVal); err != nil {
			return nil, err
		}
	}
	logger.Info().
		Int("samples", nSamples).
		Int("features", xBinned.NumFeatures()).
		Int("max_bins", params.NBins).
		Msg("binned training data")

	_, useLogloss := lossKind.(LogLoss)
	score := func(target, prediction []float64) float64 {
		if useLogloss {
			return Logloss(target, prediction)
		}
		return Rmse(target, prediction)
	}

	constValue, constant := lossKind.constHessian()
	gradients := make([]float64, nSamples)
	var hessianValues []float64
	if !constant {
		hessianValues = make([]float64, nSamples)
	}

	predictions := make([]float64, nSamples)
	var valPredictions []float64
	if xValBinned != nil {
		valPredictions = make([]float64, xValBinned.NumSamples())
	}

	booster := &GradientBooster{BinThresholds: binMapper.BinThresholds()}

	for stage := 0; stage < params.NStages; stage++ {
		for i := 0; i < nSamples; i++ {
			gradients[i] = lossKind.lossDer1(y[i], predictions[i])
		}
		hessians := ConstantHessians(constValue)
		if !constant {
			for i := 0; i < nSamples; i++ {
				hessianValues[i] = lossKind.lossDer2(y[i], predictions[i])
			}
			hessians = PerSampleHessians(hessianValues)
		}

		grower, err := NewTreeGrower(xBinned, binMapper.NumBinsPerFeature(), gradients, hessians, GrowerConfig{
			MaxLeafNodes:      params.MaxLeafNodes,
			MaxDepth:          params.MaxDepth,
			MinSamplesLeaf:    params.MinSamplesLeaf,
			MinHessianToSplit: params.MinHessianToSplit,
			MinGainToSplit:    params.MinGainToSplit,
			L2Regularization:  params.L2Regularization,
			Shrinkage:         params.LearningRate,
			Threads:           params.ThreadsNum,
		})
		if err != nil {
			return nil, err
		}
		grower.Grow()
		predictor, err := grower.MakePredictor(binMapper.BinThresholds())
		if err != nil {
			return nil, err
		}
		booster.Trees = append(booster.Trees, predictor)

		delta := predictor.PredictBinned(xBinned)
		for i := range predictions {
			predictions[i] += delta[i]
		}
		trainScore := score(y, predictions)
		booster.TrainScores = append(booster.TrainScores, trainScore)

		event := logger.Info().
			Int("stage", stage+1).
			Int("leaves", predictor.LeafCount()).
			Float64("train_score", trainScore)

		monitored := booster.TrainScores
		if xValBinned != nil {
			valDelta := predictor.PredictBinned(xValBinned)
			for i := range valPredictions {
				valPredictions[i] += valDelta[i]
			}
			valScore := score(yVal, valPredictions)
			booster.ValidationScores = append(booster.ValidationScores, valScore)
			event = event.Float64("validation_score", valScore)
			monitored = booster.ValidationScores
		}
		event.Msg("boosting round")

		if shouldStop(monitored, params.MaxNoImprovement, params.Tol) {
			logger.Info().Int("stage", stage+1).Msg("early stopping")
			break
		}
	}

	return booster, nil
}

//shouldStop reports whether the monitored score (lower is better) has
//failed to improve over the last patience rounds within tolerance.
func shouldStop(scores []float64, patience int, tol float64) bool {
	if patience == 0 || len(scores) <= patience {
		return false
	}
	reference := scores[len(scores)-patience-1]
	best := scores[len(scores)-patience]
	for _, s := range scores[len(scores)-patience:] {
		if s < best {
			best = s
		}
	}
	return reference <= best*(1+tol)
}

//Predict sums the raw-data predictions of the first treesNumber trees
//(all of them when nil).
func (booster *GradientBooster) Predict(x *mat.Dense, treesNumber *int) ([]float64, error) {
	n := len(booster.Trees)
	if treesNumber != nil && *treesNumber < n {
		n = *treesNumber
	}
	nSamples, _ := x.Dims()
	prediction := make([]float64, nSamples)
	for treeInd := 0; treeInd < n; treeInd++ {
		delta, err := booster.Trees[treeInd].Predict(x)
		if err != nil {
			return nil, err
		}
		for i := range prediction {
			prediction[i] += delta[i]
		}
	}
	return prediction, nil
}

//PredictBinned sums the per-tree predictions on pre-binned data. The
//matrix must have been produced by the same thresholds the booster was
//trained with.
func (booster *GradientBooster) PredictBinned(xb *BinnedMatrix) []float64 {
	prediction := make([]float64, xb.NumSamples())
	for _, tree := range booster.Trees {
		delta := tree.PredictBinned(xb)
		for i := range prediction {
			prediction[i] += delta[i]
		}
	}
	return prediction
}

func (booster *GradientBooster) Save(filename string) {
	dest, err := os.Create(filename)
	HandleError(err)
	defer func() { HandleError(dest.Close()) }()

	modelByteRepr, err := json.MarshalIndent(booster, "", "  ")
	HandleError(err)

	_, err = dest.Write(modelByteRepr)
	HandleError(err)
}

func LoadModel(filename string) (booster GradientBooster) {
	source, err := os.Open(filename)
	HandleError(err)
	defer func() { HandleError(source.Close()) }()

	decoder := json.NewDecoder(source)
	HandleError(decoder.Decode(&booster))
	return
}

func (booster *GradientBooster) RenderTrees(dumpPrefix, figureType, picturesDirectory string) {
	graphvizType := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]

	for graphInd, currentTree := range booster.Trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		graphViz, graph := currentTree.DrawGraph()
		HandleError(graphViz.RenderFilename(graph, graphvizType, path.Join(picturesDirectory, filename)))
	}
}
