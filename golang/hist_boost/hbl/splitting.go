package hbl

import (
	"fmt"
)

//noSplitGain is the sentinel gain of a SplitInfo describing a node for
//which no acceptable split exists. It is a signal, not an error: the
//grower finalizes such a node as a leaf and never retries.
const noSplitGain = -1.0

//SplitInfo is the best split found for one node. The split rule is
//"bin <= BinIdx goes left, bin > BinIdx goes right" on FeatureIdx.
//Left and right statistics always add up to the node totals within
//floating tolerance.
type SplitInfo struct {
	Gain          float64 `json:"gain"`
	FeatureIdx    int     `json:"feature_idx"`
	BinIdx        int     `json:"bin_idx"`
	GradientLeft  float64 `json:"gradient_left"`
	GradientRight float64 `json:"gradient_right"`
	HessianLeft   float64 `json:"hessian_left"`
	HessianRight  float64 `json:"hessian_right"`
	NSamplesLeft  int     `json:"n_samples_left"`
	NSamplesRight int     `json:"n_samples_right"`
}

func newNoSplitInfo() SplitInfo {
	return SplitInfo{Gain: noSplitGain, FeatureIdx: -1, BinIdx: -1}
}

//SplitParams are the regularization and structural constraints applied
//during split search.
type SplitParams struct {
	L2Regularization  float64
	MinHessianToSplit float64
	MinSamplesLeaf    int
	MinGainToSplit    float64
	Threads           int
}

//SplittingContext owns everything split search and partitioning need
//for one tree: the binned matrix, the gradient/hessian arrays and the
//global sample-index permutation. Tree nodes reference contiguous
//ranges of the partition array and never copy indices.
type SplittingContext struct {
	x               *BinnedMatrix
	nBinsPerFeature []int
	gradients       []float64
	hessians        Hessians

	l2Regularization  float64
	minHessianToSplit float64
	minSamplesLeaf    int
	minGainToSplit    float64
	threads           int

	partition []int
	scratch   []int
}

//NewSplittingContext validates shapes and parameters and initializes
//the partition array with the identity permutation. All validation
//failures surface here, before any histogram work begins.
func NewSplittingContext(x *BinnedMatrix, nBinsPerFeature []int, gradients []float64, hessians Hessians, params SplitParams) (*SplittingContext, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil binned matrix", ErrBadConfig)
	}
	nSamples := x.NumSamples()
	nFeatures := x.NumFeatures()
	if len(nBinsPerFeature) != nFeatures {
		return nil, fmt.Errorf("%w: %d bin counts for %d features", ErrShapeMismatch, len(nBinsPerFeature), nFeatures)
	}
	for j, nb := range nBinsPerFeature {
		if nb < 1 || nb > 256 {
			return nil, fmt.Errorf("%w: feature %d has %d bins, want [1, 256]", ErrBadConfig, j, nb)
		}
	}
	if len(gradients) != nSamples {
		return nil, fmt.Errorf("%w: %d gradients for %d samples", ErrShapeMismatch, len(gradients), nSamples)
	}
	if !hessians.IsConstant() && len(hessians.Values()) != nSamples {
		return nil, fmt.Errorf("%w: %d hessians for %d samples", ErrShapeMismatch, len(hessians.Values()), nSamples)
	}
	if params.L2Regularization < 0 {
		return nil, fmt.Errorf("%w: negative L2 regularization %g", ErrBadConfig, params.L2Regularization)
	}
	if params.MinHessianToSplit < 0 {
		return nil, fmt.Errorf("%w: negative MinHessianToSplit %g", ErrBadConfig, params.MinHessianToSplit)
	}
	if params.MinSamplesLeaf <= 0 {
		return nil, fmt.Errorf("%w: MinSamplesLeaf must be positive, got %d", ErrBadConfig, params.MinSamplesLeaf)
	}
	if params.MinGainToSplit < 0 {
		return nil, fmt.Errorf("%w: negative MinGainToSplit %g", ErrBadConfig, params.MinGainToSplit)
	}
	threads := params.Threads
	if threads < 1 {
		threads = 1
	}

	partition := make([]int, nSamples)
	for i := range partition {
		partition[i] = i
	}

	return &SplittingContext{
		x:                 x,
		nBinsPerFeature:   nBinsPerFeature,
		gradients:         gradients,
		hessians:          hessians,
		l2Regularization:  params.L2Regularization,
		minHessianToSplit: params.MinHessianToSplit,
		minSamplesLeaf:    params.MinSamplesLeaf,
		minGainToSplit:    params.MinGainToSplit,
		threads:           threads,
		partition:         partition,
		scratch:           make([]int, nSamples),
	}, nil
}

//Partition exposes the global sample-index permutation. The ranges of
//all current leaves always tile it exactly.
func (ctx *SplittingContext) Partition() []int { return ctx.partition }

type taskFeatureSplit struct {
	ctx           *SplittingContext
	sampleIndices []int
	feature       int
	sumGradients  float64
	sumHessians   float64
	histograms    []Histogram
	splits        []SplitInfo
}

func (t *taskFeatureSplit) Run() {
	hist := t.ctx.buildFeatureHistogram(t.feature, t.sampleIndices)
	t.histograms[t.feature] = hist
	t.splits[t.feature] = t.ctx.findBestBinToSplit(t.feature, hist, len(t.sampleIndices), t.sumGradients, t.sumHessians)
}

type taskFeatureSplitSubtraction struct {
	ctx           *SplittingContext
	feature       int
	parent        []Histogram
	sibling       []Histogram
	nSamples      int
	sumGradients  float64
	sumHessians   float64
	histograms    []Histogram
	splits        []SplitInfo
}

func (t *taskFeatureSplitSubtraction) Run() {
	hist := subtractHistograms(t.parent[t.feature], t.sibling[t.feature])
	t.histograms[t.feature] = hist
	t.splits[t.feature] = t.ctx.findBestBinToSplit(t.feature, hist, t.nSamples, t.sumGradients, t.sumHessians)
}

//FindNodeSplit computes every feature's histogram for the node by
//direct accumulation and returns the best split across features along
//with the histograms (kept for the sibling subtraction later).
func (ctx *SplittingContext) FindNodeSplit(sampleIndices []int) (SplitInfo, []Histogram) {
	sumGradients := 0.0
	for _, s := range sampleIndices {
		sumGradients += ctx.gradients[s]
	}
	var sumHessians float64
	if ctx.hessians.IsConstant() {
		sumHessians = ctx.hessians.TotalFor(len(sampleIndices))
	} else {
		values := ctx.hessians.Values()
		for _, s := range sampleIndices {
			sumHessians += values[s]
		}
	}

	nFeatures := ctx.x.NumFeatures()
	histograms := make([]Histogram, nFeatures)
	splits := make([]SplitInfo, nFeatures)

	if ctx.threads == 1 {
		for j := 0; j < nFeatures; j++ {
			task := taskFeatureSplit{ctx, sampleIndices, j, sumGradients, sumHessians, histograms, splits}
			task.Run()
		}
	} else {
		pool := NewPool(ctx.threads)
		for j := 0; j < nFeatures; j++ {
			pool.AddTask(&taskFeatureSplit{ctx, sampleIndices, j, sumGradients, sumHessians, histograms, splits})
		}
		pool.Close()
		pool.WaitAll()
	}

	return bestAcrossFeatures(splits), histograms
}

//FindNodeSplitSubtraction derives the node's histograms as parent minus
//sibling and runs the same per-feature scan. Callers guarantee that
//both input histogram sets are complete; the grower encodes that as a
//computation-order dependency, not a lock.
func (ctx *SplittingContext) FindNodeSplitSubtraction(sampleIndices []int, parent, sibling []Histogram) (SplitInfo, []Histogram) {
	nSamples := len(sampleIndices)

	// node totals come from any feature of the derived histograms; use
	// feature 0 ahead of the fan-out
	first := subtractHistograms(parent[0], sibling[0])
	_, sumGradients, sumHessians := first.totals()
	if ctx.hessians.IsConstant() {
		sumHessians = ctx.hessians.TotalFor(nSamples)
	}

	nFeatures := ctx.x.NumFeatures()
	histograms := make([]Histogram, nFeatures)
	splits := make([]SplitInfo, nFeatures)
	histograms[0] = first
	splits[0] = ctx.findBestBinToSplit(0, first, nSamples, sumGradients, sumHessians)

	if ctx.threads == 1 {
		for j := 1; j < nFeatures; j++ {
			task := taskFeatureSplitSubtraction{ctx, j, parent, sibling, nSamples, sumGradients, sumHessians, histograms, splits}
			task.Run()
		}
	} else {
		pool := NewPool(ctx.threads)
		for j := 1; j < nFeatures; j++ {
			pool.AddTask(&taskFeatureSplitSubtraction{ctx, j, parent, sibling, nSamples, sumGradients, sumHessians, histograms, splits})
		}
		pool.Close()
		pool.WaitAll()
	}

	return bestAcrossFeatures(splits), histograms
}

//buildFeatureHistogram picks the direct accumulation variant: the root
//covers the whole partition and skips the index indirection, and the
//constant-hessian mode skips per-bin hessian tracking.
func (ctx *SplittingContext) buildFeatureHistogram(feature int, sampleIndices []int) Histogram {
	nBins := ctx.nBinsPerFeature[feature]
	binnedFeature := ctx.x.FeatureBins(feature)
	isRoot := len(sampleIndices) == ctx.x.NumSamples()

	if ctx.hessians.IsConstant() {
		if isRoot {
			return buildHistogramRootNoHessian(nBins, binnedFeature, ctx.gradients)
		}
		return buildHistogramNoHessian(nBins, sampleIndices, binnedFeature, ctx.gradients)
	}
	if isRoot {
		return buildHistogramRoot(nBins, binnedFeature, ctx.gradients, ctx.hessians.Values())
	}
	return buildHistogram(nBins, sampleIndices, binnedFeature, ctx.gradients, ctx.hessians.Values())
}

//findBestBinToSplit scans one feature's bins in increasing order with a
//running left prefix; the right side is the node total minus the
//prefix. The last bin is excluded, it would leave the right side empty.
//Only strictly larger gains replace the incumbent, so ties resolve to
//the lowest bin (and, in bestAcrossFeatures, the lowest feature),
//keeping the search deterministic.
func (ctx *SplittingContext) findBestBinToSplit(feature int, hist Histogram, nSamples int, sumGradients, sumHessians float64) SplitInfo {
	best := newNoSplitInfo()

	constHessian := ctx.hessians.IsConstant()
	nBins := ctx.nBinsPerFeature[feature]

	nLeft := 0
	gradientLeft := 0.0
	hessianLeft := 0.0

	for bin := 0; bin < nBins-1; bin++ {
		nLeft += int(hist[bin].Count)
		gradientLeft += hist[bin].SumGradients
		if constHessian {
			hessianLeft = ctx.hessians.TotalFor(nLeft)
		} else {
			hessianLeft += hist[bin].SumHessians
		}
		nRight := nSamples - nLeft
		hessianRight := sumHessians - hessianLeft

		if hessianLeft < ctx.minHessianToSplit || nLeft < ctx.minSamplesLeaf {
			continue
		}
		// the right side only shrinks with the bin index
		if hessianRight < ctx.minHessianToSplit || nRight < ctx.minSamplesLeaf {
			break
		}

		gradientRight := sumGradients - gradientLeft
		gain := ctx.splitGain(gradientLeft, hessianLeft, gradientRight, hessianRight, sumGradients, sumHessians)
		if gain > best.Gain && gain > ctx.minGainToSplit {
			best = SplitInfo{
				Gain:          gain,
				FeatureIdx:    feature,
				BinIdx:        bin,
				GradientLeft:  gradientLeft,
				GradientRight: gradientRight,
				HessianLeft:   hessianLeft,
				HessianRight:  hessianRight,
				NSamplesLeft:  nLeft,
				NSamplesRight: nRight,
			}
		}
	}
	return best
}

//splitGain is the second-order loss-reduction estimate of a split under
//L2 regularization.
func (ctx *SplittingContext) splitGain(gradientLeft, hessianLeft, gradientRight, hessianRight, sumGradients, sumHessians float64) float64 {
	return ctx.negativeLoss(gradientLeft, hessianLeft) +
		ctx.negativeLoss(gradientRight, hessianRight) -
		ctx.negativeLoss(sumGradients, sumHessians)
}

func (ctx *SplittingContext) negativeLoss(gradient, hessian float64) float64 {
	return 0.5 * gradient * gradient / (hessian + ctx.l2Regularization)
}

//leafValue is the regularized Newton step of a terminal node.
func (ctx *SplittingContext) leafValue(sumGradients, sumHessians float64) float64 {
	return -sumGradients / (sumHessians + ctx.l2Regularization)
}

func bestAcrossFeatures(splits []SplitInfo) SplitInfo {
	best := newNoSplitInfo()
	for _, split := range splits {
		if split.Gain > best.Gain {
			best = split
		}
	}
	return best
}
