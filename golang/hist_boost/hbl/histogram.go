package hbl

//HistogramEntry aggregates the samples of one bin.
type HistogramEntry struct {
	Count        uint64  `json:"count"`
	SumGradients float64 `json:"sum_gradients"`
	SumHessians  float64 `json:"sum_hessians"`
}

//Histogram is the per-feature array of bin aggregates for one tree
//node. Summed over bins it reproduces the node totals: count equals the
//node's sample count and the gradient/hessian sums equal the node's
//sums, identically for every feature of the same node. Under the
//constant-hessian variant SumHessians stays zero and totals are derived
//analytically from the counts.
type Histogram []HistogramEntry

//totals sums a histogram over its bins.
func (h Histogram) totals() (count uint64, sumGradients, sumHessians float64) {
	for i := range h {
		count += h[i].Count
		sumGradients += h[i].SumGradients
		sumHessians += h[i].SumHessians
	}
	return
}

//buildHistogram accumulates one feature's histogram over an explicit
//sample-index set, tracking hessian sums per bin.
func buildHistogram(nBins int, sampleIndices []int, binnedFeature []uint8, gradients, hessians []float64) Histogram {
	hist := make(Histogram, nBins)
	for _, s := range sampleIndices {
		bin := binnedFeature[s]
		hist[bin].Count++
		hist[bin].SumGradients += gradients[s]
		hist[bin].SumHessians += hessians[s]
	}
	return hist
}

//buildHistogramNoHessian is the constant-hessian variant: per-bin
//hessian sums are not tracked, counts stand in for them.
func buildHistogramNoHessian(nBins int, sampleIndices []int, binnedFeature []uint8, gradients []float64) Histogram {
	hist := make(Histogram, nBins)
	for _, s := range sampleIndices {
		bin := binnedFeature[s]
		hist[bin].Count++
		hist[bin].SumGradients += gradients[s]
	}
	return hist
}

//buildHistogramRoot accumulates over every sample without indirection
//through the index array. The root covers the whole partition, so the
//straight scan is both correct and faster.
func buildHistogramRoot(nBins int, binnedFeature []uint8, gradients, hessians []float64) Histogram {
	hist := make(Histogram, nBins)
	for i, bin := range binnedFeature {
		hist[bin].Count++
		hist[bin].SumGradients += gradients[i]
		hist[bin].SumHessians += hessians[i]
	}
	return hist
}

func buildHistogramRootNoHessian(nBins int, binnedFeature []uint8, gradients []float64) Histogram {
	hist := make(Histogram, nBins)
	for i, bin := range binnedFeature {
		hist[bin].Count++
		hist[bin].SumGradients += gradients[i]
	}
	return hist
}

//subtractHistograms derives a sibling histogram bin by bin as parent
//minus the directly computed sibling. This bounds the per-split
//histogram cost by the smaller child: only that child is ever scanned.
func subtractHistograms(parent, sibling Histogram) Histogram {
	hist := make(Histogram, len(parent))
	for b := range parent {
		hist[b].Count = parent[b].Count - sibling[b].Count
		hist[b].SumGradients = parent[b].SumGradients - sibling[b].SumGradients
		hist[b].SumHessians = parent[b].SumHessians - sibling[b].SumHessians
	}
	return hist
}
