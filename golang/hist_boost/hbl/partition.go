package hbl

//The partitioner reorders a node's contiguous range of the global
//sample-index permutation in place so that samples going left occupy a
//leading sub-range and samples going right the trailing one. Sibling
//and ancestor ranges are untouched; each split owns exclusive write
//access to exactly its node's range. The sequential and parallel
//variants agree on the set membership of each side (the later
//computation depends only on membership and counts, not on intra-side
//order).

//SplitIndicesSingleThread partitions with a single scan-and-swap pass.
func (ctx *SplittingContext) SplitIndicesSingleThread(split SplitInfo, sampleIndices []int) (left, right []int) {
	binnedFeature := ctx.x.FeatureBins(split.FeatureIdx)
	threshold := uint8(split.BinIdx)

	lo, hi := 0, len(sampleIndices)
	for lo < hi {
		if binnedFeature[sampleIndices[lo]] <= threshold {
			lo++
		} else {
			hi--
			sampleIndices[lo], sampleIndices[hi] = sampleIndices[hi], sampleIndices[lo]
		}
	}
	return sampleIndices[:lo], sampleIndices[lo:]
}

type taskCountChunk struct {
	binnedFeature []uint8
	threshold     uint8
	chunk         []int
	leftCount     *int
}

func (t *taskCountChunk) Run() {
	count := 0
	for _, s := range t.chunk {
		if t.binnedFeature[s] <= t.threshold {
			count++
		}
	}
	*t.leftCount = count
}

type taskScatterChunk struct {
	binnedFeature []uint8
	threshold     uint8
	chunk         []int
	leftOut       []int
	rightOut      []int
}

func (t *taskScatterChunk) Run() {
	li, ri := 0, 0
	for _, s := range t.chunk {
		if t.binnedFeature[s] <= t.threshold {
			t.leftOut[li] = s
			li++
		} else {
			t.rightOut[ri] = s
			ri++
		}
	}
}

//SplitIndicesParallel partitions in two phases: workers count the
//left-going samples of their chunk, a merge pass turns the counts into
//exclusive output offsets, then workers scatter their chunk into the
//scratch buffer. No worker writes outside its assigned output range,
//so the phases need joins but no locks.
func (ctx *SplittingContext) SplitIndicesParallel(split SplitInfo, sampleIndices []int) (left, right []int) {
	n := len(sampleIndices)
	nChunks := ctx.threads
	if nChunks > n {
		nChunks = n
	}
	if nChunks < 1 {
		nChunks = 1
	}

	binnedFeature := ctx.x.FeatureBins(split.FeatureIdx)
	threshold := uint8(split.BinIdx)

	chunks := make([][]int, nChunks)
	leftCounts := make([]int, nChunks)
	chunkSize := (n + nChunks - 1) / nChunks
	for k := 0; k < nChunks; k++ {
		start := k * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks[k] = sampleIndices[start:end]
	}

	pool := NewPool(ctx.threads)
	for k := 0; k < nChunks; k++ {
		pool.AddTask(&taskCountChunk{binnedFeature, threshold, chunks[k], &leftCounts[k]})
	}
	pool.WaitAll()

	nLeft := 0
	for _, c := range leftCounts {
		nLeft += c
	}

	buf := ctx.scratch[:n]
	leftOffset, rightOffset := 0, nLeft
	for k := 0; k < nChunks; k++ {
		chunkLeft := leftCounts[k]
		chunkRight := len(chunks[k]) - chunkLeft
		pool.AddTask(&taskScatterChunk{
			binnedFeature: binnedFeature,
			threshold:     threshold,
			chunk:         chunks[k],
			leftOut:       buf[leftOffset : leftOffset+chunkLeft],
			rightOut:      buf[rightOffset : rightOffset+chunkRight],
		})
		leftOffset += chunkLeft
		rightOffset += chunkRight
	}
	pool.Close()
	pool.WaitAll()

	copy(sampleIndices, buf)
	return sampleIndices[:nLeft], sampleIndices[nLeft:]
}

//splitIndices dispatches on the configured worker count.
func (ctx *SplittingContext) splitIndices(split SplitInfo, sampleIndices []int) (left, right []int) {
	if ctx.threads == 1 {
		return ctx.SplitIndicesSingleThread(split, sampleIndices)
	}
	return ctx.SplitIndicesParallel(split, sampleIndices)
}
