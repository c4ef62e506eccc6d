package hbl

import (
	"container/heap"
	"fmt"
)

//GrowerConfig bounds the leaf-wise expansion of one tree.
type GrowerConfig struct {
	//MaxLeafNodes stops growth once this many leaves exist; zero means
	//unlimited.
	MaxLeafNodes int
	//MaxDepth forces nodes at this depth into leaves regardless of
	//gain; zero means unlimited.
	MaxDepth          int
	MinSamplesLeaf    int
	MinHessianToSplit float64
	MinGainToSplit    float64
	L2Regularization  float64
	//Shrinkage scales leaf values, the ensemble's learning rate; zero
	//defaults to 1.
	Shrinkage float64
	Threads   int
}

//treeNode is grower-internal state. A node references a contiguous
//range of the context's partition array, never a copy of indices, and
//retains its histograms only as long as a child may still subtract
//from them.
type treeNode struct {
	depth         int
	sampleIndices []int
	sumGradients  float64
	sumHessians   float64

	splitInfo  SplitInfo
	histograms []Histogram

	parent          *treeNode
	sibling         *treeNode
	histSubtraction bool

	leftChild  *treeNode
	rightChild *treeNode

	isLeaf bool
	value  float64

	seq int
}

//nodeHeap orders pending leaves by descending split gain; insertion
//order breaks ties so that growth is reproducible.
type nodeHeap []*treeNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].splitInfo.Gain != h[j].splitInfo.Gain {
		return h[i].splitInfo.Gain > h[j].splitInfo.Gain
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(*treeNode)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	node := old[n-1]
	*h = old[:n-1]
	return node
}

//TreeGrower drives the leaf-wise (best-first) expansion of a single
//tree: it repeatedly pops the pending leaf with the highest gain,
//partitions its sample range, computes the smaller child's histograms
//directly and the larger child's by subtraction, and pushes both
//children back as pending leaves.
type TreeGrower struct {
	ctx *SplittingContext

	maxLeafNodes int
	maxDepth     int
	shrinkage    float64

	root            *treeNode
	splittableNodes nodeHeap
	finalizedLeaves []*treeNode
	nLeaves         int
	nextSeq         int
	grown           bool
}

//NewTreeGrower validates the configuration and input shapes, builds the
//splitting context and evaluates the root. All failures are reported
//here; Grow itself cannot fail.
func NewTreeGrower(x *BinnedMatrix, nBinsPerFeature []int, gradients []float64, hessians Hessians, config GrowerConfig) (*TreeGrower, error) {
	if config.MaxLeafNodes < 0 {
		return nil, fmt.Errorf("%w: negative MaxLeafNodes %d", ErrBadConfig, config.MaxLeafNodes)
	}
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: negative MaxDepth %d", ErrBadConfig, config.MaxDepth)
	}
	if config.Shrinkage < 0 {
		return nil, fmt.Errorf("%w: negative Shrinkage %g", ErrBadConfig, config.Shrinkage)
	}

	ctx, err := NewSplittingContext(x, nBinsPerFeature, gradients, hessians, SplitParams{
		L2Regularization:  config.L2Regularization,
		MinHessianToSplit: config.MinHessianToSplit,
		MinSamplesLeaf:    config.MinSamplesLeaf,
		MinGainToSplit:    config.MinGainToSplit,
		Threads:           config.Threads,
	})
	if err != nil {
		return nil, err
	}

	shrinkage := config.Shrinkage
	if shrinkage == 0 {
		shrinkage = 1
	}

	grower := &TreeGrower{
		ctx:          ctx,
		maxLeafNodes: config.MaxLeafNodes,
		maxDepth:     config.MaxDepth,
		shrinkage:    shrinkage,
	}
	grower.initializeRoot()
	return grower, nil
}

func (g *TreeGrower) newNode(depth int, sampleIndices []int, sumGradients, sumHessians float64) *treeNode {
	node := &treeNode{
		depth:         depth,
		sampleIndices: sampleIndices,
		sumGradients:  sumGradients,
		sumHessians:   sumHessians,
		seq:           g.nextSeq,
	}
	g.nextSeq++
	return node
}

func (g *TreeGrower) initializeRoot() {
	sumGradients := sumSlice(g.ctx.gradients)
	var sumHessians float64
	if g.ctx.hessians.IsConstant() {
		sumHessians = g.ctx.hessians.TotalFor(len(g.ctx.partition))
	} else {
		sumHessians = sumSlice(g.ctx.hessians.Values())
	}

	g.root = g.newNode(0, g.ctx.partition, sumGradients, sumHessians)
	g.nLeaves = 1
	if g.maxLeafNodes == 1 {
		g.finalizeLeaf(g.root)
		return
	}
	g.computeSplittability(g.root)
}

//computeSplittability evaluates a node's histograms and best split and
//routes the node to the pending heap or directly to a leaf. The
//subtraction path requires that both the parent's and the direct
//sibling's histograms are complete, which the split order guarantees.
func (g *TreeGrower) computeSplittability(node *treeNode) {
	var splitInfo SplitInfo
	var histograms []Histogram
	if node.histSubtraction {
		splitInfo, histograms = g.ctx.FindNodeSplitSubtraction(node.sampleIndices, node.parent.histograms, node.sibling.histograms)
	} else {
		splitInfo, histograms = g.ctx.FindNodeSplit(node.sampleIndices)
	}
	node.splitInfo = splitInfo
	node.histograms = histograms

	if splitInfo.Gain <= 0 {
		g.finalizeLeaf(node)
		return
	}
	heap.Push(&g.splittableNodes, node)
}

//Grow performs the full leaf-wise expansion until the structural limits
//are hit or no pending leaf can be split.
func (g *TreeGrower) Grow() {
	for g.splittableNodes.Len() > 0 {
		g.splitNext()
	}
	g.grown = true
}

func (g *TreeGrower) splitNext() {
	node := heap.Pop(&g.splittableNodes).(*treeNode)

	left, right := g.ctx.splitIndices(node.splitInfo, node.sampleIndices)

	leftChild := g.newNode(node.depth+1, left, node.splitInfo.GradientLeft, node.splitInfo.HessianLeft)
	rightChild := g.newNode(node.depth+1, right, node.splitInfo.GradientRight, node.splitInfo.HessianRight)
	leftChild.parent = node
	rightChild.parent = node
	node.leftChild = leftChild
	node.rightChild = rightChild
	g.nLeaves++

	if g.maxLeafNodes > 0 && g.nLeaves >= g.maxLeafNodes {
		g.finalizeLeaf(leftChild)
		g.finalizeLeaf(rightChild)
		g.finalizeSplittableNodes()
		node.histograms = nil
		return
	}

	if g.maxDepth > 0 && leftChild.depth >= g.maxDepth {
		g.finalizeLeaf(leftChild)
		g.finalizeLeaf(rightChild)
		node.histograms = nil
		return
	}

	// the smaller child is scanned directly so that the per-split
	// histogram cost is bounded by min(|left|, |right|); the larger
	// child reuses parent minus sibling
	smaller, larger := leftChild, rightChild
	if len(right) < len(left) {
		smaller, larger = rightChild, leftChild
	}
	g.computeSplittability(smaller)
	larger.histSubtraction = true
	larger.sibling = smaller
	g.computeSplittability(larger)

	// a child finalized as a leaf keeps its histograms until here: the
	// sibling's subtraction above still reads them
	if smaller.isLeaf {
		smaller.histograms = nil
	}
	if larger.isLeaf {
		larger.histograms = nil
	}
	node.histograms = nil
}

func (g *TreeGrower) finalizeLeaf(node *treeNode) {
	node.isLeaf = true
	node.value = g.shrinkage * g.ctx.leafValue(node.sumGradients, node.sumHessians)
	g.finalizedLeaves = append(g.finalizedLeaves, node)
}

//finalizeSplittableNodes turns every remaining pending node into a leaf
//once the leaf budget is exhausted.
func (g *TreeGrower) finalizeSplittableNodes() {
	for g.splittableNodes.Len() > 0 {
		node := heap.Pop(&g.splittableNodes).(*treeNode)
		g.finalizeLeaf(node)
		node.histograms = nil
	}
}

//LeafCount returns the number of finalized leaves.
func (g *TreeGrower) LeafCount() int { return len(g.finalizedLeaves) }

//MakePredictor compiles the finalized tree into its immutable
//prediction form, bound to a copy of the supplied per-feature bin
//threshold table. The same thresholds, fit once by the BinMapper, are
//shared by every tree of an ensemble.
func (g *TreeGrower) MakePredictor(binThresholds [][]float64) (*TreePredictor, error) {
	if !g.grown {
		return nil, fmt.Errorf("%w: MakePredictor before Grow", ErrBadConfig)
	}
	if binThresholds != nil && len(binThresholds) != g.ctx.x.NumFeatures() {
		return nil, fmt.Errorf("%w: %d threshold tables for %d features",
			ErrShapeMismatch, len(binThresholds), g.ctx.x.NumFeatures())
	}
	return newTreePredictor(g.root, binThresholds), nil
}
