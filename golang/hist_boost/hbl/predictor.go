package hbl

import (
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"gonum.org/v1/gonum/mat"
)

//PredictorNode is one row of the flattened tree. Left and Right are -1
//on leaves. Threshold is the real-valued boundary corresponding to
//BinIdx, nil on leaves and when the predictor was compiled without a
//threshold table; prediction on raw data re-bins through the threshold
//table rather than comparing against Threshold directly, so both input
//paths agree by construction.
type PredictorNode struct {
	Value      float64  `json:"value"`
	Count      int      `json:"count"`
	FeatureIdx int      `json:"feature_idx"`
	BinIdx     int      `json:"bin_idx"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Gain       float64  `json:"gain"`
	Depth      int      `json:"depth"`
	IsLeaf     bool     `json:"is_leaf"`
	Left       int      `json:"left"`
	Right      int      `json:"right"`
}

//GraphDescription returns the node label for tree rendering.
func (node PredictorNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", node.Count))
	if node.IsLeaf {
		sb.WriteString(fmt.Sprintf("value: %6.5f", node.Value))
	} else {
		sb.WriteString(fmt.Sprintln("gain: ", node.Gain))
		sb.WriteString(fmt.Sprintf("f_%d: bin <= %d", node.FeatureIdx, node.BinIdx))
		if node.Threshold != nil {
			sb.WriteString(fmt.Sprintf(" (x <= %6.5f)", *node.Threshold))
		}
	}
	return sb.String()
}

//TreePredictor is the immutable compiled tree: a flat node table with
//the root at index 0 plus its own copy of the per-feature bin
//threshold table for re-quantizing raw inputs.
type TreePredictor struct {
	Nodes         []PredictorNode `json:"nodes"`
	BinThresholds [][]float64     `json:"bin_thresholds"`
}

func newTreePredictor(root *treeNode, binThresholds [][]float64) *TreePredictor {
	thresholds := make([][]float64, len(binThresholds))
	for j, t := range binThresholds {
		thresholds[j] = append([]float64(nil), t...)
	}
	predictor := &TreePredictor{BinThresholds: thresholds}
	predictor.fill(root)
	return predictor
}

func (tp *TreePredictor) fill(node *treeNode) int {
	idx := len(tp.Nodes)
	tp.Nodes = append(tp.Nodes, PredictorNode{
		Count:  len(node.sampleIndices),
		Depth:  node.depth,
		IsLeaf: node.isLeaf,
		Left:   -1,
		Right:  -1,
	})
	if node.isLeaf {
		tp.Nodes[idx].Value = node.value
		tp.Nodes[idx].FeatureIdx = -1
		tp.Nodes[idx].BinIdx = -1
		return idx
	}

	split := node.splitInfo
	tp.Nodes[idx].FeatureIdx = split.FeatureIdx
	tp.Nodes[idx].BinIdx = split.BinIdx
	tp.Nodes[idx].Gain = split.Gain
	if split.FeatureIdx < len(tp.BinThresholds) && split.BinIdx < len(tp.BinThresholds[split.FeatureIdx]) {
		threshold := tp.BinThresholds[split.FeatureIdx][split.BinIdx]
		tp.Nodes[idx].Threshold = &threshold
	}
	tp.Nodes[idx].Left = tp.fill(node.leftChild)
	tp.Nodes[idx].Right = tp.fill(node.rightChild)
	return idx
}

//LeafCount returns the number of leaves, for diagnostics.
func (tp *TreePredictor) LeafCount() (count int) {
	for i := range tp.Nodes {
		if tp.Nodes[i].IsLeaf {
			count++
		}
	}
	return
}

//PredictBinned evaluates every row of an already-binned matrix.
func (tp *TreePredictor) PredictBinned(xb *BinnedMatrix) []float64 {
	prediction := make([]float64, xb.NumSamples())
	for i := range prediction {
		prediction[i] = tp.predictOneBinned(xb, i)
	}
	return prediction
}

func (tp *TreePredictor) predictOneBinned(xb *BinnedMatrix, sample int) float64 {
	idx := 0
	for !tp.Nodes[idx].IsLeaf {
		node := &tp.Nodes[idx]
		if int(xb.At(sample, node.FeatureIdx)) <= node.BinIdx {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return tp.Nodes[idx].Value
}

//Predict evaluates raw (unbinned) rows, re-deriving the visited
//feature's bin index lazily from the stored threshold table. It
//requires the predictor to have been compiled with thresholds.
func (tp *TreePredictor) Predict(x *mat.Dense) ([]float64, error) {
	if len(tp.BinThresholds) == 0 {
		return nil, fmt.Errorf("%w: predictor compiled without bin thresholds", ErrBadConfig)
	}
	nSamples, nFeatures := x.Dims()
	if nFeatures != len(tp.BinThresholds) {
		return nil, fmt.Errorf("%w: %d features, predictor expects %d", ErrShapeMismatch, nFeatures, len(tp.BinThresholds))
	}
	prediction := make([]float64, nSamples)
	for i := range prediction {
		idx := 0
		for !tp.Nodes[idx].IsLeaf {
			node := &tp.Nodes[idx]
			bin := BinValue(tp.BinThresholds[node.FeatureIdx], x.At(i, node.FeatureIdx))
			if bin <= node.BinIdx {
				idx = node.Left
			} else {
				idx = node.Right
			}
		}
		prediction[i] = tp.Nodes[idx].Value
	}
	return prediction, nil
}

func (tp *TreePredictor) recurrentDraw(g *cgraph.Graph, nodeIdx int, parentNode *cgraph.Node) {
	currentNode, err := g.CreateNode(fmt.Sprint(nodeIdx))
	HandleError(err)

	if parentNode != nil {
		_, err = g.CreateEdge("", parentNode, currentNode)
		HandleError(err)
	}

	node := tp.Nodes[nodeIdx]
	currentNode.Set("label", node.GraphDescription())
	if node.IsLeaf {
		currentNode.Set("shape", "box")
	} else {
		tp.recurrentDraw(g, node.Left, currentNode)
		tp.recurrentDraw(g, node.Right, currentNode)
	}
}

//DrawGraph renders the tree as a graphviz graph.
func (tp *TreePredictor) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	HandleError(err)

	tp.recurrentDraw(graph, 0, nil)

	return graphViz, graph
}
