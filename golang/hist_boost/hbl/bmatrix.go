package hbl

import (
	"fmt"
	"io"

	"gorgonia.org/tensor"
)

//BinnedMatrix stores quantized features in feature-major order: one
//contiguous row of bin indices per feature, held by a uint8 tensor of
//shape (features, samples). Histogram accumulation walks a single
//feature row, so the layout keeps every scan cache-local. The matrix is
//immutable once produced by a BinMapper.
type BinnedMatrix struct {
	dense    *tensor.Dense
	backing  []uint8
	nSamples int
	nFeats   int
}

//NewBinnedMatrix allocates a zeroed binned matrix for the given shape.
func NewBinnedMatrix(nSamples, nFeatures int) *BinnedMatrix {
	dense := tensor.New(tensor.Of(tensor.Uint8), tensor.WithShape(nFeatures, nSamples))
	return &BinnedMatrix{
		dense:    dense,
		backing:  dense.Data().([]uint8),
		nSamples: nSamples,
		nFeats:   nFeatures,
	}
}

//NumSamples returns the number of rows of the original data.
func (bm *BinnedMatrix) NumSamples() int { return bm.nSamples }

//NumFeatures returns the number of quantized feature columns.
func (bm *BinnedMatrix) NumFeatures() int { return bm.nFeats }

//FeatureBins returns the contiguous bin-index row of one feature.
//The slice aliases the backing store and must not be mutated.
func (bm *BinnedMatrix) FeatureBins(feature int) []uint8 {
	return bm.backing[feature*bm.nSamples : (feature+1)*bm.nSamples]
}

//At returns the bin index of one sample in one feature.
func (bm *BinnedMatrix) At(sample, feature int) uint8 {
	return bm.backing[feature*bm.nSamples+sample]
}

func (bm *BinnedMatrix) set(sample, feature int, bin uint8) {
	bm.backing[feature*bm.nSamples+sample] = bin
}

//WriteNpy dumps the binned matrix in npy format with shape
//(features, samples), so a binning pass can be cached on disk.
func (bm *BinnedMatrix) WriteNpy(w io.Writer) error {
	return bm.dense.WriteNpy(w)
}

//ReadBinnedMatrix restores a matrix written by WriteNpy.
func ReadBinnedMatrix(r io.Reader) (*BinnedMatrix, error) {
	dense := new(tensor.Dense)
	if err := dense.ReadNpy(r); err != nil {
		return nil, err
	}
	shape := dense.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: binned dump has %d dimensions, want 2", ErrShapeMismatch, len(shape))
	}
	backing, ok := dense.Data().([]uint8)
	if !ok {
		return nil, fmt.Errorf("%w: binned dump is not uint8", ErrShapeMismatch)
	}
	return &BinnedMatrix{
		dense:    dense,
		backing:  backing,
		nSamples: shape[1],
		nFeats:   shape[0],
	}, nil
}
