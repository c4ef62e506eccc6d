package hbl

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//Dataset couples a raw feature matrix with its target column.
type Dataset struct {
	Features *mat.Dense
	Target   []float64
}

//ReadNpy reads the content of an npy file into a dense matrix.
func ReadNpy(fileName string) (denseMat *mat.Dense, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, err
	}

	denseMat = &mat.Dense{}
	if err = r.Read(denseMat); err != nil {
		return nil, err
	}
	return denseMat, nil
}

//WriteNpy saves a dense matrix as an npy file.
func WriteNpy(fileName string, m *mat.Dense) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer func() { HandleError(dst.Close()) }()
	return npyio.Write(dst, m)
}

//ReadDataset loads the feature and target npy files of a data set and
//validates their shapes before any training work starts.
func ReadDataset(featuresFile, targetFile string) (Dataset, error) {
	features, err := ReadNpy(featuresFile)
	if err != nil {
		return Dataset{}, err
	}
	targetMat, err := ReadNpy(targetFile)
	if err != nil {
		return Dataset{}, err
	}

	targetH, targetW := targetMat.Dims()
	if targetW != 1 {
		return Dataset{}, fmt.Errorf("%w: the width of target should be 1 not %d", ErrShapeMismatch, targetW)
	}
	if targetH != Height(features) {
		return Dataset{}, fmt.Errorf("%w: target height %d is not equal to the features height %d",
			ErrShapeMismatch, targetH, Height(features))
	}

	target := make([]float64, targetH)
	for i := 0; i < targetH; i++ {
		target[i] = targetMat.At(i, 0)
	}
	return Dataset{Features: features, Target: target}, nil
}
