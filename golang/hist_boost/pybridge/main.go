// SPDX-License-Identifier: Apache-2.0

package main

/*
#cgo CFLAGS: -I.
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"math"
	"sync"
	"unsafe"

	"gonum.org/v1/gonum/mat"

	hbl "github.com/tarstars/histogram_boosting/golang/hist_boost/hbl"
)

var (
	handleMu   sync.Mutex
	nextHandle uint64 = 1
	boosters          = make(map[uint64]*hbl.GradientBooster)

	lastErrorMu sync.Mutex
	lastError   string
)

func setLastError(err error) {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

func storeBooster(b *hbl.GradientBooster) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	boosters[handle] = b
	nextHandle++
	return handle
}

func fetchBooster(handle uint64) (*hbl.GradientBooster, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	booster, ok := boosters[handle]
	if !ok {
		return nil, errors.New("invalid booster handle")
	}
	return booster, nil
}

//export FreeModel
func FreeModel(handle C.ulonglong) {
	handleMu.Lock()
	defer handleMu.Unlock()
	delete(boosters, uint64(handle))
}

func copyFloatSlice(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length)
	dst := make([]float64, length)
	copy(dst, src)
	return dst, nil
}

func sliceFromPtr(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length), nil
}

func buildDense(ptr *C.double, rows, cols C.int) (*mat.Dense, error) {
	r := int(rows)
	c := int(cols)
	if r < 0 || c < 0 {
		return nil, errors.New("invalid matrix dimensions")
	}
	if r == 0 || c == 0 {
		return mat.NewDense(r, c, nil), nil
	}
	data, err := copyFloatSlice(ptr, r*c)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(r, c, data), nil
}

func buildLoss(kind C.int) (hbl.SplitLoss, error) {
	switch kind {
	case 0:
		return hbl.MseLoss{}, nil
	case 1:
		return hbl.LogLoss{}, nil
	default:
		return nil, errors.New("unsupported loss kind")
	}
}

//export TrainModel
func TrainModel(
	featuresPtr *C.double,
	rows C.int,
	cols C.int,
	targetPtr *C.double,
	nStages C.int,
	learningRate C.double,
	maxLeafNodes C.int,
	maxDepth C.int,
	regLambda C.double,
	nBins C.int,
	minSamplesLeaf C.int,
	lossKind C.int,
	threadsNum C.int,
	seed C.longlong,
) C.ulonglong {
	setLastError(nil)

	if rows <= 0 {
		setLastError(errors.New("rows must be positive"))
		return 0
	}

	features, err := buildDense(featuresPtr, rows, cols)
	if err != nil {
		setLastError(err)
		return 0
	}

	target, err := copyFloatSlice(targetPtr, int(rows))
	if err != nil {
		setLastError(err)
		return 0
	}

	loss, err := buildLoss(lossKind)
	if err != nil {
		setLastError(err)
		return 0
	}

	booster, err := hbl.NewGradientBooster(hbl.BoosterParams{
		NStages:           int(nStages),
		LearningRate:      float64(learningRate),
		MaxLeafNodes:      int(maxLeafNodes),
		MaxDepth:          int(maxDepth),
		L2Regularization:  float64(regLambda),
		NBins:             int(nBins),
		MinSamplesLeaf:    int(minSamplesLeaf),
		MinHessianToSplit: 1e-3,
		ThreadsNum:        int(math.Max(1, float64(threadsNum))),
		Seed:              int64(seed),
		LossKind:          loss,
	}, features, target, nil, nil)
	if err != nil {
		setLastError(err)
		return 0
	}

	return C.ulonglong(storeBooster(booster))
}

//export Predict
func Predict(
	handle C.ulonglong,
	featuresPtr *C.double,
	rows C.int,
	cols C.int,
	outputPtr *C.double,
	treeLimit C.int,
) C.int {
	setLastError(nil)
	booster, err := fetchBooster(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}

	features, err := buildDense(featuresPtr, rows, cols)
	if err != nil {
		setLastError(err)
		return 2
	}

	var limit *int
	if treeLimit > 0 {
		l := int(treeLimit)
		limit = &l
	}

	prediction, err := booster.Predict(features, limit)
	if err != nil {
		setLastError(err)
		return 3
	}

	outSlice, err := sliceFromPtr(outputPtr, int(rows))
	if err != nil {
		setLastError(err)
		return 4
	}
	copy(outSlice, prediction)
	return 0
}

//export SaveModel
func SaveModel(handle C.ulonglong, path *C.char) C.int {
	setLastError(nil)
	booster, err := fetchBooster(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}
	booster.Save(C.GoString(path))
	return 0
}

//export LoadModel
func LoadModel(path *C.char) C.ulonglong {
	setLastError(nil)
	booster := hbl.LoadModel(C.GoString(path))
	return C.ulonglong(storeBooster(&booster))
}

//export RenderTrees
func RenderTrees(handle C.ulonglong, prefix, figureType, directory *C.char) C.int {
	setLastError(nil)
	booster, err := fetchBooster(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}
	goPrefix := C.GoString(prefix)
	goFigureType := C.GoString(figureType)
	goDir := C.GoString(directory)
	if goPrefix == "" {
		goPrefix = "tree"
	}
	if goFigureType == "" {
		goFigureType = "svg"
	}
	if goDir == "" {
		goDir = "."
	}
	booster.RenderTrees(goPrefix, goFigureType, goDir)
	return 0
}

//export GetLastError
func GetLastError() *C.char {
	errStr := getLastError()
	if errStr == "" {
		return nil
	}
	return C.CString(errStr)
}

//export FreeCString
func FreeCString(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

func main() {}
