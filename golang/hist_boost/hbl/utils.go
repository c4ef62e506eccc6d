package hbl

import (
	"log"

	"gonum.org/v1/gonum/mat"
)

//HandleError panics on any non-nil error. It is meant for the CLI and
//IO layer where an error leaves nothing to recover.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

//Height returns the number of rows of a dense matrix.
func Height(m *mat.Dense) int {
	h, _ := m.Dims()
	return h
}

func sumSlice(xs []float64) (tot float64) {
	for _, x := range xs {
		tot += x
	}
	return
}
