package hbl

import "math"

//SplitLoss supplies the first and second derivatives of the training
//loss with respect to the current prediction, plus whether the second
//derivative is a constant shared by all samples. Constant-hessian
//losses let the histograms skip per-bin hessian tracking.
type SplitLoss interface {
	lossDer1(target, prediction float64) float64
	lossDer2(target, prediction float64) float64
	constHessian() (float64, bool)
}

//MseLoss is squared error, 0.5*(prediction-target)^2. Its hessian is
//the constant 1.
type MseLoss struct{}

func (MseLoss) lossDer1(target, prediction float64) float64 { return prediction - target }
func (MseLoss) lossDer2(target, prediction float64) float64 { return 1 }
func (MseLoss) constHessian() (float64, bool)               { return 1, true }

//LogLoss is binary cross entropy on a 0/1 target with the prediction
//kept in logit space.
type LogLoss struct{}

func (LogLoss) lossDer1(target, prediction float64) float64 {
	return sigmoid(prediction) - target
}

func (LogLoss) lossDer2(target, prediction float64) float64 {
	p := sigmoid(prediction)
	return p * (1 - p)
}

func (LogLoss) constHessian() (float64, bool) { return 0, false }

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

//Rmse is the root mean squared error between target and prediction.
func Rmse(target []float64, prediction []float64) float64 {
	sumSq := 0.0
	for i := range target {
		d := prediction[i] - target[i]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(target)))
}

//Logloss reports binary cross entropy; predictions are logits.
func Logloss(target []float64, prediction []float64) float64 {
	total := 0.0
	for i := range target {
		p := sigmoid(prediction[i])
		p = math.Min(math.Max(p, 1e-15), 1-1e-15)
		total += -target[i]*math.Log(p) - (1-target[i])*math.Log(1-p)
	}
	return total / float64(len(target))
}
