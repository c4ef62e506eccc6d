package hbl

//Hessians carries the second-order statistics of the loss as an
//explicit tagged variant: either one value per sample, or a single
//scalar shared by all samples. Losses with a constant second derivative
//use the scalar form, which lets histograms skip per-bin hessian sums
//entirely while split totals are derived as count times the scalar.
type Hessians struct {
	perSample []float64
	constant  float64
}

//ConstantHessians builds the scalar variant.
func ConstantHessians(value float64) Hessians {
	return Hessians{constant: value}
}

//PerSampleHessians builds the per-sample variant.
func PerSampleHessians(values []float64) Hessians {
	return Hessians{perSample: values}
}

//IsConstant reports whether all samples share one hessian value.
func (h Hessians) IsConstant() bool { return h.perSample == nil }

//Constant returns the shared scalar; only meaningful when IsConstant.
func (h Hessians) Constant() float64 { return h.constant }

//Values returns the per-sample slice; nil when IsConstant.
func (h Hessians) Values() []float64 { return h.perSample }

//TotalFor returns the hessian sum of a sample set of the given size.
//For the per-sample variant the caller sums explicitly; this helper
//covers the analytic constant case.
func (h Hessians) TotalFor(count int) float64 {
	return float64(count) * h.constant
}
