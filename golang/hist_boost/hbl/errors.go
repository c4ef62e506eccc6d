package hbl

import "errors"

//Configuration and shape problems are the only failure surface of the
//engine: everything else (degenerate features, unsplittable nodes) is
//absorbed into normal leaf termination.
var (
	//ErrBadConfig marks an invalid parameter caught at construction.
	ErrBadConfig = errors.New("hbl: invalid configuration")

	//ErrShapeMismatch marks input arrays whose lengths disagree with
	//the sample count before any histogram work begins.
	ErrShapeMismatch = errors.New("hbl: inconsistent input shapes")
)
