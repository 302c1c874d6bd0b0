package check

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Comparison is the element-wise agreement of a grouped result and its
// split reference.
type Comparison struct {
	Name       string  `json:"name"`
	MaxAbsDiff float64 `json:"max_abs_diff"`
	Mismatches int     `json:"mismatches"`
	Within     bool    `json:"within_tolerance"`

	// Diffs holds grouped - reference per element, for plotting.
	Diffs []float64 `json:"-"`
}

// compare returns the comparison of grouped against reference. Elements
// match when |g - r| <= absTol + relTol*|r|. The slices must be the same
// length.
func compare(name string, grouped, reference []float64, absTol, relTol float64) Comparison {
	diffs := make([]float64, len(grouped))
	floats.SubTo(diffs, grouped, reference)

	c := Comparison{Name: name, Diffs: diffs, Within: true}
	if len(diffs) > 0 {
		c.MaxAbsDiff = floats.Norm(diffs, math.Inf(1))
	}
	for i, d := range diffs {
		if math.IsNaN(d) || math.Abs(d) > absTol+relTol*math.Abs(reference[i]) {
			c.Mismatches++
			c.Within = false
		}
	}
	if math.IsNaN(c.MaxAbsDiff) || math.IsInf(c.MaxAbsDiff, 0) {
		// Keep the report JSON-encodable.
		c.MaxAbsDiff = math.MaxFloat64
	}
	return c
}

// Report is the outcome of one scenario run.
type Report struct {
	Scenario string `json:"scenario"`
	DType    string `json:"dtype"`
	Device   string `json:"device"`
	Seed     int64  `json:"seed"`
	Module   string `json:"module"`

	OutputSize        tensor.Shape `json:"output_size"`
	ReferenceSize     tensor.Shape `json:"reference_size"`
	OutputGradSize    tensor.Shape `json:"output_grad_size"`
	ReferenceGradSize tensor.Shape `json:"reference_grad_size"`

	Output     Comparison  `json:"output"`
	InputGrad  Comparison  `json:"input_grad"`
	WeightGrad Comparison  `json:"weight_grad"`
	BiasGrad   *Comparison `json:"bias_grad,omitempty"`

	// Tensors holds the compared tensors by name, for WriteTensors.
	Tensors map[string]*tensor.RawTensor `json:"-"`

	AbsTol  float64       `json:"abs_tol"`
	RelTol  float64       `json:"rel_tol"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// ShapesMatch reports whether the grouped and reference output and input
// gradient shapes are identical.
func (r *Report) ShapesMatch() bool {
	return r.OutputSize.Equal(r.ReferenceSize) && r.OutputGradSize.Equal(r.ReferenceGradSize)
}

func (r *Report) checkShapes() error {
	if r.ShapesMatch() {
		return nil
	}
	return fmt.Errorf("%w: output %v vs %v, input grad %v vs %v", ErrShapeMismatch,
		r.OutputSize, r.ReferenceSize, r.OutputGradSize, r.ReferenceGradSize)
}

// Comparisons returns the comparisons in display order.
func (r *Report) Comparisons() []Comparison {
	out := []Comparison{r.Output, r.InputGrad, r.WeightGrad}
	if r.BiasGrad != nil {
		out = append(out, *r.BiasGrad)
	}
	return out
}

// Pass reports whether shapes match and every comparison is within tolerance.
func (r *Report) Pass() bool {
	if !r.ShapesMatch() {
		return false
	}
	for _, c := range r.Comparisons() {
		if !c.Within {
			return false
		}
	}
	return true
}
