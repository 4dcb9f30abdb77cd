// Package conv implements the im2col/col2im convolution engine shared by the
// convolutional and pooling layers: padding policies, volume unrolling, the
// GEMM-backed convolution, and slow loop-based reference kernels.
//
// Spatial volumes are NHWC: (examples, rows, cols, channels) for 2D and
// (examples, length, channels) for 1D. Kernels are (rows, cols, in, out) for
// 2D and (width, in, out) for 1D. Dilation d inserts d zeros between kernel
// taps, giving an effective size of f*(d+1) - d.
package conv

import (
	"fmt"

	"github.com/spindle-ml/spindle/tensor"
)

type padKind int

const (
	padExplicit padKind = iota
	padSame
	padCausal
)

// Padding selects how a convolution or pooling input is zero-padded. The
// explicit forms are interpreted per rank: for 1D inputs IntPad(p) pads both
// ends with p and PairPad(a, b) pads left/right; for 2D inputs IntPad(p) pads
// all four edges, PairPad(pr, pc) pads rows/cols symmetrically and QuadPad
// gives all four edges. Same computes the padding that keeps the output the
// spatial size of the input; Causal does the same for 1D inputs but places
// every padding element on the left, so output t never sees input t+1.
// The zero value pads nothing, like IntPad(0).
type Padding struct {
	kind padKind
	vals []int
}

// IntPad pads every edge with p zeros.
func IntPad(p int) Padding { return Padding{kind: padExplicit, vals: []int{p}} }

// PairPad pads with two explicit amounts, interpreted per rank.
func PairPad(a, b int) Padding { return Padding{kind: padExplicit, vals: []int{a, b}} }

// QuadPad pads a 2D input with explicit (top, bottom, left, right) amounts.
func QuadPad(r1, r2, c1, c2 int) Padding {
	return Padding{kind: padExplicit, vals: []int{r1, r2, c1, c2}}
}

// Same selects output-preserving padding.
func Same() Padding { return Padding{kind: padSame} }

// Causal selects left-only output-preserving padding for 1D inputs.
func Causal() Padding { return Padding{kind: padCausal} }

func (p Padding) String() string {
	switch p.kind {
	case padSame:
		return "same"
	case padCausal:
		return "causal"
	}
	switch len(p.vals) {
	case 0:
		return "0"
	case 1:
		return fmt.Sprintf("%d", p.vals[0])
	case 2:
		return fmt.Sprintf("(%d, %d)", p.vals[0], p.vals[1])
	default:
		return fmt.Sprintf("(%d, %d, %d, %d)", p.vals[0], p.vals[1], p.vals[2], p.vals[3])
	}
}

// EffKernel returns the effective kernel size under dilation d.
func EffKernel(f, d int) int { return f*(d+1) - d }

// OutLen returns the number of output positions along one axis.
func OutLen(in, p0, p1, f, stride, dilation int) int {
	n := in + p0 + p1 - EffKernel(f, dilation)
	if n < 0 {
		panic(fmt.Sprintf("conv: kernel %d (dilation %d) exceeds padded input %d", f, dilation, in+p0+p1))
	}
	return n/stride + 1
}

// Resolve1D turns the policy into explicit (left, right) amounts for an input
// of length inLen under kernel width fw.
func (p Padding) Resolve1D(inLen, fw, stride, dilation int) (int, int) {
	switch p.kind {
	case padSame:
		return calcPad1D(inLen, inLen, fw, stride, dilation, false)
	case padCausal:
		return calcPad1D(inLen, inLen, fw, stride, dilation, true)
	}
	switch len(p.vals) {
	case 0:
		return 0, 0
	case 1:
		return checkPad1D(p.vals[0], p.vals[0])
	case 2:
		return checkPad1D(p.vals[0], p.vals[1])
	}
	panic(fmt.Sprintf("conv: %s is not a 1D padding", p))
}

// Resolve2D turns the policy into explicit (top, bottom, left, right) amounts
// for an (inRows, inCols) input under an (fr, fc) kernel.
func (p Padding) Resolve2D(inRows, inCols, fr, fc, stride, dilation int) [4]int {
	switch p.kind {
	case padSame:
		return CalcPad2D(inRows, inCols, inRows, inCols, fr, fc, stride, dilation)
	case padCausal:
		panic("conv: causal padding is defined for 1D inputs only")
	}
	var q [4]int
	switch len(p.vals) {
	case 1:
		q = [4]int{p.vals[0], p.vals[0], p.vals[0], p.vals[0]}
	case 2:
		q = [4]int{p.vals[0], p.vals[0], p.vals[1], p.vals[1]}
	case 4:
		q = [4]int{p.vals[0], p.vals[1], p.vals[2], p.vals[3]}
	}
	for _, v := range q {
		if v < 0 {
			panic(fmt.Sprintf("conv: negative padding %v", q))
		}
	}
	return q
}

func checkPad1D(p0, p1 int) (int, int) {
	if p0 < 0 || p1 < 0 {
		panic(fmt.Sprintf("conv: negative padding (%d, %d)", p0, p1))
	}
	return p0, p1
}

// calcPad1D computes the padding that maps inLen to outLen positions. The
// symmetric form biases the extra element, if any, to the right; the causal
// form places everything on the left.
func calcPad1D(inLen, outLen, fw, stride, dilation int, causal bool) (int, int) {
	eff := EffKernel(fw, dilation)
	total := stride*(outLen-1) + eff - inLen

	if causal {
		if total < 0 {
			panic(fmt.Sprintf("conv: no causal padding maps length %d to %d", inLen, outLen))
		}
		return total, 0
	}

	pw := total / 2
	if pw < 0 {
		panic(fmt.Sprintf("conv: no padding maps length %d to %d", inLen, outLen))
	}
	got := (inLen+2*pw-eff)/stride + 1
	switch got {
	case outLen:
		return pw, pw
	case outLen - 1:
		return pw, pw + 1
	}
	panic(fmt.Sprintf("conv: no padding maps length %d to %d with kernel %d stride %d", inLen, outLen, fw, stride))
}

// CalcPad2D computes the (top, bottom, left, right) padding that maps an
// (inRows, inCols) input to (outRows, outCols) output positions, biasing any
// odd element to the bottom/right edge.
func CalcPad2D(inRows, inCols, outRows, outCols, fr, fc, stride, dilation int) [4]int {
	pr1, pr2 := calcPad1D(inRows, outRows, fr, stride, dilation, false)
	pc1, pc2 := calcPad1D(inCols, outCols, fc, stride, dilation, false)
	return [4]int{pr1, pr2, pc1, pc2}
}

// Pad1D zero-pads an (n, l, ch) volume along its length axis.
func Pad1D(x *tensor.Tensor, p0, p1 int) *tensor.Tensor {
	if len(x.Shape()) != 3 {
		panic(fmt.Sprintf("conv: Pad1D needs an (n, l, ch) volume, got shape %v", x.Shape()))
	}
	n, l, ch := x.Dim(0), x.Dim(1), x.Dim(2)
	out := tensor.New(n, l+p0+p1, ch)
	src, dst := x.Data(), out.Data()
	row := l * ch
	for m := 0; m < n; m++ {
		copy(dst[(m*(l+p0+p1)+p0)*ch:], src[m*row:(m+1)*row])
	}
	return out
}

// Pad2D zero-pads an NHWC volume along its row and column axes.
func Pad2D(x *tensor.Tensor, p [4]int) *tensor.Tensor {
	if len(x.Shape()) != 4 {
		panic(fmt.Sprintf("conv: Pad2D needs an NHWC volume, got shape %v", x.Shape()))
	}
	n, r, c, ch := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	pr, pc := r+p[0]+p[1], c+p[2]+p[3]
	out := tensor.New(n, pr, pc, ch)
	src, dst := x.Data(), out.Data()
	row := c * ch
	for m := 0; m < n; m++ {
		for i := 0; i < r; i++ {
			d := ((m*pr+i+p[0])*pc + p[2]) * ch
			copy(dst[d:d+row], src[(m*r+i)*row:])
		}
	}
	return out
}

// Crop2D removes padding p from an NHWC volume, inverting Pad2D.
func Crop2D(x *tensor.Tensor, p [4]int) *tensor.Tensor {
	n, pr, pc, ch := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	r, c := pr-p[0]-p[1], pc-p[2]-p[3]
	out := tensor.New(n, r, c, ch)
	src, dst := x.Data(), out.Data()
	row := c * ch
	for m := 0; m < n; m++ {
		for i := 0; i < r; i++ {
			s := ((m*pr+i+p[0])*pc + p[2]) * ch
			copy(dst[(m*r+i)*row:(m*r+i+1)*row], src[s:s+row])
		}
	}
	return out
}

// Crop1D removes padding (p0, p1) from an (n, l, ch) volume, inverting Pad1D.
func Crop1D(x *tensor.Tensor, p0, p1 int) *tensor.Tensor {
	n, pl, ch := x.Dim(0), x.Dim(1), x.Dim(2)
	l := pl - p0 - p1
	out := tensor.New(n, l, ch)
	src, dst := x.Data(), out.Data()
	row := l * ch
	for m := 0; m < n; m++ {
		copy(dst[m*row:(m+1)*row], src[(m*pl+p0)*ch:])
	}
	return out
}
