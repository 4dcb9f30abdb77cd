package conv

import (
	"fmt"

	"github.com/spindle-ml/spindle/tensor"
)

// WeightCols flattens an (fr, fc, in, out) kernel into the (out, in*fr*fc)
// matrix whose column order matches the Im2Col row order, so that
// WeightCols(w) · Im2Col(x) is the convolution.
func WeightCols(w *tensor.Tensor) *tensor.Tensor {
	fr, fc, in, out := w.Dim(0), w.Dim(1), w.Dim(2), w.Dim(3)
	m := tensor.New(out, in*fr*fc)
	src, dst := w.Data(), m.Data()
	for o := 0; o < out; o++ {
		for c := 0; c < in; c++ {
			for ki := 0; ki < fr; ki++ {
				for kj := 0; kj < fc; kj++ {
					dst[o*in*fr*fc+(c*fr+ki)*fc+kj] = src[((ki*fc+kj)*in+c)*out+o]
				}
			}
		}
	}
	return m
}

// ColsToWeight inverts WeightCols, folding an (out, in*fr*fc) matrix back
// into an (fr, fc, in, out) kernel. Used to reshape the weight gradient
// computed in column space.
func ColsToWeight(m *tensor.Tensor, fr, fc, in, out int) *tensor.Tensor {
	if !m.Shape().Equal(tensor.Shape{out, in * fr * fc}) {
		panic(fmt.Sprintf("conv: ColsToWeight matrix %v does not match kernel (%d, %d, %d, %d)", m.Shape(), fr, fc, in, out))
	}
	w := tensor.New(fr, fc, in, out)
	src, dst := m.Data(), w.Data()
	for o := 0; o < out; o++ {
		for c := 0; c < in; c++ {
			for ki := 0; ki < fr; ki++ {
				for kj := 0; kj < fc; kj++ {
					dst[((ki*fc+kj)*in+c)*out+o] = src[o*in*fr*fc+(c*fr+ki)*fc+kj]
				}
			}
		}
	}
	return w
}

// Rot180 rotates an (fr, fc, in, out) kernel 180 degrees in its spatial axes.
func Rot180(w *tensor.Tensor) *tensor.Tensor {
	fr, fc, in, out := w.Dim(0), w.Dim(1), w.Dim(2), w.Dim(3)
	r := tensor.New(fr, fc, in, out)
	src, dst := w.Data(), r.Data()
	plane := in * out
	for ki := 0; ki < fr; ki++ {
		for kj := 0; kj < fc; kj++ {
			s := (ki*fc + kj) * plane
			t := ((fr-1-ki)*fc + (fc - 1 - kj)) * plane
			copy(dst[t:t+plane], src[s:s+plane])
		}
	}
	return r
}

// VolToCols flattens an NHWC volume into the (channels, positions*examples)
// matrix whose column order matches Im2Col, with column (i*cols + j)*n + m.
// Applied to an output gradient it produces the left operand of the column-
// space gradient products.
func VolToCols(z *tensor.Tensor) *tensor.Tensor {
	n, rows, cols, ch := z.Dim(0), z.Dim(1), z.Dim(2), z.Dim(3)
	out := tensor.New(ch, rows*cols*n)
	src, dst := z.Data(), out.Data()
	nCols := rows * cols * n
	for c := 0; c < ch; c++ {
		for pos := 0; pos < rows*cols; pos++ {
			for m := 0; m < n; m++ {
				dst[c*nCols+pos*n+m] = src[(m*rows*cols+pos)*ch+c]
			}
		}
	}
	return out
}

// ColsToVol inverts VolToCols, folding a (ch, rows*cols*n) matrix back into
// an (n, rows, cols, ch) volume.
func ColsToVol(m *tensor.Tensor, n, rows, cols, ch int) *tensor.Tensor {
	if !m.Shape().Equal(tensor.Shape{ch, rows * cols * n}) {
		panic(fmt.Sprintf("conv: ColsToVol matrix %v does not match volume (%d, %d, %d, %d)", m.Shape(), n, rows, cols, ch))
	}
	z := tensor.New(n, rows, cols, ch)
	src, dst := m.Data(), z.Data()
	nCols := rows * cols * n
	for c := 0; c < ch; c++ {
		for pos := 0; pos < rows*cols; pos++ {
			for ex := 0; ex < n; ex++ {
				dst[(ex*rows*cols+pos)*ch+c] = src[c*nCols+pos*n+ex]
			}
		}
	}
	return z
}

// Conv2D cross-correlates an NHWC input with an (fr, fc, in, out) kernel via
// the im2col + GEMM route and returns the NHWC output volume.
func Conv2D(x, w *tensor.Tensor, stride, dilation int, pad Padding) *tensor.Tensor {
	if x.Dim(3) != w.Dim(2) {
		panic(fmt.Sprintf("conv: input channels %d do not match kernel %v", x.Dim(3), w.Shape()))
	}
	fr, fc := w.Dim(0), w.Dim(1)
	n, out := x.Dim(0), w.Dim(3)

	p := pad.Resolve2D(x.Dim(1), x.Dim(2), fr, fc, stride, dilation)
	xPad := Pad2D(x, p)
	outRows := OutLen(xPad.Dim(1), 0, 0, fr, stride, dilation)
	outCols := OutLen(xPad.Dim(2), 0, 0, fc, stride, dilation)

	xCol := Im2Col(xPad, fr, fc, stride, dilation)
	zCol := tensor.MatMul(WeightCols(w), xCol)
	return ColsToVol(zCol, n, outRows, outCols, out)
}

// Conv1D cross-correlates an (n, l, ch) input with an (fw, in, out) kernel by
// lifting both to a single-row 2D volume.
func Conv1D(x, w *tensor.Tensor, stride, dilation int, pad Padding) *tensor.Tensor {
	p0, p1 := pad.Resolve1D(x.Dim(1), w.Dim(0), stride, dilation)
	x2 := x.Reshape(x.Dim(0), 1, x.Dim(1), x.Dim(2))
	w2 := w.Reshape(1, w.Dim(0), w.Dim(1), w.Dim(2))
	z2 := Conv2D(x2, w2, stride, dilation, QuadPad(0, 0, p0, p1))
	return z2.Reshape(z2.Dim(0), z2.Dim(2), z2.Dim(3))
}

// Conv2DNaive is the direct-loop reference for Conv2D. Slow; kept for
// cross-checking the GEMM route in tests.
func Conv2DNaive(x, w *tensor.Tensor, stride, dilation int, pad Padding) *tensor.Tensor {
	fr, fc, in, out := w.Dim(0), w.Dim(1), w.Dim(2), w.Dim(3)
	p := pad.Resolve2D(x.Dim(1), x.Dim(2), fr, fc, stride, dilation)
	xPad := Pad2D(x, p)
	n := x.Dim(0)
	outRows := OutLen(xPad.Dim(1), 0, 0, fr, stride, dilation)
	outCols := OutLen(xPad.Dim(2), 0, 0, fc, stride, dilation)
	d := dilation + 1

	z := tensor.New(n, outRows, outCols, out)
	for m := 0; m < n; m++ {
		for i := 0; i < outRows; i++ {
			for j := 0; j < outCols; j++ {
				for o := 0; o < out; o++ {
					var sum float64
					for ki := 0; ki < fr; ki++ {
						for kj := 0; kj < fc; kj++ {
							for c := 0; c < in; c++ {
								sum += xPad.At(m, i*stride+ki*d, j*stride+kj*d, c) * w.At(ki, kj, c, o)
							}
						}
					}
					z.Set(sum, m, i, j, o)
				}
			}
		}
	}
	return z
}

// Deconv2D applies a transposed (fractionally strided) convolution: the input
// is dilated by stride-1, padded, then padded a second time so that the
// unit-stride cross-correlation with the 180-degree-rotated kernel produces
// s*(in-1) + f output positions per axis. The configured padding cancels out
// of the output size; it shifts which positions the second padding covers.
func Deconv2D(x, w *tensor.Tensor, stride int, pad Padding) *tensor.Tensor {
	fr, fc := w.Dim(0), w.Dim(1)
	if stride > 1 {
		x = Dilate(x, stride-1)
	}

	p := pad.Resolve2D(x.Dim(1), x.Dim(2), fr, fc, 1, 0)
	xPad := Pad2D(x, p)

	outRows := xPad.Dim(1) - 1 - p[0] - p[1] + fr
	outCols := xPad.Dim(2) - 1 - p[2] - p[3] + fc

	p2 := CalcPad2D(xPad.Dim(1), xPad.Dim(2), outRows, outCols, fr, fc, 1, 0)
	xPad = Pad2D(xPad, p2)

	return Conv2D(xPad, Rot180(w), 1, 0, IntPad(0))
}
