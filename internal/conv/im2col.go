package conv

import (
	"fmt"

	"github.com/spindle-ml/spindle/tensor"
)

// Im2Col unrolls a padded NHWC volume into the column matrix used by the GEMM
// formulation of convolution. Row r of the result indexes a (channel, kernel
// row, kernel col) tap, channel-major: r = (c*fr + ki)*fc + kj. Column indexes
// an (output position, example) pair, position-major: (i*outCols + j)*n + m.
// Multiplying by WeightCols(w) therefore computes every output position of
// every example in a single matrix product.
func Im2Col(xPad *tensor.Tensor, fr, fc, stride, dilation int) *tensor.Tensor {
	if len(xPad.Shape()) != 4 {
		panic(fmt.Sprintf("conv: Im2Col needs an NHWC volume, got shape %v", xPad.Shape()))
	}
	n, pr, pc, ch := xPad.Dim(0), xPad.Dim(1), xPad.Dim(2), xPad.Dim(3)
	outRows := OutLen(pr, 0, 0, fr, stride, dilation)
	outCols := OutLen(pc, 0, 0, fc, stride, dilation)
	d := dilation + 1

	cols := tensor.New(ch*fr*fc, outRows*outCols*n)
	src, dst := xPad.Data(), cols.Data()
	nCols := outRows * outCols * n
	for c := 0; c < ch; c++ {
		for ki := 0; ki < fr; ki++ {
			for kj := 0; kj < fc; kj++ {
				row := ((c*fr+ki)*fc + kj) * nCols
				for i := 0; i < outRows; i++ {
					ri := i*stride + ki*d
					for j := 0; j < outCols; j++ {
						ci := j*stride + kj*d
						col := (i*outCols + j) * n
						for m := 0; m < n; m++ {
							dst[row+col+m] = src[((m*pr+ri)*pc+ci)*ch+c]
						}
					}
				}
			}
		}
	}
	return cols
}

// Col2Im is the adjoint of Im2Col: it scatter-adds a column matrix back into
// an NHWC volume of the given unpadded shape, accumulating where kernel
// windows overlap, then crops the padding p away. Shape is the UNPADDED
// (n, rows, cols, ch) target.
func Col2Im(cols *tensor.Tensor, shape tensor.Shape, fr, fc int, p [4]int, stride, dilation int) *tensor.Tensor {
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv: Col2Im needs an NHWC target shape, got %v", shape))
	}
	n, rows, colsIn, ch := shape[0], shape[1], shape[2], shape[3]
	pr, pc := rows+p[0]+p[1], colsIn+p[2]+p[3]
	outRows := OutLen(pr, 0, 0, fr, stride, dilation)
	outCols := OutLen(pc, 0, 0, fc, stride, dilation)
	d := dilation + 1

	nCols := outRows * outCols * n
	if !cols.Shape().Equal(tensor.Shape{ch * fr * fc, nCols}) {
		panic(fmt.Sprintf("conv: Col2Im column matrix %v does not match target %v", cols.Shape(), shape))
	}

	xPad := tensor.New(n, pr, pc, ch)
	src, dst := cols.Data(), xPad.Data()
	for c := 0; c < ch; c++ {
		for ki := 0; ki < fr; ki++ {
			for kj := 0; kj < fc; kj++ {
				row := ((c*fr+ki)*fc + kj) * nCols
				for i := 0; i < outRows; i++ {
					ri := i*stride + ki*d
					for j := 0; j < outCols; j++ {
						ci := j*stride + kj*d
						col := (i*outCols + j) * n
						for m := 0; m < n; m++ {
							dst[((m*pr+ri)*pc+ci)*ch+c] += src[row+col+m]
						}
					}
				}
			}
		}
	}
	return Crop2D(xPad, p)
}
