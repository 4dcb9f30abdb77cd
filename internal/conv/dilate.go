package conv

import "github.com/spindle-ml/spindle/tensor"

// Dilate inserts d zeros between adjacent rows and columns of an NHWC volume.
// The result has in + d*(in-1) positions per spatial axis, with the original
// values at multiples of d+1. Used to turn a strided deconvolution into a
// unit-stride one.
func Dilate(x *tensor.Tensor, d int) *tensor.Tensor {
	if d == 0 {
		return x.Clone()
	}
	n, r, c, ch := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	dr, dc := r+d*(r-1), c+d*(c-1)
	out := tensor.New(n, dr, dc, ch)
	src, dst := x.Data(), out.Data()
	for m := 0; m < n; m++ {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				s := ((m*r+i)*c + j) * ch
				t := ((m*dr+i*(d+1))*dc + j*(d+1)) * ch
				copy(dst[t:t+ch], src[s:s+ch])
			}
		}
	}
	return out
}

// Subsample keeps every s-th row and column of an NHWC volume, starting at
// the origin. Inverts Dilate(x, s-1) and implements the stride deflation at
// the end of the deconvolution backward pass.
func Subsample(x *tensor.Tensor, s int) *tensor.Tensor {
	if s == 1 {
		return x.Clone()
	}
	n, r, c, ch := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	sr, sc := (r-1)/s+1, (c-1)/s+1
	out := tensor.New(n, sr, sc, ch)
	src, dst := x.Data(), out.Data()
	for m := 0; m < n; m++ {
		for i := 0; i < sr; i++ {
			for j := 0; j < sc; j++ {
				t := ((m*sr+i)*sc + j) * ch
				u := ((m*r+i*s)*c + j*s) * ch
				copy(dst[t:t+ch], src[u:u+ch])
			}
		}
	}
	return out
}
