// Package pdqhash computes PDQ perceptual hashes of decoded images
package pdqhash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"
)

const (
	dctSize   = 64
	hashSize  = 16
	hashBits  = 256
	maxWindow = 128
)

// Result is a hash plus its image-domain quality in [0, 100]
type Result struct {
	Hash    [32]byte
	Quality int
}

// ErrEmptyImage is returned for zero-sized images
var ErrEmptyImage = errors.New("pdqhash: empty image")

var dct = buildDCT()

// buildDCT returns the 16x64 partial DCT-II matrix
func buildDCT() [hashSize][dctSize]float64 {
	var d [hashSize][dctSize]float64
	scale := math.Sqrt(2.0 / dctSize)
	for i := 0; i < hashSize; i++ {
		for j := 0; j < dctSize; j++ {
			d[i][j] = scale * math.Cos(math.Pi/2/dctSize*float64(i+1)*float64(2*j+1))
		}
	}
	return d
}

// FromBytes decodes data as gif, jpeg or png and hashes it
func FromBytes(data []byte) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("pdqhash: decode: %w", err)
	}
	return FromImage(img)
}

// FromImage hashes img
func FromImage(img image.Image) (Result, error) {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	if rows <= 0 || cols <= 0 {
		return Result{}, ErrEmptyImage
	}
	luma := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			luma[y*cols+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return fromLuma(luma, rows, cols), nil
}

func fromLuma(luma []float64, rows, cols int) Result {
	tmp := make([]float64, rows*cols)
	jarosz(luma, tmp, rows, cols, windowSize(cols), windowSize(rows))
	small := decimate(luma, rows, cols)
	quality := imageQuality(&small)
	coeffs := dct16(&small)
	return Result{Hash: threshold(&coeffs), Quality: quality}
}

func windowSize(dim int) int {
	return (dim + maxWindow - 1) / maxWindow
}

// jarosz runs two passes of a box filter along rows then columns, leaving the result in buf
func jarosz(buf, tmp []float64, rows, cols, rowWindow, colWindow int) {
	for rep := 0; rep < 2; rep++ {
		for i := 0; i < rows; i++ {
			box1D(buf[i*cols:], tmp[i*cols:], cols, 1, rowWindow)
		}
		for j := 0; j < cols; j++ {
			box1D(tmp[j:], buf[j:], rows, cols, colWindow)
		}
	}
}

// box1D is a running-sum box filter with a window that grows in and shrinks out at the edges
func box1D(in, out []float64, length, stride, full int) {
	half := (full + 2) / 2
	p1 := half - 1
	p2 := full - half + 1
	p3 := length - full
	p4 := half - 1
	li, ri, oi := 0, 0, 0
	sum := 0.0
	n := 0
	for i := 0; i < p1; i++ {
		sum += in[ri]
		n++
		ri += stride
	}
	for i := 0; i < p2; i++ {
		sum += in[ri]
		n++
		out[oi] = sum / float64(n)
		ri += stride
		oi += stride
	}
	for i := 0; i < p3; i++ {
		sum += in[ri]
		sum -= in[li]
		out[oi] = sum / float64(n)
		li += stride
		ri += stride
		oi += stride
	}
	for i := 0; i < p4; i++ {
		sum -= in[li]
		n--
		out[oi] = sum / float64(n)
		li += stride
		oi += stride
	}
}

func decimate(in []float64, rows, cols int) [dctSize][dctSize]float64 {
	var out [dctSize][dctSize]float64
	for i := 0; i < dctSize; i++ {
		ii := int((float64(i) + 0.5) * float64(rows) / dctSize)
		for j := 0; j < dctSize; j++ {
			jj := int((float64(j) + 0.5) * float64(cols) / dctSize)
			out[i][j] = in[ii*cols+jj]
		}
	}
	return out
}

// imageQuality sums neighbour gradients; flat images score low
func imageQuality(buf *[dctSize][dctSize]float64) int {
	sum := 0
	for i := 0; i < dctSize-1; i++ {
		for j := 0; j < dctSize; j++ {
			sum += absInt(int((buf[i][j] - buf[i+1][j]) * 100 / 255))
		}
	}
	for i := 0; i < dctSize; i++ {
		for j := 0; j < dctSize-1; j++ {
			sum += absInt(int((buf[i][j] - buf[i][j+1]) * 100 / 255))
		}
	}
	q := sum / 90
	if q > 100 {
		q = 100
	}
	return q
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// dct16 computes D * A * Dt
func dct16(a *[dctSize][dctSize]float64) [hashSize][hashSize]float64 {
	var t [hashSize][dctSize]float64
	for i := 0; i < hashSize; i++ {
		for j := 0; j < dctSize; j++ {
			s := 0.0
			for k := 0; k < dctSize; k++ {
				s += dct[i][k] * a[k][j]
			}
			t[i][j] = s
		}
	}
	var out [hashSize][hashSize]float64
	for i := 0; i < hashSize; i++ {
		for j := 0; j < hashSize; j++ {
			s := 0.0
			for k := 0; k < dctSize; k++ {
				s += t[i][k] * dct[j][k]
			}
			out[i][j] = s
		}
	}
	return out
}

// threshold sets bit i*16+j when the coefficient exceeds the median
// bit k lives in 16-bit word k>>4, and word 15 is written first
func threshold(c *[hashSize][hashSize]float64) [32]byte {
	flat := make([]float64, 0, hashBits)
	for i := 0; i < hashSize; i++ {
		flat = append(flat, c[i][:]...)
	}
	sorted := append([]float64(nil), flat...)
	sort.Float64s(sorted)
	median := sorted[hashBits/2-1]

	var h [32]byte
	for k, v := range flat {
		if v <= median {
			continue
		}
		w, b := k>>4, k&15
		idx := (15 - w) * 2
		if b >= 8 {
			h[idx] |= 1 << (b - 8)
		} else {
			h[idx+1] |= 1 << b
		}
	}
	return h
}
