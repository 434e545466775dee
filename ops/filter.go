package ops

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/vision"
)

// GaussianKernel generates a 1D Gaussian kernel for the given sigma.
// The kernel is normalized so all values sum to 1.0.
//
// The kernel size is computed as 2 * ceil(sigma * 3) + 1, which covers
// 99.7% of the Gaussian distribution (3 standard deviations).
//
// For sigma <= 0, returns a single-element kernel [1.0] (identity).
func GaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1.0}
	}

	halfSize := int(math.Ceil(sigma * 3))
	size := halfSize*2 + 1

	kernel := make([]float32, size)

	// G(x) = exp(-x²/(2σ²)); the constant factor cancels in normalization.
	twoSigmaSq := 2 * sigma * sigma
	sum := float64(0)

	for i := 0; i < size; i++ {
		x := float64(i - halfSize)
		val := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(val)
		sum += val
	}

	if sum > 0 {
		invSum := float32(1.0 / sum)
		for i := range kernel {
			kernel[i] *= invSum
		}
	}

	return kernel
}

// KernelSize returns the side length of the Gaussian filter for sigma.
func KernelSize(sigma float64) int {
	if sigma <= 0 {
		return 1
	}
	return int(math.Ceil(sigma*3))*2 + 1
}

// BoxFilter returns a size x size single-channel filter with uniform weight
// 1/(size*size). For size <= 0 it returns the 1x1 identity.
func BoxFilter(size int) *vision.HostImage {
	if size <= 0 {
		size = 1
	}
	w := float32(1.0 / float64(size*size))
	h := filterImage(size, size)
	for i := range h.Pix {
		h.Pix[i] = w
	}
	return h
}

// SquareElement returns a size x size structuring element for Erode and
// Dilate.
func SquareElement(size int) *vision.HostImage {
	if size <= 0 {
		size = 1
	}
	h := filterImage(size, size)
	for i := range h.Pix {
		h.Pix[i] = 1
	}
	return h
}

// GaussianFilter returns the 2D Gaussian filter for sigma as the outer
// product of GaussianKernel with itself. Filters are cached per sigma and
// the returned image is a copy the caller may modify.
func GaussianFilter(sigma float64) *vision.HostImage {
	return defaultFilterCache.get(sigma).Clone()
}

// SobelX returns the 3x3 horizontal Sobel filter.
func SobelX() *vision.HostImage {
	h, _ := Weights(3, 3, []float32{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	})
	return h
}

// SobelY returns the 3x3 vertical Sobel filter.
func SobelY() *vision.HostImage {
	h, _ := Weights(3, 3, []float32{
		-1, -2, -1,
		0, 0, 0,
		1, 2, 1,
	})
	return h
}

// Weights builds a single-channel filter from row-major weights.
func Weights(cols, rows int, w []float32) (*vision.HostImage, error) {
	if cols <= 0 || rows <= 0 || len(w) != cols*rows {
		return nil, fmt.Errorf("%w: %d weights for a %dx%d filter", vision.ErrConstruction, len(w), cols, rows)
	}
	h := filterImage(cols, rows)
	copy(h.Pix, w)
	return h, nil
}

func filterImage(cols, rows int) *vision.HostImage {
	return &vision.HostImage{
		Type: vision.GrayF32,
		Dims: vision.Dims{Cols: cols, Rows: rows},
		Pix:  make([]float32, cols*rows),
	}
}

func gaussianFilter(sigma float64) *vision.HostImage {
	k := GaussianKernel(sigma)
	n := len(k)
	h := filterImage(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			h.Pix[r*n+c] = k[r] * k[c]
		}
	}
	return h
}

// filterCache caches Gaussian filters to avoid recomputation.
// Key is sigma * 100 (to handle float precision).
type filterCache struct {
	mu     sync.RWMutex
	cache  map[int]*vision.HostImage
	maxLen int
}

var defaultFilterCache = newFilterCache(64)

func newFilterCache(maxLen int) *filterCache {
	return &filterCache{
		cache:  make(map[int]*vision.HostImage),
		maxLen: maxLen,
	}
}

// get retrieves a filter from cache or generates and caches it.
func (c *filterCache) get(sigma float64) *vision.HostImage {
	key := int(sigma * 100)

	c.mu.RLock()
	if f, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return f
	}
	c.mu.RUnlock()

	f := gaussianFilter(sigma)

	c.mu.Lock()
	if len(c.cache) >= c.maxLen {
		// Clear half the cache.
		count := 0
		for k := range c.cache {
			delete(c.cache, k)
			count++
			if count >= c.maxLen/2 {
				break
			}
		}
	}
	c.cache[key] = f
	c.mu.Unlock()

	return f
}
