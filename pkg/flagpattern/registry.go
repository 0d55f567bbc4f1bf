// Package flagpattern groups image pixels by their channel validity
// pattern. A channel is invalid for a pixel when its Stokes Q or U sample
// is non-finite. Real cubes are flagged in spatially coherent clumps, so
// the number of distinct patterns is far smaller than the number of
// pixels; anything computed per pattern (the spread function above all)
// is computed once per pattern instead of once per pixel.
package flagpattern

import (
	"math"

	"rmsynth3d/internal/models"
)

// Registry maps every pixel of a cube to a flag-pattern id and stores one
// representative validity mask per pattern. Pattern ids are assigned in
// row-major pixel scan order, so two runs over the same cube produce the
// same ids.
type Registry struct {
	nChan  int
	ny, nx int

	// pixel[y*nx+x] is the pattern id of pixel (y, x)
	pixel []int

	// masks[id][c] is true when channel c is valid for pattern id
	masks [][]bool

	// valid[id] is the number of valid channels in pattern id
	valid []int

	ids map[string]int
}

// Build scans aligned Stokes Q and U cubes and groups their pixels by
// validity pattern. The cubes must have identical dimensions.
func Build(q, u *models.Cube) *Registry {
	r := &Registry{
		nChan: q.NChan,
		ny:    q.NY,
		nx:    q.NX,
		pixel: make([]int, q.NY*q.NX),
		ids:   make(map[string]int),
	}

	mask := make([]bool, q.NChan)
	key := make([]byte, (q.NChan+7)/8)

	for y := 0; y < q.NY; y++ {
		for x := 0; x < q.NX; x++ {
			nValid := 0
			for i := range key {
				key[i] = 0
			}
			for c := 0; c < q.NChan; c++ {
				ok := isFinite(q.At(c, y, x)) && isFinite(u.At(c, y, x))
				mask[c] = ok
				if ok {
					nValid++
					key[c/8] |= 1 << uint(c%8)
				}
			}

			id, seen := r.ids[string(key)]
			if !seen {
				id = len(r.masks)
				r.ids[string(key)] = id
				r.masks = append(r.masks, append([]bool(nil), mask...))
				r.valid = append(r.valid, nValid)
			}
			r.pixel[y*q.NX+x] = id
		}
	}
	return r
}

// NumPatterns returns the number of distinct validity patterns found.
func (r *Registry) NumPatterns() int { return len(r.masks) }

// NChan returns the channel count the registry was built for.
func (r *Registry) NChan() int { return r.nChan }

// Dims returns the spatial dimensions of the registered cube.
func (r *Registry) Dims() (ny, nx int) { return r.ny, r.nx }

// PatternOf returns the pattern id of pixel (y, x).
func (r *Registry) PatternOf(y, x int) int { return r.pixel[y*r.nx+x] }

// Mask returns the representative validity mask of a pattern. The caller
// must not modify the returned slice.
func (r *Registry) Mask(id int) []bool { return r.masks[id] }

// ValidCount returns the number of valid channels in a pattern.
func (r *Registry) ValidCount(id int) int { return r.valid[id] }

// Degenerate reports whether a pattern has too few valid channels to
// synthesize (fewer than 2).
func (r *Registry) Degenerate(id int) bool { return r.valid[id] < 2 }

// DegeneratePixels counts the pixels belonging to degenerate patterns.
func (r *Registry) DegeneratePixels() int {
	n := 0
	for _, id := range r.pixel {
		if r.Degenerate(id) {
			n++
		}
	}
	return n
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
