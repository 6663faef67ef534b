// grid.go --  This file is part of goCIDER project.
// Mirzaeva Irina, 2023
//
//	goCIDER is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//	See the GNU General Public License for more details.
//
//	You should have received a copy of the GNU General Public License
//	along with this program.  If not, see http://www.gnu.org/licenses/
//
// ------------------------------------------------

// Package radial provides the radial and angular quadrature used by the
// atom-centered corrections: the all-electron radial grid, the reciprocal
// grid for spherical Bessel transforms, spherical Bessel functions, the
// angular product quadrature with real spherical harmonics, and Gaunt
// coefficients.
package radial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var ErrDegenerateGrid = errors.New("radial: degenerate grid")

// Grid is a radial grid r_g = a g/(1 - b g), g = 1..N-1. The point r = 0 is
// not stored.
type Grid struct {
	A, B float64
	R    []float64
	DR   []float64
	// DV is 4 pi r^2 dr.
	DV []float64
	// W is r^2 dr.
	W []float64
}

func NewGrid(a, b float64, n int) (*Grid, error) {
	if a <= 0 || b < 0 || n < 3 || b*float64(n-1) >= 1 {
		return nil, fmt.Errorf("%w: a=%g b=%g n=%d", ErrDegenerateGrid, a, b, n)
	}
	g := &Grid{A: a, B: b}
	for i := 1; i < n; i++ {
		x := float64(i)
		den := 1 - b*x
		r := a * x / den
		dr := a / (den * den)
		g.R = append(g.R, r)
		g.DR = append(g.DR, dr)
		g.W = append(g.W, r*r*dr)
		g.DV = append(g.DV, 4*math.Pi*r*r*dr)
	}
	return g, nil
}

// NewGridTo builds the grid with parameters (beta/N, 1/N) truncated at the
// first point beyond rmax.
func NewGridTo(beta float64, n int, rmax float64) (*Grid, error) {
	g, err := NewGrid(beta/float64(n), 1/float64(n), n)
	if err != nil {
		return nil, err
	}
	return g.Truncate(rmax)
}

func (g *Grid) Truncate(rmax float64) (*Grid, error) {
	n := len(g.R)
	for i, r := range g.R {
		if r > rmax {
			n = i + 1
			break
		}
	}
	if n < 3 {
		return nil, fmt.Errorf("%w: rmax=%g keeps %d points", ErrDegenerateGrid, rmax, n)
	}
	return &Grid{
		A: g.A, B: g.B,
		R:  g.R[:n:n],
		DR: g.DR[:n:n],
		DV: g.DV[:n:n],
		W:  g.W[:n:n],
	}, nil
}

func (g *Grid) N() int { return len(g.R) }

func (g *Grid) RMax() float64 { return g.R[len(g.R)-1] }

// Integrate returns sum_g f_g 4 pi r^2 dr.
func (g *Grid) Integrate(f []float64) float64 {
	return floats.Dot(f, g.DV)
}
