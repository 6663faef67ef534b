// angular.go --  This file is part of goCIDER project.
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
package radial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

const (
	DefaultNTheta = 8
	DefaultNPhi   = 12
)

// Angular is a product quadrature on the unit sphere: Gauss-Legendre in
// cos(theta) times a uniform grid in phi. Weights sum to 1.
type Angular struct {
	LMax int
	W    []float64
	R    [][3]float64
	// Y[n][L] and RnablaY[n][L] = r grad Y_L at point n.
	Y       [][]float64
	RnablaY [][][3]float64
}

func NewAngular(lmax, ntheta, nphi int) (*Angular, error) {
	if lmax < 0 || ntheta < 1 || nphi < 1 {
		return nil, fmt.Errorf("%w: lmax=%d ntheta=%d nphi=%d", ErrDegenerateGrid, lmax, ntheta, nphi)
	}
	if 2*lmax >= 2*ntheta || 2*lmax >= nphi {
		return nil, fmt.Errorf("%w: %dx%d points cannot integrate l=%d products", ErrDegenerateGrid, ntheta, nphi, lmax)
	}
	x := make([]float64, ntheta)
	wx := make([]float64, ntheta)
	quad.Legendre{}.FixedLocations(x, wx, -1, 1)

	nl := (lmax + 1) * (lmax + 1)
	a := &Angular{LMax: lmax}
	for i := range x {
		st := math.Sqrt(1 - x[i]*x[i])
		for j := 0; j < nphi; j++ {
			phi := 2 * math.Pi * (float64(j) + 0.5) / float64(nphi)
			v := [3]float64{st * math.Cos(phi), st * math.Sin(phi), x[i]}
			a.W = append(a.W, 0.5*wx[i]/float64(nphi))
			a.R = append(a.R, v)
			y := make([]float64, nl)
			RealYAll(lmax, v, y)
			a.Y = append(a.Y, y)
			a.RnablaY = append(a.RnablaY, rnablaY(lmax, v))
		}
	}
	return a, nil
}

func (a *Angular) N() int { return len(a.W) }

func (a *Angular) NL() int { return (a.LMax + 1) * (a.LMax + 1) }

// RealYAll fills y with the real spherical harmonics Y_L(v), L = l^2+l+m,
// m = -l..l, for a unit vector v. For l = 1 the order is (y, z, x).
func RealYAll(lmax int, v [3]float64, y []float64) {
	ct := v[2]
	phi := math.Atan2(v[1], v[0])
	st := math.Sqrt(math.Max(0, 1-ct*ct))
	for l := 0; l <= lmax; l++ {
		for m := 0; m <= l; m++ {
			p := assocLegendre(l, m, ct, st)
			k := math.Sqrt(float64(2*l+1) / (4 * math.Pi) * factRatio(l, m))
			if m == 0 {
				y[l*l+l] = k * p
				continue
			}
			sm, cm := math.Sincos(float64(m) * phi)
			y[l*l+l+m] = math.Sqrt2 * k * p * cm
			y[l*l+l-m] = math.Sqrt2 * k * p * sm
		}
	}
}

// factRatio returns (l-m)!/(l+m)!.
func factRatio(l, m int) float64 {
	r := 1.0
	for i := l - m + 1; i <= l+m; i++ {
		r /= float64(i)
	}
	return r
}

// assocLegendre returns P_l^m(cos theta) without the Condon-Shortley phase.
func assocLegendre(l, m int, ct, st float64) float64 {
	pmm := 1.0
	for i := 1; i <= m; i++ {
		pmm *= float64(2*i-1) * st
	}
	if l == m {
		return pmm
	}
	pm1 := ct * float64(2*m+1) * pmm
	if l == m+1 {
		return pm1
	}
	var pl float64
	for ll := m + 2; ll <= l; ll++ {
		pl = (float64(2*ll-1)*ct*pm1 - float64(ll+m-1)*pmm) / float64(ll-m)
		pmm, pm1 = pm1, pl
	}
	return pl
}

// rnablaY differentiates Y_L(v/|v|) at a unit vector by central
// differences.
func rnablaY(lmax int, v [3]float64) [][3]float64 {
	const h = 1e-5
	nl := (lmax + 1) * (lmax + 1)
	out := make([][3]float64, nl)
	yp := make([]float64, nl)
	ym := make([]float64, nl)
	for c := 0; c < 3; c++ {
		vp, vm := v, v
		vp[c] += h
		vm[c] -= h
		RealYAll(lmax, normalize(vp), yp)
		RealYAll(lmax, normalize(vm), ym)
		for L := 0; L < nl; L++ {
			out[L][c] = (yp[L] - ym[L]) / (2 * h)
		}
	}
	return out
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}
