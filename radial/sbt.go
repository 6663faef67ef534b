// sbt.go --  This file is part of goCIDER project.
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
)

// KGrid is the logarithmic reciprocal grid of the spherical Bessel
// transform. With f(k) = 4 pi int j_l(kr) f(r) r^2 dr,
//
//	int f g r^2 dr = sum_k f(k) g(k) DVK_k,  DVK = k^2 dk / (8 pi^3).
type KGrid struct {
	K   []float64
	DK  []float64
	DVK []float64
}

// NewKGrid builds n points ending at kmax = sqrt(2 encut) with log step d.
func NewKGrid(encut float64, n int, d float64) (*KGrid, error) {
	if encut <= 0 || n < 2 || d <= 0 {
		return nil, fmt.Errorf("%w: encut=%g n=%d d=%g", ErrDegenerateGrid, encut, n, d)
	}
	kmax := math.Sqrt(2 * encut)
	kg := &KGrid{
		K:   make([]float64, n),
		DK:  make([]float64, n),
		DVK: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		k := kmax * math.Exp(float64(i-n+1)*d)
		kg.K[i] = k
		kg.DK[i] = d * k
		kg.DVK[i] = k * k * d * k / (8 * math.Pi * math.Pi * math.Pi)
	}
	return kg, nil
}

func (kg *KGrid) N() int { return len(kg.K) }

// BesselTable returns j_l(k r_g) as [g][k].
func BesselTable(l int, r, k []float64) [][]float64 {
	out := make([][]float64, len(r))
	for g, rg := range r {
		row := make([]float64, len(k))
		for i, ki := range k {
			row[i] = SphBessel(l, ki*rg)
		}
		out[g] = row
	}
	return out
}

// InverseTransform evaluates f(r_g) = sum_k 4 pi DVK_k j_l(k r_g) fk_k using
// a table from BesselTable.
func (kg *KGrid) InverseTransform(jl [][]float64, fk []float64) []float64 {
	out := make([]float64, len(jl))
	for g, row := range jl {
		s := 0.0
		for i, v := range row {
			s += v * fk[i] * kg.DVK[i]
		}
		out[g] = 4 * math.Pi * s
	}
	return out
}
