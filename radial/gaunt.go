// gaunt.go --  This file is part of goCIDER project.
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

// Gaunt holds int Y_L1 Y_L2 Y_L3 dOmega for L1, L2 < N12 and L3 < N3.
type Gaunt struct {
	N12, N3 int
	g       []float64
}

// NewGaunt integrates the triple products with the quadrature a. The
// quadrature must be exact to degree 2 l12max + l3max.
func NewGaunt(a *Angular, l12max, l3max int) (*Gaunt, error) {
	if 2*l12max+l3max > 2*a.LMax || l3max > a.LMax {
		return nil, fmt.Errorf("%w: angular lmax %d too small for gaunt(%d, %d)", ErrDegenerateGrid, a.LMax, l12max, l3max)
	}
	n12 := (l12max + 1) * (l12max + 1)
	n3 := (l3max + 1) * (l3max + 1)
	gt := &Gaunt{N12: n12, N3: n3, g: make([]float64, n12*n12*n3)}
	for n, w := range a.W {
		y := a.Y[n]
		for L1 := 0; L1 < n12; L1++ {
			for L2 := 0; L2 < n12; L2++ {
				y12 := 4 * math.Pi * w * y[L1] * y[L2]
				o := (L1*n12 + L2) * n3
				for L3 := 0; L3 < n3; L3++ {
					gt.g[o+L3] += y12 * y[L3]
				}
			}
		}
	}
	for i, v := range gt.g {
		if math.Abs(v) < 1e-14 {
			gt.g[i] = 0
		}
	}
	return gt, nil
}

func (gt *Gaunt) At(L1, L2, L3 int) float64 {
	return gt.g[(L1*gt.N12+L2)*gt.N3+L3]
}
