// spline.go --  This file is part of goCIDER project.
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

	"gonum.org/v1/gonum/interp"
)

// Spline is a natural cubic spline on [x0, xN] that vanishes beyond xN.
type Spline struct {
	xmax float64
	nc   interp.NaturalCubic
}

func NewSpline(x, y []float64) (*Spline, error) {
	if len(x) < 3 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: spline with %d knots and %d values", ErrDegenerateGrid, len(x), len(y))
	}
	s := &Spline{xmax: x[len(x)-1]}
	if err := s.nc.Fit(x, y); err != nil {
		return nil, fmt.Errorf("radial: spline fit: %w", err)
	}
	return s, nil
}

func (s *Spline) At(x float64) float64 {
	if x > s.xmax {
		return 0
	}
	return s.nc.Predict(x)
}

// Equidistant returns n points from 0 to rmax inclusive.
func Equidistant(rmax float64, n int) []float64 {
	out := make([]float64, n)
	h := rmax / float64(n-1)
	for i := range out {
		out[i] = h * float64(i)
	}
	return out
}
