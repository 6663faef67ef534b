// bessel.go --  This file is part of goCIDER project.
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

import "math"

// SphBessel returns the spherical Bessel function j_l(x) for x >= 0.
// Power series below x = l+1, upward recurrence above.
func SphBessel(l int, x float64) float64 {
	if x < float64(l)+1 {
		return sphBesselSeries(l, x)
	}
	s, c := math.Sincos(x)
	j0 := s / x
	if l == 0 {
		return j0
	}
	j1 := s/(x*x) - c/x
	for n := 1; n < l; n++ {
		j0, j1 = j1, float64(2*n+1)/x*j1-j0
	}
	return j1
}

func sphBesselSeries(l int, x float64) float64 {
	// x^l/(2l+1)!! sum_k (-x^2/2)^k / (k! (2l+2k+1)!!/(2l+1)!!)
	pre := 1.0
	for i := 1; i <= l; i++ {
		pre *= x / float64(2*i+1)
	}
	y := -0.5 * x * x
	term := 1.0
	sum := 1.0
	for k := 1; k < 60; k++ {
		term *= y / (float64(k) * float64(2*l+2*k+1))
		sum += term
		if math.Abs(term) < 1e-17*math.Abs(sum) {
			break
		}
	}
	return pre * sum
}
