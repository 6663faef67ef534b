// funcs.go --  This file is part of goCIDER project.
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
package basis

import "math"

// PFunc2 is (r/rc)^n (1-(r/rc)^2)^2 inside rc, normalized to
// int f^2 r^2 dr = 1.
func PFunc2(n int, r []float64, rc float64) []float64 {
	return polyWindow(n, 2, r, rc)
}

// FFunc3 is (r/rc)^n (1-(r/rc)^2)^3 inside rc, normalized like PFunc2.
func FFunc3(n int, r []float64, rc float64) []float64 {
	return polyWindow(n, 3, r, rc)
}

func polyWindow(n, p int, r []float64, rc float64) []float64 {
	// int_0^rc x^2n (1-x^2)^2p r^2 dr = rc^3/2 B(n+3/2, 2p+1)
	norm2 := 0.5 * rc * rc * rc * beta(float64(n)+1.5, float64(2*p+1))
	c := 1 / math.Sqrt(norm2)
	out := make([]float64, len(r))
	for g, rg := range r {
		if rg >= rc {
			continue
		}
		x := rg / rc
		out[g] = c * math.Pow(x, float64(n)) * math.Pow(1-x*x, float64(p))
	}
	return out
}

func beta(a, b float64) float64 {
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	return math.Exp(la + lb - lab)
}

// Filt is 0.5 + 0.5 cos(pi r/rcut) inside rcut and 0 beyond.
func Filt(r []float64, rcut float64) []float64 {
	out := make([]float64, len(r))
	for g, rg := range r {
		if rg <= rcut {
			out[g] = 0.5 + 0.5*math.Cos(math.Pi*rg/rcut)
		}
	}
	return out
}

// Fcut is 1 inside rcut, a cosine taper to 0 at rmax, and 0 beyond.
func Fcut(r []float64, rcut, rmax float64) []float64 {
	out := make([]float64, len(r))
	for g, rg := range r {
		switch {
		case rg < rcut:
			out[g] = 1
		case rg > rmax:
			out[g] = 0
		default:
			out[g] = 0.5 + 0.5*math.Cos(math.Pi*(rg-rcut)/(rmax-rcut))
		}
	}
	return out
}

// GaussianNorm returns the constant normalizing r^l exp(-a r^2) to
// int f^2 r^2 dr = 1.
func GaussianNorm(l int, a float64) float64 {
	e := float64(l) + 1.5
	return math.Sqrt(2 * math.Pow(2*a, e) / math.Gamma(e))
}

// Gaussian evaluates r^l exp(-a r^2).
func Gaussian(l int, a, r float64) float64 {
	return math.Pow(r, float64(l)) * math.Exp(-a*r*r)
}

// GaussianFT is the transform 4 pi int j_l(kr) r^l exp(-a r^2) r^2 dr.
func GaussianFT(l int, a, k float64) float64 {
	e := float64(l) + 1.5
	return 4 * math.Pi * math.Sqrt(math.Pi) * math.Pow(k, float64(l)) /
		(math.Pow(2, float64(l+2)) * math.Pow(a, e)) * math.Exp(-k*k/(4*a))
}

// KernelFT is the transform of the normalized kernel (a/pi)^1.5 exp(-a r^2).
func KernelFT(a, k float64) float64 {
	return math.Exp(-k * k / (4 * a))
}
