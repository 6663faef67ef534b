// etb.go --  This file is part of goCIDER project.
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

// Package basis builds the per-species radial ingredients of the
// projector fit: even-tempered exponent ladders, the hardcoded shell
// tables, the projector radial functions and the cutoff windows.
package basis

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidZ     = errors.New("basis: invalid atomic number")
	ErrInvalidRange = errors.New("basis: invalid exponent range")
)

// ETB returns an even-tempered ladder from minExp to maxExp inclusive
// with ratio close to, and not above, ratio. Ascending.
func ETB(minExp, maxExp, ratio float64) ([]float64, error) {
	if minExp <= 0 || maxExp < minExp || ratio <= 1 {
		return nil, fmt.Errorf("%w: [%g, %g] ratio %g", ErrInvalidRange, minExp, maxExp, ratio)
	}
	if maxExp == minExp {
		return []float64{minExp}, nil
	}
	n := int(math.Ceil(math.Log(maxExp/minExp)/math.Log(ratio))) + 1
	dd := math.Log(maxExp/minExp) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = minExp * math.Exp(dd*float64(i))
	}
	out[n-1] = maxExp
	return out, nil
}

// DeltaExponents returns the delta-basis exponents from pmax down to pmin.
func DeltaExponents(pmax, pmin, ratio float64) ([]float64, error) {
	asc, err := ETB(pmin, pmax, ratio)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(asc))
	for i, a := range asc {
		out[len(asc)-1-i] = a
	}
	return out, nil
}

// AlphaLadder returns n kernel exponents q_i = q0 lambd^i with the largest
// equal to qmax.
func AlphaLadder(qmax, lambd float64, n int) ([]float64, error) {
	if qmax <= 0 || lambd <= 1 || n < 1 {
		return nil, fmt.Errorf("%w: qmax=%g lambd=%g n=%d", ErrInvalidRange, qmax, lambd, n)
	}
	out := make([]float64, n)
	q0 := qmax / math.Pow(lambd, float64(n-1))
	for i := range out {
		out[i] = q0 * math.Pow(lambd, float64(i))
	}
	return out, nil
}

// AtomNalpha decides how many kernel exponents an atom of charge Z needs.
// The atom ladder extends the global one until its largest exponent
// covers encut = 20 Z^2.
func AtomNalpha(Z int, alphas []float64, lambd float64) (int, float64, error) {
	if Z < 0 {
		return 0, 0, fmt.Errorf("%w: Z=%d", ErrInvalidZ, Z)
	}
	if len(alphas) == 0 {
		return 0, 0, fmt.Errorf("%w: empty ladder", ErrInvalidRange)
	}
	amin, amax := alphas[0], alphas[len(alphas)-1]
	encut := float64(Z*Z) * 20
	if encut-1e-7 <= amax {
		return len(alphas), amax, nil
	}
	n := int(math.Ceil(math.Log(encut/amin)/math.Log(lambd))) + 1
	encut0 := amin * math.Pow(lambd, float64(n-1))
	if encut0 < encut-1e-6 || encut0/lambd >= encut {
		return 0, 0, fmt.Errorf("%w: ladder to %g does not bracket encut %g", ErrInvalidRange, encut0, encut)
	}
	return n, encut0, nil
}

// Extend continues a ladder geometrically up to n entries.
func Extend(alphas []float64, lambd float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, alphas)
	for i := len(alphas); i < n; i++ {
		out[i] = alphas[0] * math.Pow(lambd, float64(i))
	}
	return out
}

// OrbitalExponents is the ETB of the Gaussian orbital basis for a species
// on a grid ending at rmax.
func OrbitalExponents(Z int, rmax, ratio float64) ([]float64, error) {
	if Z < 0 {
		return nil, fmt.Errorf("%w: Z=%d", ErrInvalidZ, Z)
	}
	zeff := math.Max(float64(Z), 1)
	return ETB(0.5/(rmax*rmax), 500*zeff*zeff, ratio)
}
