// orbital.go --  This file is part of goCIDER project.
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
package conv

import (
	"gonum.org/v1/gonum/mat"

	"example.com/gocider/field"
	"example.com/gocider/transform"
)

// Orbital fits the input to the whitened Gaussian basis and evaluates the
// analytically convolved basis functions, one pair of matrices per (l, q).
// The forward maps are
//
//	Convolve:           y  = Y_q Q x
//	ConvolveReciprocal: yk = K_q Q x
//
// and fwd=false applies their transposes.
type Orbital struct {
	base
	y  [][]*mat.Dense // [l][q], ng x nc
	yk [][]*mat.Dense // [l][q], nk x nc
}

func newOrbital(tr *transform.Transform, alphas []float64) *Orbital {
	e := &Orbital{base: base{tr: tr, alphas: alphas}}
	for _, b := range tr.Bases {
		ry := make([]*mat.Dense, len(alphas))
		rk := make([]*mat.Dense, len(alphas))
		for q, a := range alphas {
			ry[q], rk[q] = b.Convolved(a)
		}
		e.y = append(e.y, ry)
		e.yk = append(e.yk, rk)
	}
	return e
}

func (e *Orbital) Backend() Backend { return OrbitalBackend }

func mulVec(a mat.Matrix, x []float64) []float64 {
	r, _ := a.Dims()
	d := mat.NewVecDense(r, nil)
	d.MulVec(a, mat.NewVecDense(len(x), x))
	return d.RawVector().Data
}

func (e *Orbital) Convolve(in *field.Field, fwd bool) (*field.Field, error) {
	ng := e.tr.Grid.N()
	if err := e.check(in, ng); err != nil {
		return nil, err
	}
	if fwd {
		return e.apply(in, ng, func(b *transform.Basis, q int, x []float64) []float64 {
			return mulVec(e.y[b.L][q], b.Coefficients(x))
		}), nil
	}
	return e.apply(in, ng, func(b *transform.Basis, q int, v []float64) []float64 {
		return b.ToRadialAngular(mulVec(e.y[b.L][q].T(), v))
	}), nil
}

func (e *Orbital) ConvolveReciprocal(in *field.Field, fwd bool) (*field.Field, error) {
	ng, nk := e.tr.Grid.N(), e.tr.KGrid.N()
	if fwd {
		if err := e.check(in, ng); err != nil {
			return nil, err
		}
		return e.apply(in, nk, func(b *transform.Basis, q int, x []float64) []float64 {
			return mulVec(e.yk[b.L][q], b.Coefficients(x))
		}), nil
	}
	if err := e.check(in, nk); err != nil {
		return nil, err
	}
	return e.apply(in, ng, func(b *transform.Basis, q int, y []float64) []float64 {
		return b.ToRadialAngular(mulVec(e.yk[b.L][q].T(), y))
	}), nil
}
