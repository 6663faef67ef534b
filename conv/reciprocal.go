// reciprocal.go --  This file is part of goCIDER project.
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
	"gonum.org/v1/gonum/floats"

	"example.com/gocider/basis"
	"example.com/gocider/field"
	"example.com/gocider/transform"
)

// Reciprocal multiplies by the kernel transform on the reciprocal grid.
type Reciprocal struct {
	base
	// kern[q] is exp(-k^2/4a_q); kernDV[q] also carries DVK.
	kern, kernDV [][]float64
}

func newReciprocal(tr *transform.Transform, alphas []float64) *Reciprocal {
	e := &Reciprocal{base: base{tr: tr, alphas: alphas}}
	kg := tr.KGrid
	for _, a := range alphas {
		k := make([]float64, kg.N())
		for i, ki := range kg.K {
			k[i] = basis.KernelFT(a, ki)
		}
		kdv := make([]float64, kg.N())
		floats.MulTo(kdv, k, kg.DVK)
		e.kern = append(e.kern, k)
		e.kernDV = append(e.kernDV, kdv)
	}
	return e
}

func (e *Reciprocal) Backend() Backend { return ReciprocalBackend }

// Kernel returns exp(-k^2/4a_q) on the reciprocal grid.
func (e *Reciprocal) Kernel(q int) []float64 { return e.kern[q] }

func (e *Reciprocal) Convolve(in *field.Field, fwd bool) (*field.Field, error) {
	ng := e.tr.Grid.N()
	if err := e.check(in, ng); err != nil {
		return nil, err
	}
	return e.apply(in, ng, func(b *transform.Basis, q int, x []float64) []float64 {
		yk := b.KValues(b.Coefficients(x))
		floats.Mul(yk, e.kernDV[q])
		return b.ToRadialAngular(b.KCoefficients(yk))
	}), nil
}

func (e *Reciprocal) ConvolveReciprocal(in *field.Field, fwd bool) (*field.Field, error) {
	ng, nk := e.tr.Grid.N(), e.tr.KGrid.N()
	if fwd {
		if err := e.check(in, ng); err != nil {
			return nil, err
		}
		return e.apply(in, nk, func(b *transform.Basis, q int, x []float64) []float64 {
			yk := b.RealToReciprocal(x)
			floats.Mul(yk, e.kern[q])
			return yk
		}), nil
	}
	if err := e.check(in, nk); err != nil {
		return nil, err
	}
	return e.apply(in, ng, func(b *transform.Basis, q int, y []float64) []float64 {
		yk := make([]float64, len(y))
		floats.MulTo(yk, y, e.kern[q])
		return b.ReciprocalToReal(yk)
	}), nil
}
