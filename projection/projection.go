// projection.go --  This file is part of goCIDER project.
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

// Package projection fits convolved atom-centered fields to projector
// functions. SmoothSetup splits a reciprocal-space field into coefficients
// on convolved projector functions and a residual on a delta basis;
// AugSetup holds the dual projector pair used to replace reference
// projections of a feature field with supplied ones.
package projection

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrNotPositiveDefinite = errors.New("projection: matrix not positive definite")

// DegenerateCond is the condition estimate above which a factorization is
// reported as degenerate.
const DegenerateCond = 1e12

// Regularization of the fit matrix blocks.
const (
	regDelta   = 1e-6
	regPhi     = 1e-5
	regPhiFilt = 1e-2
)

// Coeffs holds per-spin projector coefficients, one NI x NQ matrix per
// spin.
type Coeffs []*mat.Dense

func NewCoeffs(ns, ni, nq int) Coeffs {
	c := make(Coeffs, ns)
	for s := range c {
		c[s] = mat.NewDense(ni, nq, nil)
	}
	return c
}

// Dims returns spin count, rows and columns.
func (c Coeffs) Dims() (int, int, int) {
	if len(c) == 0 {
		return 0, 0, 0
	}
	r, q := c[0].Dims()
	return len(c), r, q
}

func (c Coeffs) Clone() Coeffs {
	out := make(Coeffs, len(c))
	for s, m := range c {
		out[s] = mat.DenseCopyOf(m)
	}
	return out
}

// Add sets c = c + o.
func (c Coeffs) Add(o Coeffs) error {
	ns, ni, nq := c.Dims()
	if err := o.check(ns, ni, nq); err != nil {
		return err
	}
	for s := range c {
		c[s].Add(c[s], o[s])
	}
	return nil
}

// Dot is the plain product summed over spins.
func (c Coeffs) Dot(o Coeffs) float64 {
	t := 0.0
	for s := range c {
		r, q := c[s].Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < q; j++ {
				t += c[s].At(i, j) * o[s].At(i, j)
			}
		}
	}
	return t
}

func (c Coeffs) MaxAbs() float64 {
	m := 0.0
	for _, d := range c {
		m = math.Max(m, maxAbsDense(d))
	}
	return m
}

func maxAbsDense(d *mat.Dense) float64 {
	m := 0.0
	r, q := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < q; j++ {
			m = math.Max(m, math.Abs(d.At(i, j)))
		}
	}
	return m
}

func (c Coeffs) check(ns, ni, nq int) error {
	s, r, q := c.Dims()
	if s != ns || r != ni || q != nq {
		return fmt.Errorf("projection: coefficients %dx%dx%d, want %dx%dx%d", s, r, q, ns, ni, nq)
	}
	return nil
}

// factorize returns the Cholesky factor of a or ErrNotPositiveDefinite.
func factorize(a *mat.SymDense, what string) (*mat.Cholesky, error) {
	var ch mat.Cholesky
	if ok := ch.Factorize(a); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPositiveDefinite, what)
	}
	return &ch, nil
}

func solveVec(ch *mat.Cholesky, b []float64) ([]float64, error) {
	var x mat.VecDense
	if err := ch.SolveVecTo(&x, mat.NewVecDense(len(b), b)); err != nil {
		// a Condition error still carries a solution
		var ce mat.Condition
		if !errors.As(err, &ce) {
			return nil, err
		}
	}
	return x.RawVector().Data, nil
}
