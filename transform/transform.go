// transform.go --  This file is part of goCIDER project.
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

// Package transform maps radial functions of one angular channel between
// the radial grid, a Gaussian orbital basis and the reciprocal grid.
//
// Real-space inputs that enter the basis are dual quantities, already
// multiplied by the quadrature weight r^2 dr. The basis is whitened by
// canonical orthogonalization of its overlap, S = U diag(lambda) U^T,
// keeping the eigenvectors whose eigenvalues exceed OverlapTol times the
// largest. With T = U lambda^-1/2, Q = T^T X^T and P = T^T R^T every map is
// a product of Q, P and their transposes, and each adjoint is a plain
// transpose.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"example.com/gocider/basis"
	"example.com/gocider/radial"
)

// OverlapTol is the relative eigenvalue below which overlap directions are
// dropped from the whitened basis.
const OverlapTol = 1e-11

var ErrSingularOverlap = errors.New("transform: orbital overlap not positive definite")

// Transform holds one Basis per angular momentum l.
type Transform struct {
	Grid  *radial.Grid
	KGrid *radial.KGrid
	Exps  []float64
	Bases []*Basis
}

// Basis is the normalized Gaussian set r^l exp(-b_u r^2) for one l.
// NU counts the Gaussians, NC the whitened coefficients kept.
type Basis struct {
	L  int
	NU int
	NC int

	x    *mat.Dense // ng x nu
	r    *mat.Dense // nk x nu
	s    *mat.SymDense
	t    *mat.Dense // nu x nc
	q    *mat.Dense // nc x ng
	p    *mat.Dense // nc x nk
	cond float64
	w    []float64
	rs   []float64
	ks   []float64
	exps []float64
}

func New(g *radial.Grid, kg *radial.KGrid, exps []float64, lmax int) (*Transform, error) {
	if len(exps) == 0 || lmax < 0 {
		return nil, fmt.Errorf("transform: %d exponents, lmax %d", len(exps), lmax)
	}
	t := &Transform{Grid: g, KGrid: kg, Exps: exps}
	for l := 0; l <= lmax; l++ {
		b, err := newBasis(l, g, kg, exps)
		if err != nil {
			return nil, err
		}
		t.Bases = append(t.Bases, b)
	}
	return t, nil
}

// LOf returns l for the combined index L = l^2 + l + m.
func LOf(L int) int {
	l := int(math.Sqrt(float64(L)))
	for (l+1)*(l+1) <= L {
		l++
	}
	for l*l > L {
		l--
	}
	return l
}

// For returns the basis of the channel holding L.
func (t *Transform) For(L int) *Basis {
	return t.Bases[LOf(L)]
}

func (t *Transform) LMax() int { return len(t.Bases) - 1 }

func newBasis(l int, g *radial.Grid, kg *radial.KGrid, exps []float64) (*Basis, error) {
	ng, nk, nu := g.N(), kg.N(), len(exps)
	b := &Basis{
		L:    l,
		NU:   nu,
		x:    mat.NewDense(ng, nu, nil),
		r:    mat.NewDense(nk, nu, nil),
		s:    mat.NewSymDense(nu, nil),
		w:    g.W,
		rs:   g.R,
		ks:   kg.K,
		exps: exps,
	}
	for u, e := range exps {
		nrm := basis.GaussianNorm(l, e)
		for i, rg := range g.R {
			b.x.Set(i, u, nrm*basis.Gaussian(l, e, rg))
		}
		for i, k := range kg.K {
			b.r.Set(i, u, nrm*basis.GaussianFT(l, e, k))
		}
	}
	wx := make([]float64, ng)
	for u := 0; u < nu; u++ {
		floats.MulTo(wx, g.W, mat.Col(nil, u, b.x))
		for v := u; v < nu; v++ {
			b.s.SetSym(u, v, floats.Dot(wx, mat.Col(nil, v, b.x)))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(b.s, true); !ok {
		return nil, fmt.Errorf("%w: l=%d, eigendecomposition failed", ErrSingularOverlap, l)
	}
	vals := es.Values(nil)
	var ev mat.Dense
	es.VectorsTo(&ev)
	top := vals[nu-1]
	if top <= 0 {
		return nil, fmt.Errorf("%w: l=%d, %d functions", ErrSingularOverlap, l, nu)
	}
	// eigenvalues come in ascending order
	first := 0
	for first < nu && vals[first] <= OverlapTol*top {
		first++
	}
	b.NC = nu - first
	b.cond = top / vals[first]
	b.t = mat.NewDense(nu, b.NC, nil)
	for c := 0; c < b.NC; c++ {
		sc := 1 / math.Sqrt(vals[first+c])
		for u := 0; u < nu; u++ {
			b.t.Set(u, c, sc*ev.At(u, first+c))
		}
	}
	b.q = mat.NewDense(b.NC, ng, nil)
	b.q.Mul(b.t.T(), b.x.T())
	b.p = mat.NewDense(b.NC, nk, nil)
	b.p.Mul(b.t.T(), b.r.T())
	return b, nil
}

// Cond is the ratio of the largest to the smallest kept overlap eigenvalue.
func (b *Basis) Cond() float64 { return b.cond }

func (b *Basis) Exps() []float64 { return b.exps }

// Project returns X^T f.
func (b *Basis) Project(f []float64) []float64 {
	return mulVec(b.x.T(), f)
}

// Evaluate returns X c.
func (b *Basis) Evaluate(c []float64) []float64 {
	return mulVec(b.x, c)
}

// Solve returns T T^T v, the inverse of S on the kept directions.
func (b *Basis) Solve(v []float64) ([]float64, error) {
	if len(v) != b.NU {
		return nil, fmt.Errorf("transform: overlap solve l=%d: %d values for %d functions", b.L, len(v), b.NU)
	}
	return mulVec(b.t, mulVec(b.t.T(), v)), nil
}

// ToOrbital returns whitened coefficients of the function f on the grid.
func (b *Basis) ToOrbital(f []float64) []float64 {
	wf := make([]float64, len(f))
	floats.MulTo(wf, f, b.w)
	return b.Coefficients(wf)
}

// ToRadialAngular evaluates whitened coefficients on the grid.
func (b *Basis) ToRadialAngular(c []float64) []float64 {
	return mulVec(b.q.T(), c)
}

// Coefficients returns the whitened coefficients of a dual input.
func (b *Basis) Coefficients(xt []float64) []float64 {
	return mulVec(b.q, xt)
}

// RealToReciprocal maps a dual real-space function to k-space values.
func (b *Basis) RealToReciprocal(xt []float64) []float64 {
	return mulVec(b.p.T(), mulVec(b.q, xt))
}

// ReciprocalToReal is the transpose of RealToReciprocal.
func (b *Basis) ReciprocalToReal(yk []float64) []float64 {
	return mulVec(b.q.T(), mulVec(b.p, yk))
}

// KCoefficients is P yk, the transpose of mapping whitened coefficients to
// k-space values.
func (b *Basis) KCoefficients(yk []float64) []float64 {
	return mulVec(b.p, yk)
}

// KValues maps whitened coefficients to k-space values.
func (b *Basis) KValues(c []float64) []float64 {
	return mulVec(b.p.T(), c)
}

// Convolved returns the kernel (a/pi)^1.5 exp(-a r^2) convolved with the
// whitened basis functions, on the radial grid (ng x nc) and on the
// reciprocal grid (nk x nc). Each Gaussian maps analytically,
//
//	K_a * r^l e^{-b r^2} = (a/(a+b))^{l+3/2} r^l e^{-ab/(a+b) r^2},
//
// so neither output is refitted to the basis.
func (b *Basis) Convolved(alpha float64) (*mat.Dense, *mat.Dense) {
	e := float64(b.L) + 1.5
	ng, nk := len(b.rs), len(b.ks)
	y := mat.NewDense(ng, b.NU, nil)
	yk := mat.NewDense(nk, b.NU, nil)
	for u, bu := range b.exps {
		pre := basis.GaussianNorm(b.L, bu) * math.Pow(alpha/(alpha+bu), e)
		bc := alpha * bu / (alpha + bu)
		for i, r := range b.rs {
			y.Set(i, u, pre*basis.Gaussian(b.L, bc, r))
		}
		for i, k := range b.ks {
			yk.Set(i, u, pre*basis.GaussianFT(b.L, bc, k))
		}
	}
	yw := mat.NewDense(ng, b.NC, nil)
	yw.Mul(y, b.t)
	ykw := mat.NewDense(nk, b.NC, nil)
	ykw.Mul(yk, b.t)
	return yw, ykw
}

// RoundTripResidual is the weighted RMS of f - ToRadialAngular(ToOrbital(f))
// relative to that of f.
func (b *Basis) RoundTripResidual(f []float64) float64 {
	back := b.ToRadialAngular(b.ToOrbital(f))
	res := make([]float64, len(f))
	floats.SubTo(res, f, back)
	num := weightedMS(res, b.w)
	den := weightedMS(f, b.w)
	if den == 0 {
		return math.Sqrt(num)
	}
	return math.Sqrt(num / den)
}

func weightedMS(f, w []float64) float64 {
	sq := make([]float64, len(f))
	floats.MulTo(sq, f, f)
	return stat.Mean(sq, w)
}

func mulVec(a mat.Matrix, x []float64) []float64 {
	r, _ := a.Dims()
	dst := mat.NewVecDense(r, nil)
	dst.MulVec(a, mat.NewVecDense(len(x), x))
	return dst.RawVector().Data
}
