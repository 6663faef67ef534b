// projection_test.go --  This file is part of goCIDER project.
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
package projection

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"example.com/gocider/basis"
	"example.com/gocider/field"
	"example.com/gocider/radial"
	"example.com/gocider/transform"
)

const testRCut = 1.0

func testGrids(t *testing.T) (*radial.Grid, *radial.KGrid) {
	t.Helper()
	g, err := radial.NewGridTo(0.3, 200, 3.0)
	require.NoError(t, err)
	kg, err := radial.NewKGrid(2e4, 400, 0.03)
	require.NoError(t, err)
	return g, kg
}

func testSmooth(t *testing.T, Z int, store bool) *SmoothSetup {
	t.Helper()
	g, kg := testGrids(t)
	alphas, err := basis.AlphaLadder(300, 1.8, 6)
	require.NoError(t, err)
	calls := 0
	s, err := NewSmoothSetup(SmoothParams{
		Z:            Z,
		Grid:         g,
		KGrid:        kg,
		RCut:         testRCut,
		Alphas:       alphas,
		NSm:          4,
		Encut0:       300,
		LMax:         4,
		StoreFuncs:   store,
		OnDegenerate: func(l int, cond float64) { calls++ },
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
	return s
}

func randField(rng *rand.Rand, ns, nl, nq, ng int) *field.Field {
	f := field.New(ns, nl, nq, ng)
	for i := range f.Data {
		f.Data[i] = rng.NormFloat64()
	}
	return f
}

func randCoeffs(rng *rand.Rand, ns, ni, nq int) Coeffs {
	c := NewCoeffs(ns, ni, nq)
	for _, m := range c {
		for i := 0; i < ni; i++ {
			for q := 0; q < nq; q++ {
				m.Set(i, q, rng.NormFloat64())
			}
		}
	}
	return c
}

func relDiff(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

func TestSolveLinear(t *testing.T) {
	s := testSmooth(t, 1, false)
	rng := rand.New(rand.NewPCG(11, 12))
	nk := s.kgrid.N()
	x := randField(rng, 2, s.NL, s.NQ, nk)
	y := randField(rng, 2, s.NL, s.NQ, nk)
	cx, dfx, err := s.Solve(x)
	require.NoError(t, err)
	cy, dfy, err := s.Solve(y)
	require.NoError(t, err)

	z := x.Clone()
	z.Scale(0.7)
	require.NoError(t, z.AddScaled(-1.3, y))
	cz, dfz, err := s.Solve(z)
	require.NoError(t, err)

	for i := range dfz.Data {
		want := 0.7*dfx.Data[i] - 1.3*dfy.Data[i]
		scale := 1 + math.Abs(dfx.Data[i]) + math.Abs(dfy.Data[i])
		assert.InDelta(t, want, dfz.Data[i], 1e-9*scale)
	}
	for sp := range cz {
		r, q := cz[sp].Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < q; j++ {
				want := 0.7*cx[sp].At(i, j) - 1.3*cy[sp].At(i, j)
				scale := 1 + math.Abs(cx[sp].At(i, j)) + math.Abs(cy[sp].At(i, j))
				assert.InDelta(t, want, cz[sp].At(i, j), 1e-9*scale)
			}
		}
	}
}

func TestSolveAdjoint(t *testing.T) {
	s := testSmooth(t, 1, false)
	rng := rand.New(rand.NewPCG(13, 14))
	dy := randField(rng, 2, s.NL, s.NQ, s.kgrid.N())
	c, df, err := s.Solve(dy)
	require.NoError(t, err)

	vc := randCoeffs(rng, 2, s.Shells.NI(), s.NSm)
	vdf := randField(rng, 2, s.NL, s.NQ, s.NP)
	vdy, err := s.SolveAdjoint(vc, vdf)
	require.NoError(t, err)

	d1, err := vdf.Dot(df)
	require.NoError(t, err)
	lhs := vc.Dot(c) + d1
	rhs, err := vdy.Dot(dy)
	require.NoError(t, err)
	assert.Less(t, relDiff(lhs, rhs), 1e-7)

	_, err = s.SolveAdjoint(vc, field.New(2, s.NL, s.NQ, s.NP+1))
	assert.True(t, errors.Is(err, field.ErrShape))
	_, _, err = s.Solve(field.New(1, 4, s.NQ, s.kgrid.N()))
	assert.True(t, errors.Is(err, field.ErrShape))
}

func TestChannelSkip(t *testing.T) {
	s := testSmooth(t, 0, false)
	require.Equal(t, 2, s.LMax)
	rng := rand.New(rand.NewPCG(15, 16))
	dy := randField(rng, 1, s.NL, s.NQ, s.kgrid.N())
	c, df, err := s.Solve(dy)
	require.NoError(t, err)
	for L := 9; L < s.NL; L++ {
		for q := 0; q < s.NQ; q++ {
			for _, v := range df.Radial(0, L, q) {
				assert.Equal(t, 0.0, v)
			}
		}
	}
	assert.NotZero(t, df.Radial(0, 4, 0)[0])
	_, _, nq := c.Dims()
	assert.Equal(t, s.NSm, nq)

	fr, err := s.PhiReal(c)
	require.NoError(t, err)
	for L := 9; L < s.NL; L++ {
		for q := 0; q < s.NSm; q++ {
			assert.Equal(t, 0.0, floats.Norm(fr.Radial(0, L, q), 2))
		}
	}
}

// TestCoupledFit checks the delta block of the normal equations of the
// joint fit: the residual of every smooth channel, built from all projector
// coefficients, is orthogonal to the delta functions up to regularization.
func TestCoupledFit(t *testing.T) {
	s := testSmooth(t, 1, false)
	rng := rand.New(rand.NewPCG(21, 22))
	nk := s.kgrid.N()
	dy := randField(rng, 1, s.NL, s.NQ, nk)
	c, df, err := s.Solve(dy)
	require.NoError(t, err)
	for _, L := range []int{0, 2} {
		l := transform.LOf(L)
		j0, j1 := s.Shells.JRange(l)
		require.Greater(t, j1, j0)
		for b := 0; b < s.NSm; b++ {
			res := append([]float64(nil), dy.Radial(0, L, b)...)
			for p, v := range df.Radial(0, L, b) {
				floats.AddScaled(res, -v, s.deltaK[l][p])
			}
			for j := j0; j < j1; j++ {
				for a := 0; a < s.NSm; a++ {
					floats.AddScaled(res, -c[0].At(s.index[[2]int{j, L}], a), s.phiK[j][a][b])
				}
			}
			for p := 0; p < s.NP; p++ {
				got := s.kdot(res, s.deltaK[l][p])
				want := regDelta * df.Radial(0, L, b)[p]
				scale := math.Sqrt(s.kdot(dy.Radial(0, L, b), dy.Radial(0, L, b)) * s.kdot(s.deltaK[l][p], s.deltaK[l][p]))
				assert.InDelta(t, want, got, 1e-7*scale, "L=%d b=%d p=%d", L, b, p)
			}
		}
	}
}

func TestPhiChannelCoupling(t *testing.T) {
	s := testSmooth(t, 1, false)
	c := NewCoeffs(1, s.Shells.NI(), s.NSm)
	c[0].Set(0, 0, 1)
	fr, err := s.PhiReal(c)
	require.NoError(t, err)
	L := s.Shells.LM[0]
	for b := 0; b < s.NSm; b++ {
		assert.Greater(t, floats.Norm(fr.Radial(0, L, b), 2), 0.0, "b=%d", b)
	}
	// the diagonal term carries the kernel of its own channel
	alphas, err := basis.AlphaLadder(300, 1.8, 6)
	require.NoError(t, err)
	j := s.Shells.J[0]
	for i, k := range s.kgrid.K {
		d0, d1 := s.phiK[j][0][0][i], s.phiK[j][1][1][i]
		if math.Abs(d0) < 1e-200 || math.Abs(d1) < 1e-200 {
			continue
		}
		want := basis.KernelFT(alphas[1], k) / basis.KernelFT(alphas[0], k)
		assert.InDelta(t, want, d1/d0, 1e-10*want)
	}
	assert.Equal(t, s.phiK[j][0][2], s.phiK[j][2][0])
}

func TestRealSpaceMapsTranspose(t *testing.T) {
	for _, store := range []bool{false, true} {
		s := testSmooth(t, 1, store)
		rng := rand.New(rand.NewPCG(17, 18))
		ng := s.grid.N()

		c := randCoeffs(rng, 2, s.Shells.NI(), s.NSm)
		v := randField(rng, 2, s.NL, s.NSm, ng)
		fr, err := s.PhiReal(c)
		require.NoError(t, err)
		vc, err := s.PhiRealT(v)
		require.NoError(t, err)
		lhs, err := v.Dot(fr)
		require.NoError(t, err)
		assert.Less(t, relDiff(lhs, vc.Dot(c)), 1e-10)

		df := randField(rng, 2, s.NL, s.NQ, s.NP)
		vr := randField(rng, 2, s.NL, s.NQ, ng)
		dr, err := s.DeltaReal(df)
		require.NoError(t, err)
		vdf, err := s.DeltaRealT(vr)
		require.NoError(t, err)
		lhs, err = vr.Dot(dr)
		require.NoError(t, err)
		rhs, err := vdf.Dot(df)
		require.NoError(t, err)
		assert.Less(t, relDiff(lhs, rhs), 1e-10)
	}
}

func TestStoreFuncsEquivalent(t *testing.T) {
	a := testSmooth(t, 1, true)
	b := testSmooth(t, 1, false)
	rng := rand.New(rand.NewPCG(19, 20))
	c := randCoeffs(rng, 1, a.Shells.NI(), a.NSm)
	fa, err := a.PhiReal(c)
	require.NoError(t, err)
	fb, err := b.PhiReal(c)
	require.NoError(t, err)
	assert.Equal(t, fa.Data, fb.Data)
}

func testAug(t *testing.T, fit bool) *AugSetup {
	t.Helper()
	g, _ := testGrids(t)
	a, err := NewAugSetup(AugParams{Z: 1, Grid: g, RCutFeat: testRCut, LMax: 4, OverlapFit: fit})
	require.NoError(t, err)
	return a
}

func TestAugDuality(t *testing.T) {
	a := testAug(t, true)
	w := a.grid.W
	for l := 0; l <= a.Shells.LMax(); l++ {
		j0, j1 := a.Shells.JRange(l)
		for j := j0; j < j1; j++ {
			for jj := j0; jj < j1; jj++ {
				s := 0.0
				for g := range w {
					s += a.PFunc(j)[g] * w[g] * a.FFunc(jj)[g]
				}
				want := 0.0
				if j == jj {
					want = 1
				}
				assert.InDelta(t, want, s, 1e-9, "l=%d j=%d jj=%d", l, j, jj)
			}
		}
	}

	d := testAug(t, false)
	for j := range d.Shells.N {
		s := 0.0
		for g := range w {
			s += d.PFunc(j)[g] * w[g] * d.FFunc(j)[g]
		}
		assert.InDelta(t, 1, s, 1e-12)
	}
}

func TestAugExpand(t *testing.T) {
	a := testAug(t, true)
	rng := rand.New(rand.NewPCG(21, 22))
	ng := a.grid.N()
	fr := randField(rng, 2, a.NL, 3, ng)
	proj := randCoeffs(rng, 2, a.Shells.NI(), 3)

	ref, err := a.Reference(fr)
	require.NoError(t, err)
	same, err := a.Expand(fr, ref)
	require.NoError(t, err)
	assert.Equal(t, fr.Data, same.Data)

	ft, err := a.Expand(fr, proj)
	require.NoError(t, err)
	vft := randField(rng, 2, a.NL, 3, ng)
	dvd, vfr, err := a.ExpandAdjoint(vft)
	require.NoError(t, err)
	lhs, err := vft.Dot(ft)
	require.NoError(t, err)
	r2, err := vfr.Dot(fr)
	require.NoError(t, err)
	assert.Less(t, relDiff(lhs, dvd.Dot(proj)+r2), 1e-10)

	// the expanded field carries the supplied projections
	got, err := a.Reference(ft)
	require.NoError(t, err)
	for s := range got {
		for i := 0; i < a.Shells.NI(); i++ {
			assert.InDelta(t, proj[s].At(i, 1), got[s].At(i, 1), 1e-9)
		}
	}

	_, err = a.Expand(fr, NewCoeffs(2, a.Shells.NI(), 2))
	assert.True(t, errors.Is(err, field.ErrShape))
}

func TestAugSplines(t *testing.T) {
	a := testAug(t, true)
	for j := range a.Shells.N {
		for g, r := range a.grid.R {
			if r > a.RCutFunc {
				break
			}
			assert.InDelta(t, a.PFunc(j)[g], a.PFuncAt(j, r), 2e-2*(1+math.Abs(a.PFunc(j)[g])))
		}
		assert.Equal(t, 0.0, a.FFuncAt(j, a.RCutFunc+0.1))
	}
}
