// aug.go --  This file is part of goCIDER project.
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
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"example.com/gocider/basis"
	"example.com/gocider/field"
	"example.com/gocider/radial"
)

// NInterp is the size of the equidistant grid the projector splines are
// built on.
const NInterp = 100

type AugParams struct {
	Z          int
	Grid       *radial.Grid
	RCutFeat   float64
	LMax       int // angular momentum of the feature field
	OverlapFit bool
}

// AugSetup holds projector functions p_j (filtered, to be integrated with
// r^2 dr) and their duals f_j on the radial grid.
type AugSetup struct {
	Shells   *basis.Shells
	RCutFunc float64
	RCutFeat float64
	NL       int

	grid   *radial.Grid
	pfuncs [][]float64 // [j][g]
	ffuncs [][]float64 // [j][g]
	pspl   []*radial.Spline
	fspl   []*radial.Spline
}

func NewAugSetup(p AugParams) (*AugSetup, error) {
	sh, err := basis.AugShells(p.Z)
	if err != nil {
		return nil, err
	}
	if p.RCutFeat <= 0 {
		return nil, fmt.Errorf("projection: rcut_feat=%g", p.RCutFeat)
	}
	a := &AugSetup{
		Shells:   sh,
		RCutFunc: 0.8 * p.Grid.RMax(),
		RCutFeat: p.RCutFeat,
		NL:       (p.LMax + 1) * (p.LMax + 1),
		grid:     p.Grid,
		pfuncs:   make([][]float64, sh.NJ()),
		ffuncs:   make([][]float64, sh.NJ()),
	}
	rt := radial.Equidistant(a.RCutFunc, NInterp)
	filtG := basis.Filt(p.Grid.R, p.RCutFeat)
	filtT := basis.Filt(rt, p.RCutFeat)
	wf := make([]float64, p.Grid.N())
	floats.MulTo(wf, filtG, p.Grid.W)

	raw := make([][]float64, sh.NJ())
	rawT := make([][]float64, sh.NJ())
	for j, n := range sh.N {
		raw[j] = basis.FFunc3(n, p.Grid.R, a.RCutFunc)
		rawT[j] = basis.FFunc3(n, rt, a.RCutFunc)
	}
	ffT := make([][]float64, sh.NJ())
	for l := 0; l <= sh.LMax(); l++ {
		j0, j1 := sh.JRange(l)
		nj := j1 - j0
		if !p.OverlapFit {
			for j := j0; j < j1; j++ {
				nrm := 0.0
				for g, v := range raw[j] {
					nrm += v * v * wf[g]
				}
				a.ffuncs[j] = scaled(raw[j], 1/nrm)
				ffT[j] = scaled(rawT[j], 1/nrm)
			}
			continue
		}
		ovlp := mat.NewSymDense(nj, nil)
		for j := j0; j < j1; j++ {
			for jj := j; jj < j1; jj++ {
				v := 0.0
				for g, w := range wf {
					v += raw[j][g] * raw[jj][g] * w
				}
				ovlp.SetSym(j-j0, jj-j0, v)
			}
		}
		ch, err := factorize(ovlp, fmt.Sprintf("projector overlap l=%d", l))
		if err != nil {
			return nil, err
		}
		ff, err := cholSolveRows(ch, raw[j0:j1])
		if err != nil {
			return nil, err
		}
		fft, err := cholSolveRows(ch, rawT[j0:j1])
		if err != nil {
			return nil, err
		}
		copy(a.ffuncs[j0:j1], ff)
		copy(ffT[j0:j1], fft)
	}
	for j := range raw {
		floats.Mul(raw[j], filtG)
		floats.Mul(rawT[j], filtT)
		a.pfuncs[j] = raw[j]
		ps, err := radial.NewSpline(rt, rawT[j])
		if err != nil {
			return nil, err
		}
		fs, err := radial.NewSpline(rt, ffT[j])
		if err != nil {
			return nil, err
		}
		a.pspl = append(a.pspl, ps)
		a.fspl = append(a.fspl, fs)
	}
	return a, nil
}

func scaled(v []float64, c float64) []float64 {
	out := make([]float64, len(v))
	floats.ScaleTo(out, c, v)
	return out
}

// cholSolveRows returns S^-1 applied to the stacked rows.
func cholSolveRows(ch *mat.Cholesky, rows [][]float64) ([][]float64, error) {
	n, ng := len(rows), len(rows[0])
	b := mat.NewDense(n, ng, nil)
	for i, r := range rows {
		b.SetRow(i, r)
	}
	var x mat.Dense
	if err := ch.SolveTo(&x, b); err != nil {
		return nil, fmt.Errorf("projection: projector duals: %w", err)
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &x)
	}
	return out, nil
}

// PFunc returns the filtered projector function of radial function j.
func (a *AugSetup) PFunc(j int) []float64 { return a.pfuncs[j] }

// FFunc returns the dual function of radial function j.
func (a *AugSetup) FFunc(j int) []float64 { return a.ffuncs[j] }

// PFuncAt interpolates the filtered projector function j at r.
func (a *AugSetup) PFuncAt(j int, r float64) float64 { return a.pspl[j].At(r) }

// FFuncAt interpolates the dual function j at r.
func (a *AugSetup) FFuncAt(j int, r float64) float64 { return a.fspl[j].At(r) }

func (a *AugSetup) each(nl int, fn func(i, j, L int)) {
	for i, L := range a.Shells.LM {
		if L >= nl {
			continue
		}
		fn(i, a.Shells.J[i], L)
	}
}

// Reference returns the projections sum_g p_j(i) r^2 dr fr_{g,L_i,q}.
// Projectors with L_i outside fr are left zero.
func (a *AugSetup) Reference(fr *field.Field) (Coeffs, error) {
	if fr == nil || fr.NG != a.grid.N() {
		return nil, fmt.Errorf("%w: reference projection of %v", field.ErrShape, shapeOf(fr))
	}
	d := NewCoeffs(fr.NS, a.Shells.NI(), fr.NQ)
	wp := make([]float64, a.grid.N())
	a.each(fr.NL, func(i, j, L int) {
		floats.MulTo(wp, a.pfuncs[j], a.grid.W)
		for s := 0; s < fr.NS; s++ {
			for q := 0; q < fr.NQ; q++ {
				d[s].Set(i, q, floats.Dot(wp, fr.Radial(s, L, q)))
			}
		}
	})
	return d, nil
}

// Expand returns ft = fr + sum_i (P_iq - Dref_iq) f_j(i) with Dref the
// reference projections of fr.
func (a *AugSetup) Expand(fr *field.Field, proj Coeffs) (*field.Field, error) {
	dref, err := a.Reference(fr)
	if err != nil {
		return nil, err
	}
	if err := proj.check(fr.NS, a.Shells.NI(), fr.NQ); err != nil {
		return nil, fmt.Errorf("%w: %v", field.ErrShape, err)
	}
	ft := fr.Clone()
	a.each(fr.NL, func(i, j, L int) {
		for s := 0; s < fr.NS; s++ {
			for q := 0; q < fr.NQ; q++ {
				floats.AddScaled(ft.Radial(s, L, q), proj[s].At(i, q)-dref[s].At(i, q), a.ffuncs[j])
			}
		}
	})
	return ft, nil
}

// ExpandAdjoint is the transpose of Expand. Given the derivative vft with
// respect to ft it returns the derivatives with respect to the projections
// and to fr.
func (a *AugSetup) ExpandAdjoint(vft *field.Field) (Coeffs, *field.Field, error) {
	if vft == nil || vft.NG != a.grid.N() {
		return nil, nil, fmt.Errorf("%w: expansion adjoint of %v", field.ErrShape, shapeOf(vft))
	}
	dvd := NewCoeffs(vft.NS, a.Shells.NI(), vft.NQ)
	vfr := vft.Clone()
	wp := make([]float64, a.grid.N())
	a.each(vft.NL, func(i, j, L int) {
		floats.MulTo(wp, a.pfuncs[j], a.grid.W)
		for s := 0; s < vft.NS; s++ {
			for q := 0; q < vft.NQ; q++ {
				v := floats.Dot(a.ffuncs[j], vft.Radial(s, L, q))
				dvd[s].Set(i, q, v)
				floats.AddScaled(vfr.Radial(s, L, q), -v, wp)
			}
		}
	})
	return dvd, vfr, nil
}

func shapeOf(f *field.Field) any {
	if f == nil {
		return "nil"
	}
	return f.Shape()
}
