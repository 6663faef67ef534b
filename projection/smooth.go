// smooth.go --  This file is part of goCIDER project.
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
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"example.com/gocider/basis"
	"example.com/gocider/field"
	"example.com/gocider/radial"
	"example.com/gocider/transform"
)

// DeltaRatio is the ratio of the delta exponent ladder.
const DeltaRatio = 1.8

// nFTGrid is the number of intervals of the linear grid used to transform
// the projector functions.
const nFTGrid = 1024

type SmoothParams struct {
	Z      int
	Grid   *radial.Grid
	KGrid  *radial.KGrid
	RCut   float64   // rcut_feat
	Alphas []float64 // kernel exponents of the atom
	NSm    int       // leading channels that carry projector functions
	Encut0 float64
	LMax   int // angular momentum of the feature field

	StoreFuncs   bool
	Logger       *slog.Logger
	OnDegenerate func(l int, cond float64)
}

// SmoothSetup fits, per l, the first NSm channels b of a k-space field dy
// jointly,
//
//	dy_b ~ sum_p df_pb delta_p + sum_ja c_ja phi_jab,
//	phi_jab = pfunc_j * K_ab,  K_ab = K at exponent (alpha_a + alpha_b)/2,
//
// by least squares in the k-space inner product with regularization. A
// projector coefficient c_ja thus feeds every smooth channel b and K_aa is
// the kernel of channel a. The remaining channels only get delta
// coefficients. Each fit matrix is factorized once at construction.
type SmoothSetup struct {
	Shells *basis.Shells
	LMax   int
	NL     int
	NQ     int
	NSm    int
	NP     int
	Deltas []float64

	grid  *radial.Grid
	kgrid *radial.KGrid
	store bool

	deltaK [][][]float64 // [l][p][k]
	deltaR [][][]float64 // [l][p][g]
	phiK   [][][][]float64 // [j][a][b][k]
	phiR   [][][][]float64 // [j][a][b][g], only with StoreFuncs
	bessel [][][]float64   // [l][g][k]

	chol      []*mat.Cholesky // [l], coupled fit of the first NSm channels
	cholDelta []*mat.Cholesky // [l]
	index     map[[2]int]int  // (j, L) -> i
}

func NewSmoothSetup(p SmoothParams) (*SmoothSetup, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	sh, err := basis.SmoothShells(p.Z)
	if err != nil {
		return nil, err
	}
	if p.NSm < 0 || p.NSm > len(p.Alphas) || p.RCut <= 0 {
		return nil, fmt.Errorf("projection: nsm=%d of %d channels, rcut=%g", p.NSm, len(p.Alphas), p.RCut)
	}
	deltas, err := basis.DeltaExponents(2*p.Encut0, 2/(p.RCut*p.RCut), DeltaRatio)
	if err != nil {
		return nil, err
	}
	s := &SmoothSetup{
		Shells: sh,
		LMax:   min(sh.LMax(), p.LMax),
		NL:     (p.LMax + 1) * (p.LMax + 1),
		NQ:     len(p.Alphas),
		NSm:    p.NSm,
		NP:     len(deltas),
		Deltas: deltas,
		grid:   p.Grid,
		kgrid:  p.KGrid,
		store:  p.StoreFuncs,
		index:  make(map[[2]int]int),
	}
	for i, j := range sh.J {
		s.index[[2]int{j, sh.LM[i]}] = i
	}
	kg := p.KGrid
	for l := 0; l <= s.LMax; l++ {
		dk := make([][]float64, s.NP)
		dr := make([][]float64, s.NP)
		for ip, d := range deltas {
			nrm := basis.GaussianNorm(l, d)
			dk[ip] = make([]float64, kg.N())
			for i, k := range kg.K {
				dk[ip][i] = nrm * basis.GaussianFT(l, d, k)
			}
			dr[ip] = make([]float64, p.Grid.N())
			for g, r := range p.Grid.R {
				dr[ip][g] = nrm * basis.Gaussian(l, d, r)
			}
		}
		s.deltaK = append(s.deltaK, dk)
		s.deltaR = append(s.deltaR, dr)
		s.bessel = append(s.bessel, radial.BesselTable(l, p.Grid.R, kg.K))
	}

	// projector functions and their convolutions
	rr := radial.Equidistant(p.RCut, nFTGrid+1)
	h := rr[1] - rr[0]
	s.phiK = make([][][][]float64, sh.NJ())
	s.phiR = make([][][][]float64, sh.NJ())
	filt := basis.Filt(p.Grid.R, p.RCut)
	for j, n := range sh.N {
		l := sh.L[j]
		if l > s.LMax {
			continue
		}
		pf := basis.PFunc2(n, rr, p.RCut)
		pk := make([]float64, kg.N())
		for i, k := range kg.K {
			t := 0.0
			for u, r := range rr {
				t += radial.SphBessel(l, k*r) * pf[u] * r * r
			}
			pk[i] = 4 * math.Pi * h * t
		}
		s.phiK[j] = make([][][]float64, s.NSm)
		s.phiR[j] = make([][][]float64, s.NSm)
		for a := 0; a < s.NSm; a++ {
			s.phiK[j][a] = make([][]float64, s.NSm)
			s.phiR[j][a] = make([][]float64, s.NSm)
			for b := 0; b < s.NSm; b++ {
				if b < a {
					s.phiK[j][a][b] = s.phiK[j][b][a]
					s.phiR[j][a][b] = s.phiR[j][b][a]
					continue
				}
				ab := 0.5 * (p.Alphas[a] + p.Alphas[b])
				fk := make([]float64, kg.N())
				for i, k := range kg.K {
					fk[i] = pk[i] * basis.KernelFT(ab, k)
				}
				s.phiK[j][a][b] = fk
				s.phiR[j][a][b] = kg.InverseTransform(s.bessel[l], fk)
			}
		}
	}

	w := make([]float64, p.Grid.N())
	floats.MulTo(w, filt, p.Grid.W)
	for l := 0; l <= s.LMax; l++ {
		var chl *mat.Cholesky
		if s.NSm > 0 {
			ch, err := factorize(s.fitMatrix(l, w), fmt.Sprintf("l=%d", l))
			if err != nil {
				return nil, err
			}
			if c := ch.Cond(); c > DegenerateCond {
				log.Warn("degenerate projection matrix", "Z", p.Z, "l", l, "cond", c)
				if p.OnDegenerate != nil {
					p.OnDegenerate(l, c)
				}
			}
			chl = ch
		}
		s.chol = append(s.chol, chl)

		ch, err := factorize(s.deltaMatrix(l), fmt.Sprintf("l=%d delta", l))
		if err != nil {
			return nil, err
		}
		s.cholDelta = append(s.cholDelta, ch)
	}
	if !s.store {
		s.phiR = nil
	}
	log.Debug("smooth projection setup", "Z", p.Z, "nj", sh.NJ(), "np", s.NP, "nsm", s.NSm, "lmax", s.LMax)
	return s, nil
}

func (s *SmoothSetup) kdot(a, b []float64) float64 {
	t := 0.0
	for i, v := range a {
		t += v * b[i] * s.kgrid.DVK[i]
	}
	return t
}

func (s *SmoothSetup) deltaMatrix(l int) *mat.SymDense {
	a := mat.NewSymDense(s.NP, nil)
	dk := s.deltaK[l]
	for p := 0; p < s.NP; p++ {
		for r := p; r < s.NP; r++ {
			v := s.kdot(dk[p], dk[r])
			if p == r {
				v += regDelta
			}
			a.SetSym(p, r, v)
		}
	}
	return a
}

// fitMatrix assembles [[P11, P12], [P21, P22]] for channel l. The unknowns
// are df_pb at p*NSm+b followed by c_ja at NP*NSm+(j-j0)*NSm+a. wf is
// filt r^2 dr.
func (s *SmoothSetup) fitMatrix(l int, wf []float64) *mat.SymDense {
	j0, j1 := s.Shells.JRange(l)
	nsm := s.NSm
	nd := s.NP * nsm
	a := mat.NewSymDense(nd+(j1-j0)*nsm, nil)
	d11 := s.deltaMatrix(l)
	for p := 0; p < s.NP; p++ {
		for r := p; r < s.NP; r++ {
			for b := 0; b < nsm; b++ {
				a.SetSym(p*nsm+b, r*nsm+b, d11.At(p, r))
			}
		}
	}
	for p := 0; p < s.NP; p++ {
		for j := j0; j < j1; j++ {
			for ia := 0; ia < nsm; ia++ {
				for b := 0; b < nsm; b++ {
					a.SetSym(p*nsm+b, s.cIndex(l, j, ia), s.kdot(s.deltaK[l][p], s.phiK[j][ia][b]))
				}
			}
		}
	}
	for j := j0; j < j1; j++ {
		for ia := 0; ia < nsm; ia++ {
			u := s.cIndex(l, j, ia)
			for jj := j0; jj < j1; jj++ {
				for ib := 0; ib < nsm; ib++ {
					v := s.cIndex(l, jj, ib)
					if v < u {
						continue
					}
					sum := 0.0
					for b := 0; b < nsm; b++ {
						fa, fb := s.phiR[j][ia][b], s.phiR[jj][ib][b]
						rs := 0.0
						for g, wg := range wf {
							rs += fa[g] * fb[g] * wg
						}
						sum += s.kdot(s.phiK[j][ia][b], s.phiK[jj][ib][b]) + regPhiFilt*rs
					}
					if u == v {
						sum += regPhi
					}
					a.SetSym(u, v, sum)
				}
			}
		}
	}
	return a
}

// cIndex is the position of c_ja in the unknowns of channel l.
func (s *SmoothSetup) cIndex(l, j, a int) int {
	j0, _ := s.Shells.JRange(l)
	return s.NP*s.NSm + (j-j0)*s.NSm + a
}

func (s *SmoothSetup) phiReal(j, a, b int) []float64 {
	if s.phiR != nil {
		return s.phiR[j][a][b]
	}
	return s.kgrid.InverseTransform(s.bessel[s.Shells.L[j]], s.phiK[j][a][b])
}

func (s *SmoothSetup) checkField(f *field.Field, ng int, what string) error {
	if f == nil || f.NL != s.NL || f.NQ != s.NQ || f.NG != ng {
		got := "nil"
		if f != nil {
			got = fmt.Sprint(f.Shape())
		}
		return fmt.Errorf("%w: %s %s, want (*, %d, %d, %d)", field.ErrShape, what, got, s.NL, s.NQ, ng)
	}
	return nil
}

// Solve fits the k-space field dy of shape (NS, NL, NQ, NK). It returns the
// projector coefficients c (NS x NI x NSm) and the delta coefficients df of
// shape (NS, NL, NQ, NP). Channels with l above LMax get zero.
func (s *SmoothSetup) Solve(dy *field.Field) (Coeffs, *field.Field, error) {
	if err := s.checkField(dy, s.kgrid.N(), "k-space field"); err != nil {
		return nil, nil, err
	}
	c := NewCoeffs(dy.NS, s.Shells.NI(), s.NSm)
	df := field.New(dy.NS, s.NL, s.NQ, s.NP)
	nsm := s.NSm
	for sp := 0; sp < dy.NS; sp++ {
		for L := 0; L < s.NL; L++ {
			l := transform.LOf(L)
			if l > s.LMax {
				continue
			}
			j0, j1 := s.Shells.JRange(l)
			if nsm > 0 {
				rhs := make([]float64, s.cIndex(l, j1, 0))
				for b := 0; b < nsm; b++ {
					y := dy.Radial(sp, L, b)
					for p := 0; p < s.NP; p++ {
						rhs[p*nsm+b] = s.kdot(y, s.deltaK[l][p])
					}
					for j := j0; j < j1; j++ {
						for a := 0; a < nsm; a++ {
							rhs[s.cIndex(l, j, a)] += s.kdot(y, s.phiK[j][a][b])
						}
					}
				}
				x, err := solveVec(s.chol[l], rhs)
				if err != nil {
					return nil, nil, err
				}
				for b := 0; b < nsm; b++ {
					dst := df.Radial(sp, L, b)
					for p := range dst {
						dst[p] = x[p*nsm+b]
					}
				}
				for j := j0; j < j1; j++ {
					for a := 0; a < nsm; a++ {
						c[sp].Set(s.index[[2]int{j, L}], a, x[s.cIndex(l, j, a)])
					}
				}
			}
			rhs := make([]float64, s.NP)
			for q := nsm; q < s.NQ; q++ {
				y := dy.Radial(sp, L, q)
				for p := range rhs {
					rhs[p] = s.kdot(y, s.deltaK[l][p])
				}
				x, err := solveVec(s.cholDelta[l], rhs)
				if err != nil {
					return nil, nil, err
				}
				copy(df.Radial(sp, L, q), x)
			}
		}
	}
	return c, df, nil
}

// SolveAdjoint is the transpose of Solve: it maps the derivatives with
// respect to c and df to the derivative with respect to dy.
func (s *SmoothSetup) SolveAdjoint(vc Coeffs, vdf *field.Field) (*field.Field, error) {
	if err := s.checkField(vdf, s.NP, "delta coefficient adjoint"); err != nil {
		return nil, err
	}
	if err := vc.check(vdf.NS, s.Shells.NI(), s.NSm); err != nil {
		return nil, fmt.Errorf("%w: %v", field.ErrShape, err)
	}
	nk := s.kgrid.N()
	nsm := s.NSm
	vdy := field.New(vdf.NS, s.NL, s.NQ, nk)
	for sp := 0; sp < vdf.NS; sp++ {
		for L := 0; L < s.NL; L++ {
			l := transform.LOf(L)
			if l > s.LMax {
				continue
			}
			j0, j1 := s.Shells.JRange(l)
			if nsm > 0 {
				x := make([]float64, s.cIndex(l, j1, 0))
				for b := 0; b < nsm; b++ {
					for p, v := range vdf.Radial(sp, L, b) {
						x[p*nsm+b] = v
					}
				}
				for j := j0; j < j1; j++ {
					for a := 0; a < nsm; a++ {
						x[s.cIndex(l, j, a)] = vc[sp].At(s.index[[2]int{j, L}], a)
					}
				}
				vb, err := solveVec(s.chol[l], x)
				if err != nil {
					return nil, err
				}
				for b := 0; b < nsm; b++ {
					out := vdy.Radial(sp, L, b)
					for p := 0; p < s.NP; p++ {
						floats.AddScaled(out, vb[p*nsm+b], s.deltaK[l][p])
					}
					for j := j0; j < j1; j++ {
						for a := 0; a < nsm; a++ {
							floats.AddScaled(out, vb[s.cIndex(l, j, a)], s.phiK[j][a][b])
						}
					}
					floats.Mul(out, s.kgrid.DVK)
				}
			}
			for q := nsm; q < s.NQ; q++ {
				vb, err := solveVec(s.cholDelta[l], vdf.Radial(sp, L, q))
				if err != nil {
					return nil, err
				}
				out := vdy.Radial(sp, L, q)
				for p := 0; p < s.NP; p++ {
					floats.AddScaled(out, vb[p], s.deltaK[l][p])
				}
				floats.Mul(out, s.kgrid.DVK)
			}
		}
	}
	return vdy, nil
}

// PhiReal evaluates sum_ja c_ja phi_jab on the radial grid for the first
// NSm channels b.
func (s *SmoothSetup) PhiReal(c Coeffs) (*field.Field, error) {
	ns := len(c)
	if err := c.check(ns, s.Shells.NI(), s.NSm); err != nil {
		return nil, fmt.Errorf("%w: %v", field.ErrShape, err)
	}
	out := field.New(ns, s.NL, s.NSm, s.grid.N())
	s.eachProjector(func(i, L, a, b int, phi []float64) {
		for sp := 0; sp < ns; sp++ {
			floats.AddScaled(out.Radial(sp, L, b), c[sp].At(i, a), phi)
		}
	})
	return out, nil
}

// PhiRealT is the transpose of PhiReal. Channels of v beyond NSm are
// ignored.
func (s *SmoothSetup) PhiRealT(v *field.Field) (Coeffs, error) {
	if v == nil || v.NL != s.NL || v.NQ < s.NSm || v.NG != s.grid.N() {
		return nil, fmt.Errorf("%w: real-space adjoint for %d channels", field.ErrShape, s.NSm)
	}
	c := NewCoeffs(v.NS, s.Shells.NI(), s.NSm)
	s.eachProjector(func(i, L, a, b int, phi []float64) {
		for sp := 0; sp < v.NS; sp++ {
			c[sp].Set(i, a, c[sp].At(i, a)+floats.Dot(phi, v.Radial(sp, L, b)))
		}
	})
	return c, nil
}

func (s *SmoothSetup) eachProjector(fn func(i, L, a, b int, phi []float64)) {
	for j, l := range s.Shells.L {
		if l > s.LMax {
			continue
		}
		for a := 0; a < s.NSm; a++ {
			for b := 0; b < s.NSm; b++ {
				phi := s.phiReal(j, a, b)
				for m := 0; m < 2*l+1; m++ {
					L := l*l + m
					fn(s.index[[2]int{j, L}], L, a, b, phi)
				}
			}
		}
	}
}

// DeltaReal evaluates sum_p df_p delta_p on the radial grid.
func (s *SmoothSetup) DeltaReal(df *field.Field) (*field.Field, error) {
	if err := s.checkField(df, s.NP, "delta coefficients"); err != nil {
		return nil, err
	}
	out := field.New(df.NS, s.NL, s.NQ, s.grid.N())
	for sp := 0; sp < df.NS; sp++ {
		for L := 0; L < s.NL; L++ {
			l := transform.LOf(L)
			if l > s.LMax {
				continue
			}
			for q := 0; q < s.NQ; q++ {
				dst := out.Radial(sp, L, q)
				for p, v := range df.Radial(sp, L, q) {
					floats.AddScaled(dst, v, s.deltaR[l][p])
				}
			}
		}
	}
	return out, nil
}

// DeltaRealT is the transpose of DeltaReal.
func (s *SmoothSetup) DeltaRealT(v *field.Field) (*field.Field, error) {
	if err := s.checkField(v, s.grid.N(), "real-space adjoint"); err != nil {
		return nil, err
	}
	out := field.New(v.NS, s.NL, s.NQ, s.NP)
	for sp := 0; sp < v.NS; sp++ {
		for L := 0; L < s.NL; L++ {
			l := transform.LOf(L)
			if l > s.LMax {
				continue
			}
			for q := 0; q < s.NQ; q++ {
				src := v.Radial(sp, L, q)
				dst := out.Radial(sp, L, q)
				for p := range dst {
					dst[p] = floats.Dot(s.deltaR[l][p], src)
				}
			}
		}
	}
	return out, nil
}
