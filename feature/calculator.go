// calculator.go --  This file is part of goCIDER project.
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

// Package feature evaluates the atom-centered densities, the theta
// functions entering the feature convolutions, and the energy and
// potential of an XC kernel that consumes the convolved features.
package feature

import (
	"fmt"
	"log/slog"

	"example.com/gocider/field"
	"example.com/gocider/radial"
)

// Mode is the kind of work a Calculator call does.
type Mode int

const (
	ModeFeature Mode = iota
	ModeEnergy
	ModePotential
)

func (m Mode) String() string {
	switch m {
	case ModeFeature:
		return "feature"
	case ModeEnergy:
		return "energy"
	case ModePotential:
		return "potential"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Calculator evaluates theta functions, energies and potentials of one
// atom on the product grid of the radial grid and the angular quadrature.
type Calculator struct {
	Grid   *radial.Grid
	Ang    *radial.Angular
	Plan   *Plan
	Kernel XCKernel
	AE, PS *Expansion
	NSpin  int
	NL     int
	NQ     int

	log *slog.Logger
}

// CalculatorParams configures NewCalculator. Logger may be nil.
type CalculatorParams struct {
	Grid        *radial.Grid
	Ang         *radial.Angular
	Plan        *Plan
	Kernel      XCKernel
	AE, PS      Branch
	NSpin       int
	FeatureLMax int
	Logger      *slog.Logger
}

func NewCalculator(p CalculatorParams) (*Calculator, error) {
	if p.NSpin != 1 && p.NSpin != 2 {
		return nil, fmt.Errorf("feature: nspin=%d", p.NSpin)
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	lw := 0
	for _, w := range append(append([]Wave(nil), p.AE.Waves...), p.PS.Waves...) {
		lw = max(lw, w.L)
	}
	gt, err := radial.NewGaunt(p.Ang, lw, 2*lw)
	if err != nil {
		return nil, err
	}
	ae, err := NewExpansion(p.Grid, gt, p.AE, p.NSpin)
	if err != nil {
		return nil, fmt.Errorf("all-electron branch: %w", err)
	}
	ps, err := NewExpansion(p.Grid, gt, p.PS, p.NSpin)
	if err != nil {
		return nil, fmt.Errorf("pseudo branch: %w", err)
	}
	if ae.NI != ps.NI {
		return nil, fmt.Errorf("%w: %d all-electron and %d pseudo projectors", ErrBranch, ae.NI, ps.NI)
	}
	nl := (p.FeatureLMax + 1) * (p.FeatureLMax + 1)
	if nl > p.Ang.NL() || ae.NLD > p.Ang.NL() {
		return nil, fmt.Errorf("feature: angular quadrature lmax %d below feature lmax %d", p.Ang.LMax, p.FeatureLMax)
	}
	return &Calculator{
		Grid:   p.Grid,
		Ang:    p.Ang,
		Plan:   p.Plan,
		Kernel: p.Kernel,
		AE:     ae,
		PS:     ps,
		NSpin:  p.NSpin,
		NL:     nl,
		NQ:     p.Plan.NQ,
		log:    log,
	}, nil
}

func (c *Calculator) branch(ae bool) *Expansion {
	if ae {
		return c.AE
	}
	return c.PS
}

// NP is the packed density matrix length.
func (c *Calculator) NP() int { return c.AE.NP }

// radialVars holds the density, gradient and kinetic density of each spin
// at every (g, n), with n fastest.
type radialVars struct {
	n    [][]float64
	grad [][][3]float64
	tau  [][]float64
}

func (c *Calculator) checkD(d [][]float64) error {
	if len(d) != c.NSpin {
		return fmt.Errorf("%w: %d density matrix spins, want %d", field.ErrShape, len(d), c.NSpin)
	}
	for s := range d {
		if len(d[s]) != c.NP() {
			return fmt.Errorf("%w: density matrix of %d entries, want %d", field.ErrShape, len(d[s]), c.NP())
		}
	}
	return nil
}

func (c *Calculator) radialVars(d [][]float64, ae bool) (*radialVars, error) {
	if err := c.checkD(d); err != nil {
		return nil, err
	}
	ex := c.branch(ae)
	ng, na := c.Grid.N(), c.Ang.N()
	rv := &radialVars{}
	u := make([]float64, ex.NI)
	v := make([][3]float64, ex.NI)
	for s := 0; s < c.NSpin; s++ {
		nL, dL, err := ex.Density(d[s])
		if err != nil {
			return nil, err
		}
		ns := make([]float64, ng*na)
		gs := make([][3]float64, ng*na)
		var ts []float64
		if c.Kernel.MGGA() {
			ts = make([]float64, ng*na)
		}
		for g := 0; g < ng; g++ {
			r := c.Grid.R[g]
			for n := 0; n < na; n++ {
				y, ry, rhat := c.Ang.Y[n], c.Ang.RnablaY[n], c.Ang.R[n]
				val, dr := 0.0, 0.0
				var tg [3]float64
				for L := 0; L < ex.NLD; L++ {
					val += y[L] * nL[L][g]
					dr += y[L] * dL[L][g]
					for k := 0; k < 3; k++ {
						tg[k] += ry[L][k] * nL[L][g] / r
					}
				}
				gn := g*na + n
				ns[gn] = val
				for k := 0; k < 3; k++ {
					gs[gn][k] = rhat[k]*dr + tg[k]
				}
				if ts != nil {
					ex.tauVectors(c.Ang, g, n, u, v)
					ts[gn] = ex.tauAt(d[s], u, v) + ex.tauCore(g)
				}
			}
		}
		rv.n = append(rv.n, ns)
		rv.grad = append(rv.grad, gs)
		rv.tau = append(rv.tau, ts)
	}
	return rv, nil
}

func dot3(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// contract maps point derivatives vn = de/dn, vgrad = de/d(grad n) and
// vtau = de/dtau (nil without kinetic terms) to dE/dD_p.
func (c *Calculator) contract(d [][]float64, ae bool, vn [][]float64, vgrad [][][3]float64, vtau [][]float64) [][]float64 {
	ex := c.branch(ae)
	ng, na := c.Grid.N(), c.Ang.N()
	out := make([][]float64, c.NSpin)
	u := make([]float64, ex.NI)
	v := make([][3]float64, ex.NI)
	for s := 0; s < c.NSpin; s++ {
		vnL := alloc2(ex.NLD, ng)
		vdL := alloc2(ex.NLD, ng)
		var tauD []float64
		if vtau != nil && vtau[s] != nil {
			tauD = make([]float64, ex.NP)
		}
		for g := 0; g < ng; g++ {
			r := c.Grid.R[g]
			for n := 0; n < na; n++ {
				gn := g*na + n
				w := c.Grid.DV[g] * c.Ang.W[n]
				vg := vgrad[s][gn]
				radialPart := w * dot3(c.Ang.R[n], vg)
				for L := 0; L < ex.NLD; L++ {
					y := c.Ang.Y[n][L]
					vnL[L][g] += w * (y*vn[s][gn] + dot3(c.Ang.RnablaY[n][L], vg)/r)
					vdL[L][g] += y * radialPart
				}
				if tauD != nil && vtau[s][gn] != 0 {
					ex.tauVectors(c.Ang, g, n, u, v)
					ex.addTauDeriv(w*vtau[s][gn], u, v, tauD)
				}
			}
		}
		out[s] = ex.ContractDensity(vnL, vdL)
		for p, t := range tauD {
			out[s][p] += t
		}
	}
	return out
}

func (c *Calculator) sigma(rv *radialVars, gn int) [3]float64 {
	var sg [3]float64
	sg[0] = dot3(rv.grad[0][gn], rv.grad[0][gn])
	if c.NSpin == 2 {
		sg[1] = dot3(rv.grad[0][gn], rv.grad[1][gn])
		sg[2] = dot3(rv.grad[1][gn], rv.grad[1][gn])
	}
	return sg
}

// Theta returns the dual theta field x_sLq(g) = sum_n w_gn Y_nL n_s p_q.
func (c *Calculator) Theta(d [][]float64, ae bool) (*field.Field, error) {
	rv, err := c.radialVars(d, ae)
	if err != nil {
		return nil, err
	}
	ng, na := c.Grid.N(), c.Ang.N()
	x := field.New(c.NSpin, c.NL, c.NQ, ng)
	pt := c.Plan.NewPoint()
	for g := 0; g < ng; g++ {
		for n := 0; n < na; n++ {
			gn := g*na + n
			sg := c.sigma(rv, gn)
			for s := 0; s < c.NSpin; s++ {
				ns := rv.n[s][gn]
				// plan weights vanish below the cutoff
				if ns < DensityCutoff {
					continue
				}
				c.Plan.Eval(ns, sg[2*s], pt)
				a := c.Grid.DV[g] * c.Ang.W[n] * ns
				for q, p := range pt.P {
					t := a * p
					for L := 0; L < c.NL; L++ {
						x.AddAt(s, L, q, g, t*c.Ang.Y[n][L])
					}
				}
			}
		}
	}
	return x, nil
}

// Energy evaluates the kernel with the feature field f and returns the
// energy, dE/dD and the dual derivative with respect to f.
func (c *Calculator) Energy(d [][]float64, f *field.Field, ae bool) (float64, [][]float64, *field.Field, error) {
	if f == nil || f.Shape() != [4]int{c.NSpin, c.NL, c.NQ, c.Grid.N()} {
		return 0, nil, nil, fmt.Errorf("%w: feature field %v", field.ErrShape, shapeOf(f))
	}
	rv, err := c.radialVars(d, ae)
	if err != nil {
		return 0, nil, nil, err
	}
	ng, na := c.Grid.N(), c.Ang.N()
	vf := field.New(c.NSpin, c.NL, c.NQ, ng)
	vn := alloc2(c.NSpin, ng*na)
	vgrad := make([][][3]float64, c.NSpin)
	var vtau [][]float64
	for s := range vgrad {
		vgrad[s] = make([][3]float64, ng*na)
	}
	meta := c.Kernel.MGGA()
	if meta {
		vtau = alloc2(c.NSpin, ng*na)
	}
	pts := []*PlanPoint{c.Plan.NewPoint(), c.Plan.NewPoint()}
	fq := alloc2(c.NSpin, c.NQ)
	var in Point
	var dv Deriv
	energy := 0.0
	for g := 0; g < ng; g++ {
		for n := 0; n < na; n++ {
			gn := g*na + n
			w := c.Grid.DV[g] * c.Ang.W[n]
			y := c.Ang.Y[n]
			in = Point{NSpin: c.NSpin, Sigma: c.sigma(rv, gn)}
			dfdu := [2]float64{}
			for s := 0; s < c.NSpin; s++ {
				in.N[s] = rv.n[s][gn]
				if meta {
					in.Tau[s] = rv.tau[s][gn]
				}
				pt := pts[s]
				c.Plan.Eval(in.N[s], in.Sigma[2*s], pt)
				feat := 0.0
				for q := 0; q < c.NQ; q++ {
					v := 0.0
					for L := 0; L < c.NL; L++ {
						v += y[L] * f.At(s, L, q, g)
					}
					fq[s][q] = v
					feat += pt.P[q] * v
					dfdu[s] += pt.DPDU[q] * v
				}
				in.Feat[s] = feat
			}
			energy += w * c.Kernel.Eval(&in, &dv)
			for s := 0; s < c.NSpin; s++ {
				pt := pts[s]
				vfeat := dv.Feat[s]
				if vfeat != 0 {
					for q, p := range pt.P {
						t := w * p * vfeat
						for L := 0; L < c.NL; L++ {
							vf.AddAt(s, L, q, g, t*y[L])
						}
					}
				}
				vn[s][gn] = dv.N[s] + vfeat*dfdu[s]*pt.DUDN
				vsig := dv.Sigma[2*s] + vfeat*dfdu[s]*pt.DUDS
				gs := rv.grad[s][gn]
				for k := 0; k < 3; k++ {
					vgrad[s][gn][k] = 2 * vsig * gs[k]
				}
				if c.NSpin == 2 {
					o := rv.grad[1-s][gn]
					for k := 0; k < 3; k++ {
						vgrad[s][gn][k] += dv.Sigma[1] * o[k]
					}
				}
				if meta {
					vtau[s][gn] = dv.Tau[s]
				}
			}
		}
	}
	dEdD := c.contract(d, ae, vn, vgrad, vtau)
	c.log.Debug("feature energy", "mode", ModeEnergy, "ae", ae, "energy", energy)
	return energy, dEdD, vf, nil
}

// Potential returns dE/dD for the dual derivative vx with respect to the
// theta field of the branch.
func (c *Calculator) Potential(d [][]float64, vx *field.Field, ae bool) ([][]float64, error) {
	if vx == nil || vx.Shape() != [4]int{c.NSpin, c.NL, c.NQ, c.Grid.N()} {
		return nil, fmt.Errorf("%w: theta adjoint %v", field.ErrShape, shapeOf(vx))
	}
	rv, err := c.radialVars(d, ae)
	if err != nil {
		return nil, err
	}
	ng, na := c.Grid.N(), c.Ang.N()
	vn := alloc2(c.NSpin, ng*na)
	vgrad := make([][][3]float64, c.NSpin)
	for s := range vgrad {
		vgrad[s] = make([][3]float64, ng*na)
	}
	pt := c.Plan.NewPoint()
	for g := 0; g < ng; g++ {
		for n := 0; n < na; n++ {
			gn := g*na + n
			sg := c.sigma(rv, gn)
			y := c.Ang.Y[n]
			for s := 0; s < c.NSpin; s++ {
				ns := rv.n[s][gn]
				// Plan.Eval zeroes P and its derivatives here, so vn and
				// vgrad would be zero anyway.
				if ns < DensityCutoff {
					continue
				}
				c.Plan.Eval(ns, sg[2*s], pt)
				vden, vsig := 0.0, 0.0
				for q := 0; q < c.NQ; q++ {
					v := 0.0
					for L := 0; L < c.NL; L++ {
						v += y[L] * vx.At(s, L, q, g)
					}
					vden += v * (pt.P[q] + ns*pt.DPDU[q]*pt.DUDN)
					vsig += v * ns * pt.DPDU[q] * pt.DUDS
				}
				vn[s][gn] = vden
				gs := rv.grad[s][gn]
				for k := 0; k < 3; k++ {
					vgrad[s][gn][k] = 2 * vsig * gs[k]
				}
			}
		}
	}
	return c.contract(d, ae, vn, vgrad, nil), nil
}

func shapeOf(f *field.Field) any {
	if f == nil {
		return "nil"
	}
	return f.Shape()
}
