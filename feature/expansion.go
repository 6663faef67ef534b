// expansion.go --  This file is part of goCIDER project.
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
package feature

import (
	"errors"
	"fmt"
	"math"

	"example.com/gocider/radial"
)

var ErrBranch = errors.New("feature: inconsistent branch")

// Wave is one radial partial wave with its radial derivative.
type Wave struct {
	L    int
	Phi  []float64
	DPhi []float64
}

// Branch is the set of radial functions the density of one branch (all
// electron or pseudo) is built from. Core terms may be nil.
type Branch struct {
	Waves   []Wave
	Core    []float64
	DCore   []float64
	TauCore []float64
}

type gauntTerm struct {
	L int
	c float64
}

// Expansion maps packed density matrices D_p, p = (i1 <= i2), to the
// angular components of the density on the radial grid, and contracts
// derivatives back. Off-diagonal entries enter with weight 2.
type Expansion struct {
	NI, NP int
	NLD    int // density channels
	LI, JI []int
	P1, P2 []int // i1, i2 of pair p
	FP     []float64

	br    Branch
	grid  *radial.Grid
	qp    []int          // radial pair of p
	n, dn [][]float64    // [q][g]
	terms [][]gauntTerm  // [p]
	nspin int
}

// PackedIndex returns p for i1 <= i2 among ni functions.
func PackedIndex(ni, i1, i2 int) int {
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	return i1*ni - i1*(i1-1)/2 + i2 - i1
}

func NewExpansion(g *radial.Grid, gt *radial.Gaunt, br Branch, nspin int) (*Expansion, error) {
	ng := g.N()
	lmax := 0
	for j, w := range br.Waves {
		if len(w.Phi) != ng || len(w.DPhi) != ng {
			return nil, fmt.Errorf("%w: wave %d has %d/%d points, grid %d", ErrBranch, j, len(w.Phi), len(w.DPhi), ng)
		}
		lmax = max(lmax, w.L)
	}
	for _, c := range [][]float64{br.Core, br.DCore, br.TauCore} {
		if c != nil && len(c) != ng {
			return nil, fmt.Errorf("%w: core array of %d points, grid %d", ErrBranch, len(c), ng)
		}
	}
	nld := (2*lmax + 1) * (2*lmax + 1)
	if (lmax+1)*(lmax+1) > gt.N12 || nld > gt.N3 {
		return nil, fmt.Errorf("%w: gaunt table too small for l=%d", ErrBranch, lmax)
	}
	e := &Expansion{NLD: nld, br: br, grid: g, nspin: nspin}
	for j, w := range br.Waves {
		for m := 0; m < 2*w.L+1; m++ {
			e.LI = append(e.LI, w.L*w.L+m)
			e.JI = append(e.JI, j)
		}
	}
	e.NI = len(e.LI)
	e.NP = e.NI * (e.NI + 1) / 2

	nj := len(br.Waves)
	qidx := make([][]int, nj)
	for j1 := range qidx {
		qidx[j1] = make([]int, nj)
		for j2 := j1; j2 < nj; j2++ {
			w1, w2 := br.Waves[j1], br.Waves[j2]
			nq := make([]float64, ng)
			dq := make([]float64, ng)
			for i := range nq {
				nq[i] = w1.Phi[i] * w2.Phi[i]
				dq[i] = w1.DPhi[i]*w2.Phi[i] + w1.Phi[i]*w2.DPhi[i]
			}
			qidx[j1][j2] = len(e.n)
			e.n = append(e.n, nq)
			e.dn = append(e.dn, dq)
		}
	}
	for i1 := 0; i1 < e.NI; i1++ {
		for i2 := i1; i2 < e.NI; i2++ {
			j1, j2 := e.JI[i1], e.JI[i2]
			if j1 > j2 {
				j1, j2 = j2, j1
			}
			f := 2.0
			if i1 == i2 {
				f = 1
			}
			var ts []gauntTerm
			for L := 0; L < nld; L++ {
				if c := gt.At(e.LI[i1], e.LI[i2], L); c != 0 {
					ts = append(ts, gauntTerm{L: L, c: f * c})
				}
			}
			e.P1 = append(e.P1, i1)
			e.P2 = append(e.P2, i2)
			e.FP = append(e.FP, f)
			e.qp = append(e.qp, qidx[j1][j2])
			e.terms = append(e.terms, ts)
		}
	}
	return e, nil
}

// Density returns n_L(g) and dn_L/dr(g) for the packed matrix d, with the
// core density shared evenly among the spins.
func (e *Expansion) Density(d []float64) ([][]float64, [][]float64, error) {
	if len(d) != e.NP {
		return nil, nil, fmt.Errorf("%w: density matrix of %d entries, want %d", ErrBranch, len(d), e.NP)
	}
	ng := e.grid.N()
	nL := alloc2(e.NLD, ng)
	dL := alloc2(e.NLD, ng)
	for p, dp := range d {
		if dp == 0 {
			continue
		}
		nq, dq := e.n[e.qp[p]], e.dn[e.qp[p]]
		for _, t := range e.terms[p] {
			c := dp * t.c
			for g := range nq {
				nL[t.L][g] += c * nq[g]
				dL[t.L][g] += c * dq[g]
			}
		}
	}
	y00 := math.Sqrt(4*math.Pi) / float64(e.nspin)
	for g := 0; g < ng; g++ {
		if e.br.Core != nil {
			nL[0][g] += y00 * e.br.Core[g]
		}
		if e.br.DCore != nil {
			dL[0][g] += y00 * e.br.DCore[g]
		}
	}
	return nL, dL, nil
}

// ContractDensity returns dE/dD_p = sum_L B_pL sum_g (n_q vn_L + dn_q vdn_L)
// given vn_L = dE/dn_L and vdn_L = dE/d(dn_L/dr).
func (e *Expansion) ContractDensity(vn, vdn [][]float64) []float64 {
	out := make([]float64, e.NP)
	for p := range out {
		nq, dq := e.n[e.qp[p]], e.dn[e.qp[p]]
		s := 0.0
		for _, t := range e.terms[p] {
			a, b := vn[t.L], vdn[t.L]
			r := 0.0
			for g := range nq {
				r += nq[g]*a[g] + dq[g]*b[g]
			}
			s += t.c * r
		}
		out[p] = s
	}
	return out
}

// tauVectors fills, for grid point g and angular point n, u_i = phi'_j Y_L
// and v_i = phi_j rnablaY_L / r.
func (e *Expansion) tauVectors(ang *radial.Angular, g, n int, u []float64, v [][3]float64) {
	r := e.grid.R[g]
	for i, L := range e.LI {
		w := e.br.Waves[e.JI[i]]
		u[i] = w.DPhi[g] * ang.Y[n][L]
		ry := ang.RnablaY[n][L]
		for c := 0; c < 3; c++ {
			v[i][c] = w.Phi[g] * ry[c] / r
		}
	}
}

// tauCore returns the core kinetic density share of one spin at g.
func (e *Expansion) tauCore(g int) float64 {
	if e.br.TauCore == nil {
		return 0
	}
	return e.br.TauCore[g] / float64(e.nspin)
}

// tauAt returns 1/2 sum_p f_p D_p (u_i1 u_i2 + v_i1.v_i2).
func (e *Expansion) tauAt(d []float64, u []float64, v [][3]float64) float64 {
	t := 0.0
	for p, dp := range d {
		if dp == 0 {
			continue
		}
		i1, i2 := e.P1[p], e.P2[p]
		t += e.FP[p] * dp * (u[i1]*u[i2] + v[i1][0]*v[i2][0] + v[i1][1]*v[i2][1] + v[i1][2]*v[i2][2])
	}
	return 0.5 * t
}

// addTauDeriv adds c dtau/dD_p to out.
func (e *Expansion) addTauDeriv(c float64, u []float64, v [][3]float64, out []float64) {
	for p := range out {
		i1, i2 := e.P1[p], e.P2[p]
		out[p] += 0.5 * c * e.FP[p] * (u[i1]*u[i2] + v[i1][0]*v[i2][0] + v[i1][1]*v[i2][1] + v[i1][2]*v[i2][2])
	}
}

func alloc2(n, m int) [][]float64 {
	out := make([][]float64, n)
	buf := make([]float64, n*m)
	for i := range out {
		out[i] = buf[i*m : (i+1)*m : (i+1)*m]
	}
	return out
}
