// atom.go --  This file is part of goCIDER project.
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
package paw

import (
	"fmt"
	"math"

	"example.com/gocider/feature"
	"example.com/gocider/radial"
)

// AtomData is what the kernel needs to know about one species: the
// all-electron radial grid, partial waves of both branches, core densities
// and the augmentation radius.
type AtomData struct {
	Symbol   string
	Z        int
	Grid     *radial.Grid
	AE, PS   feature.Branch
	RCutFeat float64
}

// NI is the number of projector functions (l, m) of the partial waves.
func (a *AtomData) NI() int {
	n := 0
	for _, w := range a.AE.Waves {
		n += 2*w.L + 1
	}
	return n
}

// NP is the length of a packed density matrix of one spin.
func (a *AtomData) NP() int {
	ni := a.NI()
	return ni * (ni + 1) / 2
}

// key identifies the species in the setup cache.
func (a *AtomData) key() string {
	return fmt.Sprintf("%s/%d/%d/%g", a.Symbol, a.Z, a.Grid.N(), a.RCutFeat)
}

// HydrogenicAtom builds a synthetic species with Slater partial waves
// r^l exp(-zeta r) for l = 0..2 (s and p only for Z <= 2). Pseudo waves
// replace the radial factor inside rc = 0.9/zeta by a + b r^2 matching value
// and slope. Atoms with Z > 2 carry a 1s^2 core of exponent Z, pseudized
// the same way.
func HydrogenicAtom(symbol string, Z int, zeta float64) (*AtomData, error) {
	if Z < 1 || zeta <= 0 {
		return nil, fmt.Errorf("paw: hydrogenic atom with Z=%d zeta=%g", Z, zeta)
	}
	rc := 0.9 / zeta
	g, err := radial.NewGridTo(0.3, 200, 4*rc)
	if err != nil {
		return nil, err
	}
	at := &AtomData{Symbol: symbol, Z: Z, Grid: g, RCutFeat: rc}
	lmax := 2
	if Z <= 2 {
		lmax = 1
	}
	for l := 0; l <= lmax; l++ {
		ae, ps := slaterWave(g, l, zeta, rc)
		at.AE.Waves = append(at.AE.Waves, ae)
		at.PS.Waves = append(at.PS.Waves, ps)
	}
	if Z > 2 {
		zc := float64(Z)
		pref := 2 * zc * zc * zc / math.Pi
		at.AE.Core = make([]float64, g.N())
		at.AE.DCore = make([]float64, g.N())
		at.AE.TauCore = make([]float64, g.N())
		for i, r := range g.R {
			nc := pref * math.Exp(-2*zc*r)
			at.AE.Core[i] = nc
			at.AE.DCore[i] = -2 * zc * nc
			at.AE.TauCore[i] = 0.5 * zc * zc * nc
		}
		at.PS.Core, at.PS.DCore = pseudize(g, rc, at.AE.Core, at.AE.DCore)
	}
	return at, nil
}

func slaterWave(g *radial.Grid, l int, zeta, rc float64) (feature.Wave, feature.Wave) {
	ae := feature.Wave{L: l, Phi: make([]float64, g.N()), DPhi: make([]float64, g.N())}
	rad := make([]float64, g.N())
	drad := make([]float64, g.N())
	for i, r := range g.R {
		rad[i] = math.Exp(-zeta * r)
		drad[i] = -zeta * rad[i]
	}
	prad, pdrad := pseudize(g, rc, rad, drad)
	ps := feature.Wave{L: l, Phi: make([]float64, g.N()), DPhi: make([]float64, g.N())}
	fl := float64(l)
	for i, r := range g.R {
		rl := math.Pow(r, fl)
		ae.Phi[i] = rl * rad[i]
		ae.DPhi[i] = fl/r*ae.Phi[i] + rl*drad[i]
		ps.Phi[i] = rl * prad[i]
		ps.DPhi[i] = fl/r*ps.Phi[i] + rl*pdrad[i]
	}
	return ae, ps
}

// pseudize replaces f inside rc by a + b r^2 with the value and slope of f
// at rc, using the exact derivative df.
func pseudize(g *radial.Grid, rc float64, f, df []float64) ([]float64, []float64) {
	ic := 0
	for ic < g.N()-1 && g.R[ic] < rc {
		ic++
	}
	r0 := g.R[ic]
	b := df[ic] / (2 * r0)
	a := f[ic] - b*r0*r0
	pf := append([]float64(nil), f...)
	pdf := append([]float64(nil), df...)
	for i := 0; i < ic; i++ {
		r := g.R[i]
		pf[i] = a + b*r*r
		pdf[i] = 2 * b * r
	}
	return pf, pdf
}
