// run.go --  This file is part of goCIDER project.
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
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"example.com/gocider/conv"
	"example.com/gocider/feature"
	"example.com/gocider/paw"
	"example.com/gocider/projection"
)

// shell capacities in the order they are filled
var shellCap = [...]float64{2, 6, 10}

type job struct {
	inp   *Input
	cfg   paw.Config
	atoms []*paw.AtomData
	k     *paw.Kernel
	dens  map[int][][]float64
}

func resolveConfig(inp *Input, path string) (paw.Config, error) {
	if path == "" {
		path = inp.Config
	}
	cfg := paw.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = paw.LoadConfig(path); err != nil {
			return cfg, err
		}
		OutputLogger.Print("Parsing input. Config read from " + path + ".")
	}
	if inp.NProcs > 0 {
		cfg.Workers = inp.NProcs
	}
	if inp.Backend != "" {
		b, err := conv.ParseBackend(inp.Backend)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = b
	}
	return cfg, cfg.Validate()
}

func newJob(inp *Input, cfg paw.Config) (*job, error) {
	j := &job{inp: inp, cfg: cfg, dens: make(map[int][][]float64)}
	for i, a := range inp.Atoms {
		at, err := paw.HydrogenicAtom(a.Symbol, a.Z, a.Zeta)
		if err != nil {
			return nil, err
		}
		j.atoms = append(j.atoms, at)
		j.dens[i] = occupations(at, inp.NSpin)
	}
	k, err := paw.NewKernel(cfg, j.atoms, inp.NSpin, feature.NewReferenceKernel(inp.Meta), slog.Default())
	if err != nil {
		return nil, err
	}
	j.k = k
	return j, nil
}

// occupations builds a diagonal density matrix placing the valence
// electrons into the s, p and d partial waves in turn, spread evenly over
// m. For two spins the majority channel is filled first.
func occupations(at *paw.AtomData, nspin int) [][]float64 {
	valence := float64(at.Z)
	if at.AE.Core != nil {
		valence -= 2
	}
	d := make([][]float64, nspin)
	for s := range d {
		d[s] = make([]float64, at.NP())
	}
	ni := at.NI()
	i := 0
	for _, w := range at.AE.Waves {
		nm := 2*w.L + 1
		occ := math.Min(valence, shellCap[w.L])
		valence -= occ
		phi2 := make([]float64, len(w.Phi))
		for g, v := range w.Phi {
			phi2[g] = v * v
		}
		norm := at.Grid.Integrate(phi2) / (4 * math.Pi)
		for s := range d {
			so := occ
			if nspin == 2 {
				half := shellCap[w.L] / 2
				if s == 0 {
					so = math.Min(occ, half)
				} else {
					so = math.Max(0, occ-half)
				}
			}
			for m := 0; m < nm; m++ {
				d[s][feature.PackedIndex(ni, i+m, i+m)] = so / float64(nm) / norm
			}
		}
		i += nm
	}
	if valence > 0 {
		WarningLogger.Printf("%s: %g electrons do not fit the partial waves", at.Symbol, valence)
	}
	return d
}

type cycleResult struct {
	features map[int]paw.Features
	proj     map[int]projection.Coeffs
	energy   map[int]paw.EnergyResult
	dh       map[int][][]float64
}

// cycle runs the three stages. Nil proj means reference projections, nil vc
// means zero coefficient derivatives.
func (j *job) cycle(ctx context.Context, dens map[int][][]float64, proj, vc map[int]projection.Coeffs) (*cycleResult, error) {
	res := &cycleResult{}
	var err error
	if res.features, err = j.k.ComputeFeatures(ctx, dens); err != nil {
		return nil, err
	}
	if proj == nil {
		proj = make(map[int]projection.Coeffs, len(dens))
		for idx := range dens {
			if proj[idx], err = j.k.ReferenceProjections(idx); err != nil {
				return nil, err
			}
		}
	}
	res.proj = proj
	if res.energy, err = j.k.ComputeEnergy(ctx, dens, proj); err != nil {
		return nil, err
	}
	if vc == nil {
		vc = make(map[int]projection.Coeffs, len(dens))
		for idx, f := range res.features {
			vc[idx] = projection.NewCoeffs(f.C.Dims())
		}
	}
	if res.dh, err = j.k.ComputePotential(ctx, dens, vc); err != nil {
		return nil, err
	}
	return res, nil
}

// total is the energy of atom idx plus the part linear in its coefficients.
func (r *cycleResult) total(idx int, vc projection.Coeffs) float64 {
	e := r.energy[idx].Energy
	if vc != nil {
		e += vc.Dot(r.features[idx].C)
	}
	return e
}

func (r *cycleResult) gradient(idx int) [][]float64 {
	dh := r.dh[idx]
	g := make([][]float64, len(dh))
	for s := range dh {
		g[s] = make([]float64, len(dh[s]))
		floats.AddTo(g[s], r.energy[idx].DH[s], dh[s])
	}
	return g
}

func runJob(ctx context.Context, j *job) error {
	start := time.Now()
	res, err := j.cycle(ctx, j.dens, nil, nil)
	if err != nil {
		return err
	}
	printOutputDelimiter()
	OutputLogger.Printf("%-6s %4s %10s %4s %4s %20s", "Atom", "Z", "zeta", "NQ", "NSm", "E_xc correction")
	total := 0.0
	for idx, at := range j.atoms {
		rd, err := j.k.Runtime(idx)
		if err != nil {
			return err
		}
		e := res.energy[idx].Energy
		total += e
		OutputLogger.Printf("%-6s %4d %10.4f %4d %4d %20.12f", at.Symbol, at.Z, j.inp.Atoms[idx].Zeta, rd.NQ(), rd.NSm, e)
	}
	printOutputDelimiter()
	OutputLogger.Printf("Total correction: %20.12f", total)
	for idx, at := range j.atoms {
		grad := res.gradient(idx)
		for s := range grad {
			OutputLogger.Printf("dE/dD for atom %d (%s), spin %d:", idx, at.Symbol, s)
			PrintDense(unpack(at.NI(), grad[s]))
		}
	}
	printOutputDelimiter()
	OutputLogger.Printf("Done in %v.", time.Since(start))
	return nil
}

// checkJob compares the stage gradients with central differences of the
// total energy along ntrial random directions per atom.
func checkJob(ctx context.Context, j *job, ntrial int, h float64, seed uint64) ([]float64, error) {
	rng := rand.New(rand.NewPCG(seed, 0x63696465))
	base, err := j.cycle(ctx, j.dens, nil, nil)
	if err != nil {
		return nil, err
	}
	// projections stay fixed at their reference values
	proj := base.proj
	vc := make(map[int]projection.Coeffs, len(j.dens))
	for idx := range j.dens {
		vc[idx] = randomCoeffs(rng, base.features[idx].C, 0.01)
	}
	ref, err := j.cycle(ctx, j.dens, proj, vc)
	if err != nil {
		return nil, err
	}
	var rel []float64
	for idx := range j.atoms {
		grad := ref.gradient(idx)
		for trial := 0; trial < ntrial; trial++ {
			v := make([][]float64, len(grad))
			for s := range v {
				v[s] = make([]float64, len(grad[s]))
				for p := range v[s] {
					v[s][p] = rng.NormFloat64()
				}
			}
			an := 0.0
			for s := range v {
				an += floats.Dot(grad[s], v[s])
			}
			ep, err := j.shiftedTotal(ctx, idx, v, h, proj, vc)
			if err != nil {
				return nil, err
			}
			em, err := j.shiftedTotal(ctx, idx, v, -h, proj, vc)
			if err != nil {
				return nil, err
			}
			fd := (ep - em) / (2 * h)
			r := math.Abs(fd-an) / math.Max(math.Abs(fd), 1e-8)
			InfoLogger.Printf("check atom %d trial %d: fd=%.10e analytic=%.10e rel=%.3e", idx, trial, fd, an, r)
			rel = append(rel, r)
		}
	}
	if len(rel) == 0 {
		return nil, nil
	}
	mean, std := stat.MeanStdDev(rel, nil)
	printOutputDelimiter()
	OutputLogger.Printf("Gradient check over %d directions: mean rel. error %.3e, std %.3e, max %.3e",
		len(rel), mean, std, floats.Max(rel))
	return rel, nil
}

func (j *job) shiftedTotal(ctx context.Context, idx int, v [][]float64, h float64, proj, vc map[int]projection.Coeffs) (float64, error) {
	d := j.dens[idx]
	sd := make([][]float64, len(d))
	for s := range d {
		sd[s] = make([]float64, len(d[s]))
		floats.AddScaledTo(sd[s], d[s], h, v[s])
	}
	dens := map[int][][]float64{idx: sd}
	res, err := j.cycle(ctx, dens, map[int]projection.Coeffs{idx: proj[idx]}, map[int]projection.Coeffs{idx: vc[idx]})
	if err != nil {
		return 0, err
	}
	return res.total(idx, vc[idx]), nil
}

func randomCoeffs(rng *rand.Rand, like projection.Coeffs, scale float64) projection.Coeffs {
	out := projection.NewCoeffs(like.Dims())
	for _, m := range out {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for q := 0; q < c; q++ {
				m.Set(i, q, scale*rng.NormFloat64())
			}
		}
	}
	return out
}

func describe(j *job) string {
	return fmt.Sprintf("%d atoms, nspin=%d, backend=%s, nalpha=%d, workers=%d",
		len(j.atoms), j.inp.NSpin, j.cfg.Backend, j.cfg.NAlpha, j.cfg.Workers)
}
