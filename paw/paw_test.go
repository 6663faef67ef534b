// paw_test.go --  This file is part of goCIDER project.
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
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"example.com/gocider/conv"
	"example.com/gocider/feature"
	"example.com/gocider/projection"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NAlpha = 6
	cfg.FeatureLMax = 2
	cfg.Workers = 2
	cfg.SBT = SBTConfig{Encut: 2e4, NPoints: 320, D: 0.04}
	return cfg
}

func testKernel(t *testing.T, cfg Config, nspin int, atoms ...*AtomData) *Kernel {
	t.Helper()
	if len(atoms) == 0 {
		h, err := HydrogenicAtom("H", 1, 1.0)
		require.NoError(t, err)
		atoms = []*AtomData{h}
	}
	k, err := NewKernel(cfg, atoms, nspin, feature.NewReferenceKernel(true), nil)
	require.NoError(t, err)
	return k
}

func testDensity(at *AtomData, nspin int, rng *rand.Rand) [][]float64 {
	ni := at.NI()
	d := make([][]float64, nspin)
	for s := range d {
		d[s] = make([]float64, at.NP())
		for i1 := 0; i1 < ni; i1++ {
			for i2 := i1; i2 < ni; i2++ {
				p := feature.PackedIndex(ni, i1, i2)
				if i1 == i2 {
					d[s][p] = 0.5 + 0.2*rng.Float64()
				} else {
					d[s][p] = 0.05 * (rng.Float64() - 0.5)
				}
			}
		}
	}
	return d
}

func randCoeffs(rng *rand.Rand, ns, ni, nq int) projection.Coeffs {
	c := projection.NewCoeffs(ns, ni, nq)
	for _, m := range c {
		for i := 0; i < ni; i++ {
			for q := 0; q < nq; q++ {
				m.Set(i, q, rng.NormFloat64())
			}
		}
	}
	return c
}

func scaledDense(m *mat.Dense, f float64) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

type cycle struct {
	features map[int]Features
	proj     projection.Coeffs
	energy   map[int]EnergyResult
	dh       map[int][][]float64
}

// runCycle runs the three stages on atom 0 with fixed projections and
// coefficient derivatives.
func runCycle(t *testing.T, k *Kernel, d [][]float64, proj, vc projection.Coeffs) cycle {
	t.Helper()
	ctx := context.Background()
	dens := map[int][][]float64{0: d}
	f, err := k.ComputeFeatures(ctx, dens)
	require.NoError(t, err)
	if proj == nil {
		proj, err = k.ReferenceProjections(0)
		require.NoError(t, err)
	}
	e, err := k.ComputeEnergy(ctx, dens, map[int]projection.Coeffs{0: proj})
	require.NoError(t, err)
	dh, err := k.ComputePotential(ctx, dens, map[int]projection.Coeffs{0: vc})
	require.NoError(t, err)
	return cycle{f, proj, e, dh}
}

// total is the energy whose gradient the stages return: the atomic
// correction plus a smooth part linear in the projector coefficients.
func (c cycle) total(vc projection.Coeffs) float64 {
	return c.energy[0].Energy + vc.Dot(c.features[0].C)
}

func (c cycle) gradient() [][]float64 {
	g := make([][]float64, len(c.dh[0]))
	for s := range g {
		g[s] = make([]float64, len(c.dh[0][s]))
		for p := range g[s] {
			g[s][p] = c.energy[0].DH[s][p] + c.dh[0][s][p]
		}
	}
	return g
}

func shifted(d, v [][]float64, h float64) [][]float64 {
	out := make([][]float64, len(d))
	for s := range d {
		out[s] = make([]float64, len(d[s]))
		for p := range d[s] {
			out[s][p] = d[s][p] + h*v[s][p]
		}
	}
	return out
}

// TestEnergyPotentialConsistency compares the returned gradients with
// central differences. Projections are taken near their reference values,
// where the expanded field stays close to the convolved one.
func TestEnergyPotentialConsistency(t *testing.T) {
	const h = 1e-6
	for _, tc := range []struct {
		name    string
		backend conv.Backend
		nspin   int
	}{
		{"reciprocal/unpolarized", conv.ReciprocalBackend, 1},
		{"reciprocal/polarized", conv.ReciprocalBackend, 2},
		{"orbital/unpolarized", conv.OrbitalBackend, 1},
		{"orbital/polarized", conv.OrbitalBackend, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Backend = tc.backend
			k := testKernel(t, cfg, tc.nspin)
			at := k.atoms[0]
			rd, err := k.Runtime(0)
			require.NoError(t, err)

			rng := rand.New(rand.NewPCG(51, uint64(tc.nspin)))
			d := testDensity(at, tc.nspin, rng)
			vc := randCoeffs(rng, tc.nspin, rd.Smooth.Shells.NI(), rd.NSm)
			for _, m := range vc {
				m.Scale(0.01, m)
			}
			proj := runCycle(t, k, d, nil, vc).proj.Clone()
			for s, m := range randCoeffs(rng, tc.nspin, rd.Aug.Shells.NI(), rd.NQ()) {
				proj[s].Add(proj[s], scaledDense(m, 1e-3))
			}

			c0 := runCycle(t, k, d, proj, vc)
			assert.Equal(t, Idle, k.State(0))
			grad := c0.gradient()

			v := make([][]float64, tc.nspin)
			for s := range v {
				v[s] = make([]float64, at.NP())
				for p := range v[s] {
					v[s][p] = rng.NormFloat64()
				}
			}
			ep := runCycle(t, k, shifted(d, v, h), proj, vc).total(vc)
			em := runCycle(t, k, shifted(d, v, -h), proj, vc).total(vc)
			fd := (ep - em) / (2 * h)
			an := 0.0
			for s := range v {
				for p := range v[s] {
					an += grad[s][p] * v[s][p]
				}
			}
			assert.InDelta(t, 0, (fd-an)/math.Max(math.Abs(fd), 1e-8), 1e-5, "fd=%g analytic=%g", fd, an)

			// the projection derivative is exact too
			dp := randCoeffs(rng, tc.nspin, rd.Aug.Shells.NI(), rd.NQ())
			pp, pm := proj.Clone(), proj.Clone()
			for s := range dp {
				pp[s].Add(pp[s], scaledDense(dp[s], h))
				pm[s].Add(pm[s], scaledDense(dp[s], -h))
			}
			ep = runCycle(t, k, d, pp, vc).energy[0].Energy
			em = runCycle(t, k, d, pm, vc).energy[0].Energy
			fd = (ep - em) / (2 * h)
			an = c0.energy[0].DVDProj.Dot(dp)
			assert.InDelta(t, 0, (fd-an)/math.Max(math.Abs(fd), 1e-8), 1e-5, "fd=%g analytic=%g", fd, an)
		})
	}
}

// TestDensityGradientEntries checks single density matrix entries, including
// the off-diagonal ones that couple different partial waves.
func TestDensityGradientEntries(t *testing.T) {
	const h = 1e-6
	for _, backend := range []conv.Backend{conv.ReciprocalBackend, conv.OrbitalBackend} {
		t.Run(string(backend), func(t *testing.T) {
			cfg := testConfig()
			cfg.Backend = backend
			k := testKernel(t, cfg, 1)
			at := k.atoms[0]
			rd, err := k.Runtime(0)
			require.NoError(t, err)
			rng := rand.New(rand.NewPCG(53, 54))
			d := testDensity(at, 1, rng)
			vc := randCoeffs(rng, 1, rd.Smooth.Shells.NI(), rd.NSm)
			for _, m := range vc {
				m.Scale(0.01, m)
			}
			c0 := runCycle(t, k, d, nil, vc)
			proj := c0.proj
			grad := c0.gradient()
			for _, p := range []int{0, 1, at.NP() - 1} {
				v := [][]float64{make([]float64, at.NP())}
				v[0][p] = 1
				ep := runCycle(t, k, shifted(d, v, h), proj, vc).total(vc)
				em := runCycle(t, k, shifted(d, v, -h), proj, vc).total(vc)
				fd := (ep - em) / (2 * h)
				assert.InDelta(t, fd, grad[0][p], 1e-5*math.Max(math.Abs(fd), 1e-3), "entry %d", p)
			}
		})
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(61, 62))
	var energies []float64
	var d [][]float64
	for _, b := range []conv.Backend{conv.ReciprocalBackend, conv.OrbitalBackend} {
		cfg := testConfig()
		cfg.Backend = b
		cfg.SBT = DefaultConfig().SBT
		k := testKernel(t, cfg, 1)
		if d == nil {
			d = testDensity(k.atoms[0], 1, rng)
		}
		rd, err := k.Runtime(0)
		require.NoError(t, err)
		vc := projection.NewCoeffs(1, rd.Smooth.Shells.NI(), rd.NSm)
		energies = append(energies, runCycle(t, k, d, nil, vc).energy[0].Energy)
	}
	assert.InDelta(t, 0, (energies[0]-energies[1])/energies[0], 1e-3, "energies %v", energies)
}

func TestFeatureTaper(t *testing.T) {
	k := testKernel(t, testConfig(), 1)
	at := k.atoms[0]
	rd, err := k.Runtime(0)
	require.NoError(t, err)
	require.Len(t, rd.FCut, at.Grid.N())
	assert.InDelta(t, 0, rd.FCut[at.Grid.N()-1], 1e-15)
	for g, r := range at.Grid.R {
		if r < at.RCutFeat {
			assert.Equal(t, 1.0, rd.FCut[g])
		}
		if g > 0 {
			assert.LessOrEqual(t, rd.FCut[g], rd.FCut[g-1])
		}
	}
	// the taper spans the whole region between rcut and the grid end
	mid := 0.5 * (at.RCutFeat + at.Grid.RMax())
	for g, r := range at.Grid.R {
		if r > at.RCutFeat && r < mid {
			assert.Greater(t, rd.FCut[g], 0.5)
		}
	}
}

func TestZeroDensity(t *testing.T) {
	k := testKernel(t, testConfig(), 1)
	rd, err := k.Runtime(0)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(71, 72))
	d := [][]float64{make([]float64, k.atoms[0].NP())}
	vc := randCoeffs(rng, 1, rd.Smooth.Shells.NI(), rd.NSm)
	c := runCycle(t, k, d, nil, vc)

	assert.Zero(t, c.features[0].C.MaxAbs())
	assert.Zero(t, c.features[0].DF.MaxAbs())
	assert.Zero(t, c.energy[0].Energy)
	for _, row := range c.gradient() {
		for _, v := range row {
			assert.Zero(t, v)
		}
	}
}

func TestHydrogenScenario(t *testing.T) {
	cfg := testConfig()
	cfg.NAlpha = 1
	k := testKernel(t, cfg, 1)
	at := k.atoms[0]
	rd, err := k.Runtime(0)
	require.NoError(t, err)
	require.Equal(t, 1, rd.NQ())

	d := [][]float64{make([]float64, at.NP())}
	d[0][feature.PackedIndex(at.NI(), 0, 0)] = 1e-3
	c := runCycle(t, k, d, nil, projection.NewCoeffs(1, rd.Smooth.Shells.NI(), rd.NSm))
	e := c.energy[0].Energy
	assert.False(t, math.IsNaN(e))
	assert.Less(t, math.Abs(e), 1e-3)

	g := c.gradient()[0]
	px := g[feature.PackedIndex(at.NI(), 1, 1)]
	for i := 2; i <= 3; i++ {
		assert.InDelta(t, px, g[feature.PackedIndex(at.NI(), i, i)], 1e-7)
	}
	for i := 1; i <= 3; i++ {
		for j := i + 1; j <= 3; j++ {
			assert.InDelta(t, 0, g[feature.PackedIndex(at.NI(), i, j)], 1e-7)
		}
	}
}

func TestStateSequence(t *testing.T) {
	k := testKernel(t, testConfig(), 1)
	ctx := context.Background()
	rd, err := k.Runtime(0)
	require.NoError(t, err)
	dens := map[int][][]float64{0: {make([]float64, k.atoms[0].NP())}}
	proj := map[int]projection.Coeffs{0: projection.NewCoeffs(1, rd.Aug.Shells.NI(), rd.NQ())}
	vc := map[int]projection.Coeffs{0: projection.NewCoeffs(1, rd.Smooth.Shells.NI(), rd.NSm)}

	var se *StateSequenceError
	_, err = k.ComputeEnergy(ctx, dens, proj)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Idle, se.Have)
	assert.Equal(t, FeaturesComputed, se.Want)
	assert.True(t, errors.Is(err, ErrStateSequence))

	_, err = k.ComputePotential(ctx, dens, vc)
	require.ErrorAs(t, err, &se)

	_, err = k.ComputeFeatures(ctx, dens)
	require.NoError(t, err)
	assert.Equal(t, FeaturesComputed, k.State(0))
	_, err = k.ComputeFeatures(ctx, dens)
	require.ErrorAs(t, err, &se)
	_, err = k.ComputePotential(ctx, dens, vc)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, EnergyComputed, se.Want)

	_, err = k.ComputeEnergy(ctx, dens, proj)
	require.NoError(t, err)
	assert.Equal(t, EnergyComputed, k.State(0))
	_, err = k.ComputePotential(ctx, dens, vc)
	require.NoError(t, err)
	assert.Equal(t, Idle, k.State(0))

	// no atoms is a no-op
	out, err := k.ComputeEnergy(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "EnergyComputed", EnergyComputed.String())
}

func TestDimensionMismatch(t *testing.T) {
	k := testKernel(t, testConfig(), 1)
	ctx := context.Background()
	_, err := k.ComputeFeatures(ctx, map[int][][]float64{0: {make([]float64, 3)}})
	var de *DimensionMismatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "density matrix", de.What)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, Idle, k.State(0))

	dens := map[int][][]float64{0: {make([]float64, k.atoms[0].NP())}}
	_, err = k.ComputeFeatures(ctx, dens)
	require.NoError(t, err)
	_, err = k.ComputeEnergy(ctx, dens, map[int]projection.Coeffs{0: projection.NewCoeffs(1, 2, 2)})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, FeaturesComputed, k.State(0))

	_, err = k.ComputeFeatures(ctx, map[int][][]float64{5: nil})
	assert.True(t, errors.Is(err, ErrUnknownAtom))
}

func TestSetupCacheSharesSpecies(t *testing.T) {
	h1, err := HydrogenicAtom("H", 1, 1.0)
	require.NoError(t, err)
	h2, err := HydrogenicAtom("H", 1, 1.0)
	require.NoError(t, err)
	before := testutil.ToFloat64(setupBuilds.WithLabelValues("1", "ok"))
	k := testKernel(t, testConfig(), 1, h1, h2)

	dens := map[int][][]float64{
		0: {make([]float64, h1.NP())},
		1: {make([]float64, h2.NP())},
	}
	_, err = k.ComputeFeatures(context.Background(), dens)
	require.NoError(t, err)
	assert.Equal(t, 1, k.cache.len())
	assert.Equal(t, before+1, testutil.ToFloat64(setupBuilds.WithLabelValues("1", "ok")))
	r0, err := k.Runtime(0)
	require.NoError(t, err)
	r1, err := k.Runtime(1)
	require.NoError(t, err)
	assert.Same(t, r0, r1)
}

func TestSetupError(t *testing.T) {
	h, err := HydrogenicAtom("H", 1, 1.0)
	require.NoError(t, err)
	h.PS.Waves = h.PS.Waves[:1]
	before := testutil.ToFloat64(setupBuilds.WithLabelValues("1", "error"))
	k := testKernel(t, testConfig(), 1, h)

	_, err = k.Runtime(0)
	var se *SetupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Atom)
	assert.Equal(t, "radial feature tables", se.Stage)
	assert.True(t, errors.Is(err, feature.ErrBranch))
	assert.Equal(t, before+1, testutil.ToFloat64(setupBuilds.WithLabelValues("1", "error")))

	_, err = k.ComputeFeatures(context.Background(), map[int][][]float64{0: {make([]float64, h.NP())}})
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, Idle, k.State(0))
}

func TestNalphaExtension(t *testing.T) {
	ne, err := HydrogenicAtom("Ne", 10, 3.0)
	require.NoError(t, err)
	k := testKernel(t, testConfig(), 1, ne)
	rd, err := k.Runtime(0)
	require.NoError(t, err)
	assert.Greater(t, rd.NQ(), 6)
	assert.Equal(t, 6, rd.NSm)
	assert.GreaterOrEqual(t, rd.Encut0, 2000.0)
	assert.NotNil(t, ne.AE.Core)
	assert.Nil(t, ne.PS.TauCore)
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg, err := DecodeConfig(strings.NewReader("backend: orbital\nnalpha: 8\nsbt:\n  npoints: 256\n"))
	require.NoError(t, err)
	assert.Equal(t, conv.OrbitalBackend, cfg.Backend)
	assert.Equal(t, 8, cfg.NAlpha)
	assert.Equal(t, 256, cfg.SBT.NPoints)
	assert.Equal(t, 5e4, cfg.SBT.Encut)
	assert.True(t, cfg.OverlapFit)

	raw, err := cfg.Marshal()
	require.NoError(t, err)
	back, err := DecodeConfig(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)

	empty, err := DecodeConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), empty)

	for _, bad := range []string{
		"backend: fft\n",
		"nalpha: 0\n",
		"lambd: 1\n",
		"unknown_key: 3\n",
		"angular:\n  ntheta: 2\n",
	} {
		_, err := DecodeConfig(strings.NewReader(bad))
		assert.True(t, errors.Is(err, ErrInvalidConfig), bad)
	}
}
