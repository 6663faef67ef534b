// kernel.go --  This file is part of goCIDER project.
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

// Package paw runs the three-stage nonlocal feature calculation on a set of
// PAW atoms: features from the atomic density matrices, the energy given
// projections of the smooth feature field, and the potential given the
// derivative of the smooth energy with respect to the augmentation
// coefficients.
package paw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"example.com/gocider/basis"
	"example.com/gocider/feature"
	"example.com/gocider/field"
	"example.com/gocider/projection"
	"example.com/gocider/radial"
)

// AtomState is the stage an atom has completed.
type AtomState int

const (
	Idle AtomState = iota
	FeaturesComputed
	EnergyComputed
)

func (s AtomState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case FeaturesComputed:
		return "FeaturesComputed"
	case EnergyComputed:
		return "EnergyComputed"
	}
	return fmt.Sprintf("AtomState(%d)", int(s))
}

// atomState carries the fields of one atom between stages.
type atomState struct {
	stage AtomState
	fr    *field.Field // pseudo convolution plus projector part
	df    *field.Field // delta correction on the radial grid
	vfr   *field.Field
	vdf   *field.Field
}

// Features is the output of ComputeFeatures for one atom: the projector
// coefficients c (spin x projector x NSm) and the delta coefficients.
type Features struct {
	C  projection.Coeffs
	DF *field.Field
}

// EnergyResult is the output of ComputeEnergy for one atom.
type EnergyResult struct {
	Energy float64
	// DVDProj is dE/dP for the supplied projections.
	DVDProj projection.Coeffs
	// DH is the explicit dE/dD; ComputePotential returns the rest.
	DH [][]float64
}

// Kernel is the orchestrator. Each atom moves Idle -> FeaturesComputed ->
// EnergyComputed -> Idle; any other order is a StateSequenceError.
type Kernel struct {
	cfg   Config
	nspin int
	atoms []*AtomData
	env   *buildEnv
	log   *slog.Logger

	cache *setupCache

	mu      sync.Mutex
	runtime map[int]*AtomRuntimeData
	states  map[int]*atomState
}

// NewKernel checks cfg and builds the grids shared by all species. Per
// species data is built on first use. log may be nil.
func NewKernel(cfg Config, atoms []*AtomData, nspin int, xc feature.XCKernel, log *slog.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if nspin != 1 && nspin != 2 {
		return nil, fmt.Errorf("%w: nspin=%d", ErrInvalidConfig, nspin)
	}
	if xc == nil {
		return nil, fmt.Errorf("%w: no XC kernel", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	alphas, err := basis.AlphaLadder(cfg.QMax, cfg.Lambd, cfg.NAlpha)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	kg, err := radial.NewKGrid(cfg.SBT.Encut, cfg.SBT.NPoints, cfg.SBT.D)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ang, err := radial.NewAngular(cfg.AngularLMax(), cfg.Angular.NTheta, cfg.Angular.NPhi)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for i, at := range atoms {
		if at == nil || at.Grid == nil {
			return nil, fmt.Errorf("%w: atom %d has no data", ErrInvalidConfig, i)
		}
	}
	return &Kernel{
		cfg:   cfg,
		nspin: nspin,
		atoms: atoms,
		env: &buildEnv{
			cfg:    cfg,
			nspin:  nspin,
			alphas: alphas,
			kgrid:  kg,
			ang:    ang,
			xc:     xc,
			log:    log,
		},
		log:     log,
		cache:   newSetupCache(),
		runtime: make(map[int]*AtomRuntimeData),
		states:  make(map[int]*atomState),
	}, nil
}

// NSpin is the number of spin channels.
func (k *Kernel) NSpin() int { return k.nspin }

// State returns the stage atom idx has completed.
func (k *Kernel) State(idx int) AtomState {
	k.mu.Lock()
	defer k.mu.Unlock()
	if st, ok := k.states[idx]; ok {
		return st.stage
	}
	return Idle
}

// Runtime returns the per-species data of atom idx, building it on first
// use.
func (k *Kernel) Runtime(idx int) (*AtomRuntimeData, error) {
	if idx < 0 || idx >= len(k.atoms) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAtom, idx)
	}
	k.mu.Lock()
	rd, ok := k.runtime[idx]
	k.mu.Unlock()
	if ok {
		return rd, nil
	}
	at := k.atoms[idx]
	rd, err := k.cache.get(at.key(), func() (*AtomRuntimeData, error) {
		return k.env.build(idx, at)
	})
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.runtime[idx] = rd
	k.mu.Unlock()
	return rd, nil
}

// sortedAtoms returns the keys of m in ascending order.
func sortedAtoms[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// begin checks that every atom in idxs is in state want and returns their
// states.
func (k *Kernel) begin(call string, idxs []int, want AtomState) (map[int]*atomState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[int]*atomState, len(idxs))
	for _, idx := range idxs {
		if idx < 0 || idx >= len(k.atoms) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAtom, idx)
		}
		have := Idle
		st, ok := k.states[idx]
		if ok {
			have = st.stage
		}
		if have != want {
			return nil, &StateSequenceError{Atom: idx, Call: call, Have: have, Want: want}
		}
		out[idx] = st
	}
	return out, nil
}

func (k *Kernel) checkDensity(idx int, d [][]float64) error {
	np := k.atoms[idx].NP()
	bad := len(d) != k.nspin
	for _, ds := range d {
		bad = bad || len(ds) != np
	}
	if bad {
		got := fmt.Sprintf("%d spins", len(d))
		if len(d) > 0 {
			got = fmt.Sprintf("%dx%d", len(d), len(d[0]))
		}
		return &DimensionMismatchError{Atom: idx, What: "density matrix", Got: got, Want: fmt.Sprintf("%dx%d", k.nspin, np)}
	}
	return nil
}

func (k *Kernel) checkCoeffs(idx int, what string, c projection.Coeffs, ni, nq int) error {
	ns, r, q := c.Dims()
	if ns != k.nspin || r != ni || q != nq {
		return &DimensionMismatchError{
			Atom: idx,
			What: what,
			Got:  fmt.Sprintf("%dx%dx%d", ns, r, q),
			Want: fmt.Sprintf("%dx%dx%d", k.nspin, ni, nq),
		}
	}
	return nil
}

// stage runs fn for every atom with at most cfg.Workers in flight.
func (k *Kernel) stage(ctx context.Context, name string, idxs []int, fn func(ctx context.Context, idx int, rd *AtomRuntimeData) error) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "paw."+name, trace.WithAttributes(attribute.Int("atoms", len(idxs))))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.cfg.Workers)
	for _, idx := range idxs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			actx, aspan := tracer.Start(gctx, "paw.atom", trace.WithAttributes(
				attribute.Int("atom", idx),
				attribute.Int("Z", k.atoms[idx].Z),
			))
			defer aspan.End()
			rd, err := k.Runtime(idx)
			if err == nil {
				err = fn(actx, idx, rd)
			}
			if err != nil {
				aspan.RecordError(err)
				aspan.SetStatus(codes.Error, err.Error())
			}
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	k.log.Debug("stage done", "stage", name, "atoms", len(idxs), "elapsed", time.Since(start), "err", err)
	return err
}

// commit stores the new states of a finished stage. A nil state returns
// the atom to Idle.
func (k *Kernel) commit(next map[int]*atomState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for idx, st := range next {
		if st == nil {
			delete(k.states, idx)
			continue
		}
		k.states[idx] = st
	}
}

// ComputeFeatures builds the theta functions of both branches, convolves
// them and fits the delta correction. It returns, per atom, the projector
// coefficients to be added to the smooth feature field and the delta
// coefficients. Atoms must be Idle.
func (k *Kernel) ComputeFeatures(ctx context.Context, dens map[int][][]float64) (map[int]Features, error) {
	out := make(map[int]Features, len(dens))
	if len(dens) == 0 {
		return out, nil
	}
	idxs := sortedAtoms(dens)
	if _, err := k.begin("ComputeFeatures", idxs, Idle); err != nil {
		return nil, err
	}
	for _, idx := range idxs {
		if err := k.checkDensity(idx, dens[idx]); err != nil {
			return nil, err
		}
	}
	var mu sync.Mutex
	next := make(map[int]*atomState, len(idxs))
	err := k.stage(ctx, "features", idxs, func(_ context.Context, idx int, rd *AtomRuntimeData) error {
		st, res, err := k.features(rd, dens[idx])
		if err != nil {
			return fmt.Errorf("paw: features of atom %d: %w", idx, err)
		}
		mu.Lock()
		out[idx] = res
		next[idx] = st
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.commit(next)
	return out, nil
}

func (k *Kernel) features(rd *AtomRuntimeData, d [][]float64) (*atomState, Features, error) {
	xae, err := rd.Calc.Theta(d, true)
	if err != nil {
		return nil, Features{}, err
	}
	xps, err := rd.Calc.Theta(d, false)
	if err != nil {
		return nil, Features{}, err
	}
	dx := xae
	if err := dx.Sub(xps); err != nil {
		return nil, Features{}, err
	}
	xt := xps
	if err := xt.ScaleRadial(rd.FCut); err != nil {
		return nil, Features{}, err
	}
	fr, err := rd.Engine.Convolve(xt, true)
	if err != nil {
		return nil, Features{}, err
	}
	dyk, err := rd.Engine.ConvolveReciprocal(dx, true)
	if err != nil {
		return nil, Features{}, err
	}
	c, dfc, err := rd.Smooth.Solve(dyk)
	if err != nil {
		return nil, Features{}, err
	}
	phi, err := rd.Smooth.PhiReal(c)
	if err != nil {
		return nil, Features{}, err
	}
	if err := fr.AddChannels(phi); err != nil {
		return nil, Features{}, err
	}
	df, err := rd.Smooth.DeltaReal(dfc)
	if err != nil {
		return nil, Features{}, err
	}
	return &atomState{stage: FeaturesComputed, fr: fr, df: df}, Features{C: c, DF: dfc}, nil
}

// ReferenceProjections returns the augmentation projections of the stored
// feature field of atom idx. Passed back to ComputeEnergy they leave the
// field unchanged. The atom must be in FeaturesComputed.
func (k *Kernel) ReferenceProjections(idx int) (projection.Coeffs, error) {
	states, err := k.begin("ReferenceProjections", []int{idx}, FeaturesComputed)
	if err != nil {
		return nil, err
	}
	rd, err := k.Runtime(idx)
	if err != nil {
		return nil, err
	}
	return rd.Aug.Reference(states[idx].fr)
}

// ComputeEnergy reconstructs the true feature field from the stored fields
// and the projections proj (spin x augmentation projector x NQ) of the
// smooth feature field, and returns the energy correction with its
// derivatives. Atoms must be in FeaturesComputed.
func (k *Kernel) ComputeEnergy(ctx context.Context, dens map[int][][]float64, proj map[int]projection.Coeffs) (map[int]EnergyResult, error) {
	out := make(map[int]EnergyResult, len(dens))
	if len(dens) == 0 {
		return out, nil
	}
	idxs := sortedAtoms(dens)
	states, err := k.begin("ComputeEnergy", idxs, FeaturesComputed)
	if err != nil {
		return nil, err
	}
	for _, idx := range idxs {
		if err := k.checkDensity(idx, dens[idx]); err != nil {
			return nil, err
		}
		if _, ok := proj[idx]; !ok {
			return nil, &DimensionMismatchError{Atom: idx, What: "projections", Got: "none", Want: "one per atom"}
		}
	}
	var mu sync.Mutex
	next := make(map[int]*atomState, len(idxs))
	err = k.stage(ctx, "energy", idxs, func(_ context.Context, idx int, rd *AtomRuntimeData) error {
		if err := k.checkCoeffs(idx, "projections", proj[idx], rd.Aug.Shells.NI(), rd.NQ()); err != nil {
			return err
		}
		st, res, err := k.energy(rd, states[idx], dens[idx], proj[idx])
		if err != nil {
			return fmt.Errorf("paw: energy of atom %d: %w", idx, err)
		}
		mu.Lock()
		out[idx] = res
		next[idx] = st
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.commit(next)
	return out, nil
}

func (k *Kernel) energy(rd *AtomRuntimeData, st *atomState, d [][]float64, p projection.Coeffs) (*atomState, EnergyResult, error) {
	ft, err := rd.Aug.Expand(st.fr, p)
	if err != nil {
		return nil, EnergyResult{}, err
	}
	fae := ft.Clone()
	if err := fae.Add(st.df); err != nil {
		return nil, EnergyResult{}, err
	}
	eae, hae, vae, err := rd.Calc.Energy(d, fae, true)
	if err != nil {
		return nil, EnergyResult{}, err
	}
	eps, hps, vps, err := rd.Calc.Energy(d, ft, false)
	if err != nil {
		return nil, EnergyResult{}, err
	}
	for s := range hae {
		for i := range hae[s] {
			hae[s][i] -= hps[s][i]
		}
	}
	vft := vae.Clone()
	if err := vft.Sub(vps); err != nil {
		return nil, EnergyResult{}, err
	}
	dvd, vfr, err := rd.Aug.ExpandAdjoint(vft)
	if err != nil {
		return nil, EnergyResult{}, err
	}
	next := &atomState{stage: EnergyComputed, fr: st.fr, df: st.df, vfr: vfr, vdf: vae}
	return next, EnergyResult{Energy: eae - eps, DVDProj: dvd, DH: hae}, nil
}

// ComputePotential back-propagates the stored feature derivatives together
// with vc = dE/dc of the smooth energy (spin x smooth projector x NSm) to
// the density matrices. Atoms must be in EnergyComputed and return to
// Idle.
func (k *Kernel) ComputePotential(ctx context.Context, dens map[int][][]float64, vc map[int]projection.Coeffs) (map[int][][]float64, error) {
	out := make(map[int][][]float64, len(dens))
	if len(dens) == 0 {
		return out, nil
	}
	idxs := sortedAtoms(dens)
	states, err := k.begin("ComputePotential", idxs, EnergyComputed)
	if err != nil {
		return nil, err
	}
	for _, idx := range idxs {
		if err := k.checkDensity(idx, dens[idx]); err != nil {
			return nil, err
		}
		if _, ok := vc[idx]; !ok {
			return nil, &DimensionMismatchError{Atom: idx, What: "coefficient derivatives", Got: "none", Want: "one per atom"}
		}
	}
	var mu sync.Mutex
	next := make(map[int]*atomState, len(idxs))
	err = k.stage(ctx, "potential", idxs, func(_ context.Context, idx int, rd *AtomRuntimeData) error {
		if err := k.checkCoeffs(idx, "coefficient derivatives", vc[idx], rd.Smooth.Shells.NI(), rd.NSm); err != nil {
			return err
		}
		dh, err := k.potential(rd, states[idx], dens[idx], vc[idx])
		if err != nil {
			return fmt.Errorf("paw: potential of atom %d: %w", idx, err)
		}
		mu.Lock()
		out[idx] = dh
		next[idx] = nil
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.commit(next)
	return out, nil
}

func (k *Kernel) potential(rd *AtomRuntimeData, st *atomState, d [][]float64, vc projection.Coeffs) ([][]float64, error) {
	vct, err := rd.Smooth.PhiRealT(st.vfr)
	if err != nil {
		return nil, err
	}
	if err := vct.Add(vc); err != nil {
		return nil, err
	}
	vdfc, err := rd.Smooth.DeltaRealT(st.vdf)
	if err != nil {
		return nil, err
	}
	vdyk, err := rd.Smooth.SolveAdjoint(vct, vdfc)
	if err != nil {
		return nil, err
	}
	vxt, err := rd.Engine.Convolve(st.vfr, false)
	if err != nil {
		return nil, err
	}
	if err := vxt.ScaleRadial(rd.FCut); err != nil {
		return nil, err
	}
	vdx, err := rd.Engine.ConvolveReciprocal(vdyk, false)
	if err != nil {
		return nil, err
	}
	hae, err := rd.Calc.Potential(d, vdx, true)
	if err != nil {
		return nil, err
	}
	vps := vdx
	if err := vps.Sub(vxt); err != nil {
		return nil, err
	}
	hps, err := rd.Calc.Potential(d, vps, false)
	if err != nil {
		return nil, err
	}
	for s := range hae {
		for i := range hae[s] {
			hae[s][i] -= hps[s][i]
		}
	}
	return hae, nil
}
