// setup.go --  This file is part of goCIDER project.
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
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/gocider/basis"
	"example.com/gocider/conv"
	"example.com/gocider/feature"
	"example.com/gocider/projection"
	"example.com/gocider/radial"
	"example.com/gocider/transform"
)

// AtomRuntimeData is everything the stages need for one species. It is
// built once and read-only afterwards, so atoms of the same species share
// one value across workers.
type AtomRuntimeData struct {
	Z      int
	Alphas []float64 // kernel exponents of the species
	NSm    int       // leading exponents shared with the global ladder
	Encut0 float64

	Plan      *feature.Plan
	Calc      *feature.Calculator
	Transform *transform.Transform
	Engine    conv.Engine
	Smooth    *projection.SmoothSetup
	Aug       *projection.AugSetup
	// FCut tapers the pseudo theta from RCutFeat to the end of the grid.
	FCut []float64
}

// NQ is the number of kernel exponents of the species.
func (rd *AtomRuntimeData) NQ() int { return len(rd.Alphas) }

// setupCache builds AtomRuntimeData lazily, once per species.
type setupCache struct {
	flight singleflight.Group
	mu     sync.RWMutex
	byKey  map[string]*AtomRuntimeData
}

func newSetupCache() *setupCache {
	return &setupCache{byKey: make(map[string]*AtomRuntimeData)}
}

func (c *setupCache) get(key string, build func() (*AtomRuntimeData, error)) (*AtomRuntimeData, error) {
	c.mu.RLock()
	rd, ok := c.byKey[key]
	c.mu.RUnlock()
	if ok {
		return rd, nil
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		c.mu.RLock()
		rd, ok := c.byKey[key]
		c.mu.RUnlock()
		if ok {
			return rd, nil
		}
		rd, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.byKey[key] = rd
		c.mu.Unlock()
		return rd, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AtomRuntimeData), nil
}

func (c *setupCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// buildEnv holds what all species share.
type buildEnv struct {
	cfg    Config
	nspin  int
	alphas []float64
	kgrid  *radial.KGrid
	ang    *radial.Angular
	xc     feature.XCKernel
	log    *slog.Logger
}

func (env *buildEnv) build(idx int, at *AtomData) (*AtomRuntimeData, error) {
	start := time.Now()
	rd, err := env.buildSpecies(idx, at)
	status := "ok"
	if err != nil {
		status = "error"
	}
	setupBuilds.WithLabelValues(zLabel(at.Z), status).Inc()
	if err == nil {
		env.log.Info("species setup built", "atom", idx, "Z", at.Z, "nalpha", rd.NQ(), "elapsed", time.Since(start))
	}
	return rd, err
}

func (env *buildEnv) buildSpecies(idx int, at *AtomData) (*AtomRuntimeData, error) {
	cfg := env.cfg
	fail := func(stage string, err error) error {
		return &SetupError{Atom: idx, Z: at.Z, Stage: stage, Err: err}
	}
	n, encut0, err := basis.AtomNalpha(at.Z, env.alphas, cfg.Lambd)
	if err != nil {
		return nil, fail("nalpha", err)
	}
	rd := &AtomRuntimeData{
		Z:      at.Z,
		Alphas: basis.Extend(env.alphas, cfg.Lambd, n),
		NSm:    min(len(env.alphas), n),
		Encut0: encut0,
	}
	if rd.Plan, err = feature.NewPlan(rd.Alphas, cfg.Lambd); err != nil {
		return nil, fail("plan", err)
	}
	rd.Calc, err = feature.NewCalculator(feature.CalculatorParams{
		Grid:        at.Grid,
		Ang:         env.ang,
		Plan:        rd.Plan,
		Kernel:      env.xc,
		AE:          at.AE,
		PS:          at.PS,
		NSpin:       env.nspin,
		FeatureLMax: cfg.FeatureLMax,
		Logger:      env.log,
	})
	if err != nil {
		return nil, fail("radial feature tables", err)
	}
	exps, err := basis.OrbitalExponents(at.Z, at.Grid.RMax(), cfg.ETBRatio)
	if err != nil {
		return nil, fail("orbital exponents", err)
	}
	if rd.Transform, err = transform.New(at.Grid, env.kgrid, exps, cfg.FeatureLMax); err != nil {
		return nil, fail("grid transform", err)
	}
	if rd.Engine, err = conv.New(cfg.Backend, rd.Transform, rd.Alphas); err != nil {
		return nil, fail("convolution", err)
	}
	zl := zLabel(at.Z)
	rd.Smooth, err = projection.NewSmoothSetup(projection.SmoothParams{
		Z:          at.Z,
		Grid:       at.Grid,
		KGrid:      env.kgrid,
		RCut:       at.RCutFeat,
		Alphas:     rd.Alphas,
		NSm:        rd.NSm,
		Encut0:     encut0,
		LMax:       cfg.FeatureLMax,
		StoreFuncs: cfg.StoreFuncs,
		Logger:     env.log,
		OnDegenerate: func(l int, cond float64) {
			degenerate.WithLabelValues(zl, strconv.Itoa(l)).Inc()
		},
	})
	if err != nil {
		return nil, fail("smooth projection", err)
	}
	rd.Aug, err = projection.NewAugSetup(projection.AugParams{
		Z:          at.Z,
		Grid:       at.Grid,
		RCutFeat:   at.RCutFeat,
		LMax:       cfg.FeatureLMax,
		OverlapFit: cfg.OverlapFit,
	})
	if err != nil {
		return nil, fail("augmentation projection", err)
	}
	rd.FCut = basis.Fcut(at.Grid.R, at.RCutFeat, at.Grid.RMax())
	return rd, nil
}
