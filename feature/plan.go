// plan.go --  This file is part of goCIDER project.
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
	"fmt"
	"math"
)

// DensityCutoff is the density below which a point carries no feature,
// energy or potential.
const DensityCutoff = 1e-12

// interpolation width in units of ladder steps
const planSigma2 = 0.25

var (
	cA    = math.Pow(3*math.Pi*math.Pi, 2.0/3)
	cSig  = 4 * math.Pow(3*math.Pi*math.Pi, 2.0/3)
	planB = 1.0
)

// Plan maps the local density and gradient of one spin to a kernel
// exponent a = cA n^(2/3) (1 + B h), h = x/(1+x), x = sigma/(cSig n^(8/3)),
// and spreads it over the exponent ladder with normalized Gaussian weights
// in u = ln(a/alpha0)/ln(lambd).
type Plan struct {
	Alpha0 float64
	Lambd  float64
	NQ     int
}

func NewPlan(alphas []float64, lambd float64) (*Plan, error) {
	if len(alphas) == 0 || lambd <= 1 {
		return nil, fmt.Errorf("feature: plan with %d exponents, lambd %g", len(alphas), lambd)
	}
	return &Plan{Alpha0: alphas[0], Lambd: lambd, NQ: len(alphas)}, nil
}

// PlanPoint holds the weights p_q, dp_q/du and the derivatives of u at one
// point.
type PlanPoint struct {
	P, DPDU []float64
	DUDN    float64
	DUDS    float64
}

func (pl *Plan) NewPoint() *PlanPoint {
	return &PlanPoint{P: make([]float64, pl.NQ), DPDU: make([]float64, pl.NQ)}
}

// Eval fills pt for density n and sigma = |grad n|^2. Below DensityCutoff
// everything is zero.
func (pl *Plan) Eval(n, sigma float64, pt *PlanPoint) {
	if n < DensityCutoff {
		for q := range pt.P {
			pt.P[q], pt.DPDU[q] = 0, 0
		}
		pt.DUDN, pt.DUDS = 0, 0
		return
	}
	dxds := 1 / (cSig * math.Pow(n, 8.0/3))
	x := sigma * dxds
	h := x / (1 + x)
	dhdx := 1 / ((1 + x) * (1 + x))
	lnl := math.Log(pl.Lambd)
	lna := math.Log(cA) + 2.0/3*math.Log(n) + math.Log(1+planB*h)
	u := (lna - math.Log(pl.Alpha0)) / lnl
	g := planB / (1 + planB*h) * dhdx
	pt.DUDN = (2/(3*n) + g*(-8.0/3*x/n)) / lnl
	pt.DUDS = g * dxds / lnl

	smax := math.Inf(-1)
	for q := range pt.P {
		d := u - float64(q)
		pt.P[q] = -d * d / (2 * planSigma2)
		smax = math.Max(smax, pt.P[q])
	}
	z := 0.0
	for q, s := range pt.P {
		pt.P[q] = math.Exp(s - smax)
		z += pt.P[q]
	}
	qbar := 0.0
	for q := range pt.P {
		pt.P[q] /= z
		qbar += pt.P[q] * float64(q)
	}
	for q, p := range pt.P {
		pt.DPDU[q] = p * (float64(q) - qbar) / planSigma2
	}
}
