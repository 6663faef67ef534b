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
package feature

import "math"

// Point is the kernel input at one grid point. Sigma holds
// (grad n0.grad n0, grad n0.grad n1, grad n1.grad n1); only Sigma[0] is
// used with one spin.
type Point struct {
	NSpin int
	N     [2]float64
	Sigma [3]float64
	Tau   [2]float64
	Feat  [2]float64
}

// Deriv holds the partial derivatives of the energy density.
type Deriv struct {
	N     [2]float64
	Sigma [3]float64
	Tau   [2]float64
	Feat  [2]float64
}

// XCKernel evaluates an energy density per volume and all its partial
// derivatives at one point.
type XCKernel interface {
	Eval(in *Point, d *Deriv) float64
	MGGA() bool
}

// ReferenceKernel is PBE-like exchange modulated by the nonlocal feature,
//
//	e = -Cx n^(4/3) Fx(s^2) G(f) M(t),
//
// with G(f) = 1 + C f/sqrt(1+f^2) and, for meta-GGA, M(t) = 1 + Zeta t/(1+t),
// t = tau/(C_F n^(5/3)). Spin polarized input uses the exchange spin
// scaling relation.
type ReferenceKernel struct {
	C    float64
	Zeta float64
	Meta bool
}

func NewReferenceKernel(meta bool) *ReferenceKernel {
	return &ReferenceKernel{C: 0.2, Zeta: 0.1, Meta: meta}
}

const (
	pbeKappa = 0.804
	pbeMu    = 0.2195
)

var (
	cX = 0.75 * math.Cbrt(3/math.Pi)
	cF = 0.3 * math.Pow(3*math.Pi*math.Pi, 2.0/3)
)

func (k *ReferenceKernel) MGGA() bool { return k.Meta }

func (k *ReferenceKernel) Eval(in *Point, d *Deriv) float64 {
	*d = Deriv{}
	if in.NSpin < 2 {
		e, dn, ds, dt, df := k.unpolarized(in.N[0], in.Sigma[0], in.Tau[0], in.Feat[0])
		d.N[0], d.Sigma[0], d.Tau[0], d.Feat[0] = dn, ds, dt, df
		return e
	}
	e := 0.0
	for s := 0; s < 2; s++ {
		ss := 2 * s
		es, dn, ds, dt, df := k.unpolarized(2*in.N[s], 4*in.Sigma[ss], 2*in.Tau[s], in.Feat[s])
		e += 0.5 * es
		d.N[s] = dn
		d.Sigma[ss] = 2 * ds
		d.Tau[s] = dt
		d.Feat[s] = 0.5 * df
	}
	return e
}

func (k *ReferenceKernel) unpolarized(n, sigma, tau, f float64) (e, dn, ds, dt, df float64) {
	if n < DensityCutoff {
		return 0, 0, 0, 0, 0
	}
	a := -cX * math.Pow(n, 4.0/3)
	dsds := 1 / (cSig * math.Pow(n, 8.0/3))
	s2 := sigma * dsds
	den := 1 + pbeMu*s2/pbeKappa
	fx := 1 + pbeKappa - pbeKappa/den
	dfx := pbeMu / (den * den)

	sq := math.Sqrt(1 + f*f)
	g := 1 + k.C*f/sq
	dg := k.C / (sq * sq * sq)

	m, dm, dtdtau, t := 1.0, 0.0, 0.0, 0.0
	if k.Meta {
		dtdtau = 1 / (cF * math.Pow(n, 5.0/3))
		t = tau * dtdtau
		m = 1 + k.Zeta*t/(1+t)
		dm = k.Zeta / ((1 + t) * (1 + t))
	}

	e = a * fx * g * m
	dn = 4.0/3*e/n + a*g*m*dfx*(-8.0/3*s2/n) + a*fx*g*dm*(-5.0/3*t/n)
	ds = a * g * m * dfx * dsds
	dt = a * fx * g * dm * dtdtau
	df = a * fx * m * dg
	return e, dn, ds, dt, df
}
