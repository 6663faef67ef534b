// conv.go --  This file is part of goCIDER project.
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

// Package conv applies the Gaussian feature kernels, one exponent per
// feature channel q, to atom-centered fields.
//
// Real-space inputs are dual (weighted by r^2 dr), real-space outputs are
// function values and k-space fields are values on the reciprocal grid.
// With that convention every backward call is the plain transpose of the
// matching forward call, so for fields a and b
//
//	dot(a, Convolve(b, true)) == dot(Convolve(a, false), b).
package conv

import (
	"errors"
	"fmt"

	"example.com/gocider/field"
	"example.com/gocider/transform"
)

type Backend string

const (
	OrbitalBackend    Backend = "orbital"
	ReciprocalBackend Backend = "reciprocal"
)

var ErrUnknownBackend = errors.New("conv: unknown backend")

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case OrbitalBackend, ReciprocalBackend:
		return b, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownBackend, s)
}

// Engine convolves fields of shape (spin, L, q, radial).
type Engine interface {
	// Convolve maps a dual real-space field to convolved values on the
	// radial grid; fwd=false applies its transpose.
	Convolve(in *field.Field, fwd bool) (*field.Field, error)
	// ConvolveReciprocal maps a dual real-space field to convolved k-space
	// values when fwd, and k-space values back to a real-space dual field
	// when not.
	ConvolveReciprocal(in *field.Field, fwd bool) (*field.Field, error)
	Backend() Backend
	NQ() int
}

// New builds the engine of the given backend for the transform tr and the
// kernel exponents alphas.
func New(b Backend, tr *transform.Transform, alphas []float64) (Engine, error) {
	if len(alphas) == 0 {
		return nil, fmt.Errorf("conv: no kernel exponents")
	}
	switch b {
	case OrbitalBackend:
		return newOrbital(tr, alphas), nil
	case ReciprocalBackend:
		return newReciprocal(tr, alphas), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownBackend, b)
}

type base struct {
	tr     *transform.Transform
	alphas []float64
}

func (e *base) NQ() int { return len(e.alphas) }

func (e *base) check(in *field.Field, ng int) error {
	nl := (e.tr.LMax() + 1) * (e.tr.LMax() + 1)
	switch {
	case in == nil:
		return fmt.Errorf("%w: nil input", field.ErrShape)
	case in.NL > nl:
		return fmt.Errorf("%w: %d angular channels, transform has %d", field.ErrShape, in.NL, nl)
	case in.NQ > len(e.alphas):
		return fmt.Errorf("%w: %d feature channels, %d kernels", field.ErrShape, in.NQ, len(e.alphas))
	case in.NG != ng:
		return fmt.Errorf("%w: %d radial points, want %d", field.ErrShape, in.NG, ng)
	}
	return nil
}

// apply runs op over every radial function of in into a new field with
// radial length ng.
func (e *base) apply(in *field.Field, ng int, op func(b *transform.Basis, q int, x []float64) []float64) *field.Field {
	out := field.New(in.NS, in.NL, in.NQ, ng)
	for s := 0; s < in.NS; s++ {
		for L := 0; L < in.NL; L++ {
			b := e.tr.For(L)
			for q := 0; q < in.NQ; q++ {
				copy(out.Radial(s, L, q), op(b, q, in.Radial(s, L, q)))
			}
		}
	}
	return out
}
