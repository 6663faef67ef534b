// field.go --  This file is part of goCIDER project.
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

// Package field holds the dense per-atom tensors passed between the
// pipeline stages. Data is stored as (spin, L, q, radial) with the radial
// index fastest, so a single radial function is a contiguous slice.
package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var ErrShape = errors.New("field: shape mismatch")

type Field struct {
	NS, NL, NQ, NG int
	Data           []float64
}

func New(ns, nl, nq, ng int) *Field {
	return &Field{NS: ns, NL: nl, NQ: nq, NG: ng, Data: make([]float64, ns*nl*nq*ng)}
}

func (f *Field) offset(s, L, q int) int {
	return ((s*f.NL+L)*f.NQ + q) * f.NG
}

// Radial returns the radial function for (s, L, q). The slice aliases the
// field storage.
func (f *Field) Radial(s, L, q int) []float64 {
	o := f.offset(s, L, q)
	return f.Data[o : o+f.NG]
}

func (f *Field) At(s, L, q, g int) float64 {
	return f.Data[f.offset(s, L, q)+g]
}

func (f *Field) Set(s, L, q, g int, v float64) {
	f.Data[f.offset(s, L, q)+g] = v
}

func (f *Field) AddAt(s, L, q, g int, v float64) {
	f.Data[f.offset(s, L, q)+g] += v
}

func (f *Field) Shape() [4]int {
	return [4]int{f.NS, f.NL, f.NQ, f.NG}
}

func (f *Field) SameShape(o *Field) bool {
	return o != nil && f.Shape() == o.Shape()
}

func (f *Field) Check(o *Field) error {
	if !f.SameShape(o) {
		if o == nil {
			return fmt.Errorf("%w: %v vs nil", ErrShape, f.Shape())
		}
		return fmt.Errorf("%w: %v vs %v", ErrShape, f.Shape(), o.Shape())
	}
	return nil
}

func (f *Field) Clone() *Field {
	c := &Field{NS: f.NS, NL: f.NL, NQ: f.NQ, NG: f.NG, Data: make([]float64, len(f.Data))}
	copy(c.Data, f.Data)
	return c
}

func (f *Field) Zero() {
	for i := range f.Data {
		f.Data[i] = 0
	}
}

// Add sets f = f + o.
func (f *Field) Add(o *Field) error {
	if err := f.Check(o); err != nil {
		return err
	}
	floats.Add(f.Data, o.Data)
	return nil
}

// Sub sets f = f - o.
func (f *Field) Sub(o *Field) error {
	if err := f.Check(o); err != nil {
		return err
	}
	floats.Sub(f.Data, o.Data)
	return nil
}

// AddScaled sets f = f + alpha*o.
func (f *Field) AddScaled(alpha float64, o *Field) error {
	if err := f.Check(o); err != nil {
		return err
	}
	floats.AddScaled(f.Data, alpha, o.Data)
	return nil
}

func (f *Field) Scale(alpha float64) {
	floats.Scale(alpha, f.Data)
}

// ScaleRadial multiplies every radial function by w.
func (f *Field) ScaleRadial(w []float64) error {
	if len(w) != f.NG {
		return fmt.Errorf("%w: radial weight length %d, want %d", ErrShape, len(w), f.NG)
	}
	for o := 0; o < len(f.Data); o += f.NG {
		floats.Mul(f.Data[o:o+f.NG], w)
	}
	return nil
}

// Dot is the plain Euclidean product over all entries.
func (f *Field) Dot(o *Field) (float64, error) {
	if err := f.Check(o); err != nil {
		return 0, err
	}
	return floats.Dot(f.Data, o.Data), nil
}

// Truncate returns a copy keeping only the first nq channels.
func (f *Field) Truncate(nq int) *Field {
	if nq > f.NQ {
		nq = f.NQ
	}
	out := New(f.NS, f.NL, nq, f.NG)
	for s := 0; s < f.NS; s++ {
		for L := 0; L < f.NL; L++ {
			for q := 0; q < nq; q++ {
				copy(out.Radial(s, L, q), f.Radial(s, L, q))
			}
		}
	}
	return out
}

// AddChannels adds o into the first o.NQ channels of f.
func (f *Field) AddChannels(o *Field) error {
	if o.NS != f.NS || o.NL != f.NL || o.NG != f.NG || o.NQ > f.NQ {
		return fmt.Errorf("%w: %v into %v", ErrShape, o.Shape(), f.Shape())
	}
	for s := 0; s < f.NS; s++ {
		for L := 0; L < f.NL; L++ {
			for q := 0; q < o.NQ; q++ {
				floats.Add(f.Radial(s, L, q), o.Radial(s, L, q))
			}
		}
	}
	return nil
}

func (f *Field) MaxAbs() float64 {
	m := 0.0
	for _, v := range f.Data {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
