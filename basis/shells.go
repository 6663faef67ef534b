// shells.go --  This file is part of goCIDER project.
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
package basis

import "fmt"

// Shells lists the projector radial functions (n, l) of a species and
// their expansion into (l, m) projector indices i.
type Shells struct {
	N, L    []int
	NBasLoc []int
	LM      []int // L = l^2 + m index of projector i
	J       []int // radial function of projector i
}

type shellTable struct {
	n, l, nbas []int
}

var (
	shellsHeavy = shellTable{
		n:    []int{0, 2, 4, 6, 8, 1, 3, 5, 7, 2, 4, 6, 8, 3, 5, 7, 4, 6, 8},
		l:    []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 4, 4, 4},
		nbas: []int{5, 4, 4, 3, 3},
	}
	shellsLarge = shellTable{
		n:    []int{0, 2, 4, 6, 1, 3, 5, 2, 4, 6, 3, 5, 4, 6},
		l:    []int{0, 0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 4, 4},
		nbas: []int{4, 3, 3, 2, 2},
	}
	shellsMedium = shellTable{
		n:    []int{0, 2, 4, 1, 3, 2, 4, 3, 4},
		l:    []int{0, 0, 0, 1, 1, 2, 2, 3, 4},
		nbas: []int{3, 2, 2, 1, 1},
	}
	shellsSmall = shellTable{
		n:    []int{0, 2, 1, 2},
		l:    []int{0, 0, 1, 2},
		nbas: []int{2, 1, 1},
	}
)

// AugShells is the table of the augmentation projectors.
func AugShells(Z int) (*Shells, error) {
	if Z < 0 {
		return nil, fmt.Errorf("%w: Z=%d", ErrInvalidZ, Z)
	}
	switch {
	case Z > 1000:
		return shellsHeavy.build(), nil
	case Z > 18:
		return shellsLarge.build(), nil
	case Z > 0:
		return shellsMedium.build(), nil
	default:
		return shellsSmall.build(), nil
	}
}

// SmoothShells is the table of the smooth-fit projectors.
func SmoothShells(Z int) (*Shells, error) {
	if Z < 0 {
		return nil, fmt.Errorf("%w: Z=%d", ErrInvalidZ, Z)
	}
	switch {
	case Z > 100:
		return shellsLarge.build(), nil
	case Z > 0:
		return shellsMedium.build(), nil
	default:
		return shellsSmall.build(), nil
	}
}

func (t shellTable) build() *Shells {
	s := &Shells{
		N:       append([]int(nil), t.n...),
		L:       append([]int(nil), t.l...),
		NBasLoc: make([]int, len(t.nbas)+1),
	}
	for l, nb := range t.nbas {
		s.NBasLoc[l+1] = s.NBasLoc[l] + nb
	}
	for j, l := range s.L {
		for m := 0; m < 2*l+1; m++ {
			s.LM = append(s.LM, l*l+m)
			s.J = append(s.J, j)
		}
	}
	return s
}

func (s *Shells) NJ() int { return len(s.N) }

func (s *Shells) NI() int { return len(s.LM) }

func (s *Shells) LMax() int { return len(s.NBasLoc) - 2 }

// NN is one more than the largest radial power.
func (s *Shells) NN() int {
	nn := 0
	for _, n := range s.N {
		if n+1 > nn {
			nn = n + 1
		}
	}
	return nn
}

// JRange returns the radial functions [j0, j1) of channel l.
func (s *Shells) JRange(l int) (int, int) {
	if l < 0 || l > s.LMax() {
		return 0, 0
	}
	return s.NBasLoc[l], s.NBasLoc[l+1]
}

// Projectors returns the projector indices i with L_i == L.
func (s *Shells) Projectors(L int) []int {
	var out []int
	for i, lm := range s.LM {
		if lm == L {
			out = append(out, i)
		}
	}
	return out
}
