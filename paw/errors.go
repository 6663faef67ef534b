// errors.go --  This file is part of goCIDER project.
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
	"errors"
	"fmt"
)

var (
	ErrStateSequence     = errors.New("paw: call out of sequence")
	ErrDimensionMismatch = errors.New("paw: dimension mismatch")
	ErrUnknownAtom       = errors.New("paw: unknown atom")
	ErrInvalidConfig     = errors.New("paw: invalid config")
)

// SetupError reports a failure while building the per-species data of an
// atom. It wraps the cause, e.g. projection.ErrNotPositiveDefinite.
type SetupError struct {
	Atom  int
	Z     int
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("paw: setup of atom %d (Z=%d) failed at %s: %v", e.Atom, e.Z, e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// StateSequenceError reports a stage call on an atom that is not in the
// state the call requires.
type StateSequenceError struct {
	Atom int
	Call string
	Have AtomState
	Want AtomState
}

func (e *StateSequenceError) Error() string {
	return fmt.Sprintf("paw: %s on atom %d in state %s, want %s", e.Call, e.Atom, e.Have, e.Want)
}

func (e *StateSequenceError) Unwrap() error { return ErrStateSequence }

// DimensionMismatchError reports inconsistent shapes of per-atom input.
type DimensionMismatchError struct {
	Atom int
	What string
	Got  string
	Want string
	Err  error
}

func (e *DimensionMismatchError) Error() string {
	s := fmt.Sprintf("paw: atom %d: %s has shape %s, want %s", e.Atom, e.What, e.Got, e.Want)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

func (e *DimensionMismatchError) Unwrap() error { return e.Err }
