// input.go --  This file is part of goCIDER project.
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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInput = errors.New("input")

type atomSpec struct {
	Symbol string
	Z      int
	Zeta   float64
}

// Input is a parsed input file:
//
//	Atoms
//	  H  1.0
//	  Ne 3.0
//	end
//	nspin 2
//	nprocs 4
//	xc mgga
//	backend orbital
//	config cider.yaml
type Input struct {
	Atoms   []atomSpec
	NSpin   int
	NProcs  int
	Meta    bool
	Backend string
	Config  string
}

func processInput(data []string) (*Input, error) {
	inp := &Input{NSpin: 1}
	var atoms bool
	for i := 0; i < len(data); i++ {
		words := strings.Fields(data[i])
		if len(words) == 0 || strings.HasPrefix(words[0], "#") {
			continue
		}
		key := strings.ToLower(words[0])
		if key == "atoms" {
			end, err := findBlockEnd(i, data, "Atoms")
			if err != nil {
				return nil, err
			}
			OutputLogger.Print("Parsing input. Atoms block found at lines ", i, " -- ", end, ".")
			if err := inp.addAtoms(data, i+1, end-1); err != nil {
				return nil, err
			}
			atoms = true
			i = end
			continue
		}
		if len(words) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q needs a value", errInput, i+1, words[0])
		}
		switch key {
		case "nspin":
			n, err := strconv.Atoi(words[1])
			if err != nil || (n != 1 && n != 2) {
				return nil, fmt.Errorf("%w: line %d: nspin %q", errInput, i+1, words[1])
			}
			inp.NSpin = n
		case "nprocs":
			n, err := strconv.Atoi(words[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w: line %d: nprocs %q", errInput, i+1, words[1])
			}
			inp.NProcs = n
			OutputLogger.Print("Parsing input. Number of workers set to " + words[1] + ".")
		case "xc":
			switch strings.ToLower(words[1]) {
			case "gga":
			case "mgga":
				inp.Meta = true
			default:
				return nil, fmt.Errorf("%w: line %d: xc %q", errInput, i+1, words[1])
			}
		case "backend":
			inp.Backend = strings.ToLower(words[1])
		case "config":
			inp.Config = words[1]
		default:
			return nil, fmt.Errorf("%w: line %d: unknown keyword %q", errInput, i+1, words[0])
		}
	}
	if !atoms {
		return nil, fmt.Errorf("%w: no Atoms found", errInput)
	}
	return inp, nil
}

func findBlockEnd(n int, data []string, bname string) (int, error) {
	for i := n; i < len(data); i++ {
		words := strings.Fields(data[i])
		if len(words) > 0 && strings.ToLower(words[0]) == "end" {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no end of block %s", errInput, bname)
}

func (inp *Input) addAtoms(data []string, start, end int) error {
	for i := start; i <= end; i++ {
		words := strings.Fields(data[i])
		if len(words) == 0 || strings.HasPrefix(words[0], "#") {
			continue
		}
		z, ok := ElemData.Lookup(words[0])
		if !ok {
			return fmt.Errorf("%w: line %d: unknown element %q", errInput, i+1, words[0])
		}
		zeta := 1.0
		if len(words) > 1 {
			v, err := strconv.ParseFloat(words[1], 64)
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: line %d: exponent %q", errInput, i+1, words[1])
			}
			zeta = v
		}
		inp.Atoms = append(inp.Atoms, atomSpec{Symbol: words[0], Z: z, Zeta: zeta})
	}
	if len(inp.Atoms) == 0 {
		return fmt.Errorf("%w: empty Atoms block", errInput)
	}
	return nil
}
