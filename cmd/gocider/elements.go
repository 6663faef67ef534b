// elements.go --  This file is part of goCIDER project.
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
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

//go:embed data/mendeleev.csv
var mendeleevCSV string

type Mendeleev struct {
	Z          []int
	Symb, Name []string
	Mass       []float64
}

var ElemData Mendeleev

func init() {
	if err := ElemData.build(mendeleevCSV); err != nil {
		panic(err)
	}
}

func (m *Mendeleev) build(csv string) error {
	for i, str := range strings.Split(strings.TrimSpace(csv), "\n") {
		if i == 0 {
			continue
		}
		words := strings.Split(strings.TrimSpace(str), ",")
		if len(words) < 4 {
			return fmt.Errorf("elements: line %d: %q", i+1, str)
		}
		z, err := strconv.Atoi(words[0])
		if err != nil {
			return fmt.Errorf("elements: line %d: %w", i+1, err)
		}
		mass, err := strconv.ParseFloat(words[3], 64)
		if err != nil {
			return fmt.Errorf("elements: line %d: %w", i+1, err)
		}
		m.Z = append(m.Z, z)
		m.Symb = append(m.Symb, words[1])
		m.Name = append(m.Name, words[2])
		m.Mass = append(m.Mass, mass)
	}
	return nil
}

// Lookup returns the atomic number of symbol, case-insensitively.
func (m *Mendeleev) Lookup(symbol string) (int, bool) {
	i := slices.IndexFunc(m.Symb, func(s string) bool { return strings.EqualFold(s, symbol) })
	if i < 0 {
		return 0, false
	}
	return m.Z[i], true
}
