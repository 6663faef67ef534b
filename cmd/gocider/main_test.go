// main_test.go --  This file is part of goCIDER project.
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
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/gocider/feature"
	"example.com/gocider/paw"
)

func TestMain(m *testing.M) {
	setLoggers(io.Discard, slog.LevelError)
	m.Run()
}

func TestElements(t *testing.T) {
	require.Len(t, ElemData.Z, 36)
	z, ok := ElemData.Lookup("ne")
	assert.True(t, ok)
	assert.Equal(t, 10, z)
	_, ok = ElemData.Lookup("Xx")
	assert.False(t, ok)
}

func TestProcessInput(t *testing.T) {
	data := strings.Split(`# two atoms
Atoms
  H  1.2
  Ne
end
nspin 2
nprocs 3
xc mgga
backend orbital`, "\n")
	inp, err := processInput(data)
	require.NoError(t, err)
	assert.Equal(t, []atomSpec{{"H", 1, 1.2}, {"Ne", 10, 1.0}}, inp.Atoms)
	assert.Equal(t, 2, inp.NSpin)
	assert.Equal(t, 3, inp.NProcs)
	assert.True(t, inp.Meta)

	cfg, err := resolveConfig(inp, "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.EqualValues(t, "orbital", cfg.Backend)
}

func TestProcessInputErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no atoms":     "nspin 1",
		"no end":       "Atoms\n H 1.0",
		"bad element":  "Atoms\n Qq 1.0\nend",
		"bad exponent": "Atoms\n H -1\nend",
		"bad nspin":    "Atoms\n H\nend\nnspin 3",
		"unknown":      "Atoms\n H\nend\nbasis sto-3g",
	} {
		_, err := processInput(strings.Split(src, "\n"))
		assert.True(t, errors.Is(err, errInput), name)
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "dir/h2.out", outputName("dir/h2.inp"))
	assert.Equal(t, "h2.out", outputName("h2"))
}

func TestOccupations(t *testing.T) {
	for _, tc := range []struct {
		symbol  string
		z       int
		nspin   int
		valence float64
	}{
		{"H", 1, 1, 1},
		{"C", 6, 2, 4},
		{"Ne", 10, 1, 8},
	} {
		at, err := paw.HydrogenicAtom(tc.symbol, tc.z, 2)
		require.NoError(t, err)
		d := occupations(at, tc.nspin)
		require.Len(t, d, tc.nspin)
		// electron count of a diagonal density matrix
		n := 0.0
		i := 0
		for _, w := range at.AE.Waves {
			phi2 := make([]float64, len(w.Phi))
			for g, v := range w.Phi {
				phi2[g] = v * v
			}
			norm := at.Grid.Integrate(phi2) / (4 * math.Pi)
			for m := 0; m < 2*w.L+1; m++ {
				for s := range d {
					n += d[s][feature.PackedIndex(at.NI(), i+m, i+m)] * norm
				}
			}
			i += 2*w.L + 1
		}
		assert.InDelta(t, tc.valence, n, 1e-12, tc.symbol)
	}
}

func TestAppInfo(t *testing.T) {
	var buf bytes.Buffer
	setLoggers(&buf, slog.LevelError)
	defer setLoggers(io.Discard, slog.LevelError)
	appInfo("0000-run")
	out := buf.String()
	assert.Contains(t, out, "Have Fun!!!\nRun ID: 0000-run\n")
	assert.NotContains(t, out, "\n\n")
}

func TestUnpack(t *testing.T) {
	m := unpack(3, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 5.0, m.At(2, 1))
	assert.Equal(t, 3.0, m.At(0, 2))
	assert.Equal(t, 6.0, m.At(2, 2))
}
