// basis_test.go --  This file is part of goCIDER project.
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

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/gocider/radial"
)

func TestETB(t *testing.T) {
	e, err := ETB(0.125, 500, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, e[0], 1e-15)
	assert.Equal(t, 500.0, e[len(e)-1])
	for i := 1; i < len(e); i++ {
		assert.LessOrEqual(t, e[i]/e[i-1], 2.0+1e-12)
		assert.InDelta(t, e[1]/e[0], e[i]/e[i-1], 1e-9)
	}

	d, err := DeltaExponents(600, 2.5, 1.8)
	require.NoError(t, err)
	assert.Equal(t, 600.0, d[0])
	assert.InDelta(t, 2.5, d[len(d)-1], 1e-12)

	_, err = ETB(1, 0.5, 2)
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestAlphaLadderAndNalpha(t *testing.T) {
	alphas, err := AlphaLadder(300, 1.8, 12)
	require.NoError(t, err)
	require.Len(t, alphas, 12)
	assert.InDelta(t, 300, alphas[11], 1e-9)
	assert.InDelta(t, 1.8, alphas[1]/alphas[0], 1e-12)

	tests := []struct {
		name   string
		Z      int
		global bool
	}{
		{"hydrogen", 1, true},
		{"neon", 10, false},
		{"zinc", 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, encut0, err := AtomNalpha(tt.Z, alphas, 1.8)
			require.NoError(t, err)
			encut := float64(tt.Z*tt.Z) * 20
			if tt.global {
				assert.Equal(t, len(alphas), n)
				assert.Equal(t, alphas[11], encut0)
				return
			}
			assert.Greater(t, n, len(alphas))
			assert.GreaterOrEqual(t, encut0, encut-1e-6)
			assert.Less(t, encut0/1.8, encut)
			ext := Extend(alphas, 1.8, n)
			assert.InDelta(t, encut0, ext[n-1], 1e-9*encut0)
			assert.Equal(t, alphas[5], ext[5])
		})
	}

	_, _, err = AtomNalpha(-1, alphas, 1.8)
	assert.True(t, errors.Is(err, ErrInvalidZ))
}

func TestShellTables(t *testing.T) {
	tests := []struct {
		Z          int
		aug        bool
		nj, lmax   int
		firstNBLoc []int
	}{
		{1001, true, 19, 4, []int{0, 5, 9}},
		{26, true, 14, 4, []int{0, 4, 7}},
		{1, true, 9, 4, []int{0, 3, 5}},
		{0, true, 4, 2, []int{0, 2, 3}},
		{101, false, 14, 4, []int{0, 4, 7}},
		{26, false, 9, 4, []int{0, 3, 5}},
		{0, false, 4, 2, []int{0, 2, 3}},
	}
	for _, tt := range tests {
		var s *Shells
		var err error
		if tt.aug {
			s, err = AugShells(tt.Z)
		} else {
			s, err = SmoothShells(tt.Z)
		}
		require.NoError(t, err)
		assert.Equal(t, tt.nj, s.NJ(), "Z=%d", tt.Z)
		assert.Equal(t, tt.lmax, s.LMax())
		assert.Equal(t, tt.firstNBLoc, s.NBasLoc[:3])
		ni := 0
		for _, l := range s.L {
			ni += 2*l + 1
		}
		assert.Equal(t, ni, s.NI())
		for i := range s.LM {
			l := s.L[s.J[i]]
			assert.GreaterOrEqual(t, s.LM[i], l*l)
			assert.Less(t, s.LM[i], (l+1)*(l+1))
		}
	}
	s, err := SmoothShells(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, s.Projectors(0))
	assert.Nil(t, s.Projectors(9))
	_, err = SmoothShells(-3)
	assert.Error(t, err)
}

func TestWindowFunctions(t *testing.T) {
	r := radial.Equidistant(1.2, 4001)
	h := r[1] - r[0]
	for _, f := range []func(int, []float64, float64) []float64{PFunc2, FFunc3} {
		for _, n := range []int{0, 1, 4} {
			p := f(n, r, 1.0)
			s := 0.0
			for g := range r {
				s += p[g] * p[g] * r[g] * r[g] * h
			}
			assert.InDelta(t, 1.0, s, 1e-4)
			assert.Equal(t, 0.0, p[len(p)-1])
		}
	}

	filt := Filt([]float64{0, 0.5, 1, 1.5}, 1)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0, 0}, filt, 1e-14)
	fcut := Fcut([]float64{0.5, 1, 1.5, 2, 2.5}, 1, 2)
	assert.InDeltaSlice(t, []float64{1, 1, 0.5, 0, 0}, fcut, 1e-14)
}

func TestGaussianFT(t *testing.T) {
	r := radial.Equidistant(12, 6001)
	h := r[1] - r[0]
	for l := 0; l <= 3; l++ {
		a := 0.7
		nrm := GaussianNorm(l, a)
		s := 0.0
		for _, rg := range r {
			v := nrm * Gaussian(l, a, rg)
			s += v * v * rg * rg * h
		}
		assert.InDelta(t, 1.0, s, 1e-6)
		for _, k := range []float64{0.3, 1.5, 4} {
			num := 0.0
			for _, rg := range r {
				num += radial.SphBessel(l, k*rg) * Gaussian(l, a, rg) * rg * rg * h
			}
			assert.InDelta(t, 4*math.Pi*num, GaussianFT(l, a, k), 1e-6)
		}
	}
	assert.Equal(t, 1.0, KernelFT(3, 0))
}
