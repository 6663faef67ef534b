// field_test.go --  This file is part of goCIDER project.
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
package field

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRadialAliasesStorage(t *testing.T) {
	f := New(2, 3, 4, 5)
	r := f.Radial(1, 2, 3)
	require.Len(t, r, 5)
	r[4] = 7
	assert.Equal(t, 7.0, f.At(1, 2, 3, 4))
	f.AddAt(1, 2, 3, 4, 1)
	assert.Equal(t, 8.0, r[4])
}

func TestArithmetic(t *testing.T) {
	a := New(1, 2, 2, 3)
	b := New(1, 2, 2, 3)
	for i := range a.Data {
		a.Data[i] = float64(i)
		b.Data[i] = 1
	}
	require.NoError(t, a.Add(b))
	assert.Equal(t, 1.0, a.Data[0])
	require.NoError(t, a.AddScaled(-2, b))
	assert.Equal(t, -1.0, a.Data[0])
	d, err := a.Dot(b)
	require.NoError(t, err)
	assert.InDelta(t, 54.0, d, 1e-12)

	c := New(1, 2, 3, 3)
	err = a.Add(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestTruncateAndAddChannels(t *testing.T) {
	f := New(1, 1, 3, 2)
	for i := range f.Data {
		f.Data[i] = float64(i + 1)
	}
	tr := f.Truncate(2)
	assert.Equal(t, [4]int{1, 1, 2, 2}, tr.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, tr.Data)

	require.NoError(t, f.AddChannels(tr))
	assert.Equal(t, []float64{2, 4, 6, 8, 5, 6}, f.Data)
}

func TestScaleRadial(t *testing.T) {
	f := New(1, 2, 1, 3)
	for i := range f.Data {
		f.Data[i] = 1
	}
	require.NoError(t, f.ScaleRadial([]float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 2, 3, 1, 2, 3}, f.Data)
	require.Error(t, f.ScaleRadial([]float64{1}))
}
