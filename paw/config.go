// config.go --  This file is part of goCIDER project.
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
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"example.com/gocider/conv"
)

// SBTConfig sets the reciprocal grid of the spherical Bessel transforms.
type SBTConfig struct {
	Encut   float64 `json:"encut" yaml:"encut"`
	NPoints int     `json:"npoints" yaml:"npoints"`
	D       float64 `json:"d" yaml:"d"`
}

// AngularConfig sets the angular product quadrature.
type AngularConfig struct {
	NTheta int `json:"ntheta" yaml:"ntheta"`
	NPhi   int `json:"nphi" yaml:"nphi"`
}

type Config struct {
	Backend     conv.Backend  `json:"backend" yaml:"backend"`
	OverlapFit  bool          `json:"overlap_fit" yaml:"overlap_fit"`
	StoreFuncs  bool          `json:"store_funcs" yaml:"store_funcs"`
	NAlpha      int           `json:"nalpha" yaml:"nalpha"`
	QMax        float64       `json:"qmax" yaml:"qmax"`
	Lambd       float64       `json:"lambd" yaml:"lambd"`
	FeatureLMax int           `json:"feature_lmax" yaml:"feature_lmax"`
	Workers     int           `json:"workers" yaml:"workers"`
	ETBRatio    float64       `json:"etb_ratio" yaml:"etb_ratio"`
	SBT         SBTConfig     `json:"sbt" yaml:"sbt"`
	Angular     AngularConfig `json:"angular" yaml:"angular"`
}

func DefaultConfig() Config {
	return Config{
		Backend:     conv.ReciprocalBackend,
		OverlapFit:  true,
		StoreFuncs:  false,
		NAlpha:      12,
		QMax:        300,
		Lambd:       1.8,
		FeatureLMax: 4,
		Workers:     runtime.GOMAXPROCS(0),
		ETBRatio:    2.0,
		SBT:         SBTConfig{Encut: 5e4, NPoints: 512, D: 0.025},
		Angular:     AngularConfig{NTheta: 8, NPhi: 12},
	}
}

// AngularLMax is the harmonic degree the angular quadrature is built for.
// Densities from d waves need degree 4.
func (c Config) AngularLMax() int { return max(c.FeatureLMax, 4) }

func (c Config) Validate() error {
	var errs []error
	if _, err := conv.ParseBackend(string(c.Backend)); err != nil {
		errs = append(errs, err)
	}
	if c.NAlpha < 1 {
		errs = append(errs, fmt.Errorf("nalpha=%d", c.NAlpha))
	}
	if c.QMax <= 0 {
		errs = append(errs, fmt.Errorf("qmax=%g", c.QMax))
	}
	if c.Lambd <= 1 {
		errs = append(errs, fmt.Errorf("lambd=%g must exceed 1", c.Lambd))
	}
	if c.FeatureLMax < 0 {
		errs = append(errs, fmt.Errorf("feature_lmax=%d", c.FeatureLMax))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers=%d", c.Workers))
	}
	if c.ETBRatio <= 1 {
		errs = append(errs, fmt.Errorf("etb_ratio=%g must exceed 1", c.ETBRatio))
	}
	if c.SBT.Encut <= 0 || c.SBT.NPoints < 2 || c.SBT.D <= 0 {
		errs = append(errs, fmt.Errorf("sbt grid %+v", c.SBT))
	}
	lmax := c.AngularLMax()
	if c.Angular.NTheta <= lmax || c.Angular.NPhi <= 2*lmax {
		errs = append(errs, fmt.Errorf("angular grid %dx%d too coarse for l=%d", c.Angular.NTheta, c.Angular.NPhi, lmax))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads a YAML config on top of DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return DecodeConfig(f)
}

func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
