// metrics.go --  This file is part of goCIDER project.
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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gocider.paw")

var (
	// stageDuration is the wall time of one stage call over all atoms.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gocider",
		Subsystem: "paw",
		Name:      "stage_duration_seconds",
		Help:      "Duration of feature, energy and potential stages",
		Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 8),
	}, []string{"stage"})

	setupBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gocider",
		Subsystem: "paw",
		Name:      "setup_builds_total",
		Help:      "Per-species setups built",
	}, []string{"z", "status"})

	degenerate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gocider",
		Subsystem: "projection",
		Name:      "degenerate_total",
		Help:      "Ill-conditioned projection fit matrices",
	}, []string{"z", "l"})
)

func zLabel(z int) string { return strconv.Itoa(z) }
