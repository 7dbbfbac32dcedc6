// Package metrics exposes Prometheus collectors for lifecycle operations.
// Registration is optional; unregistered collectors still accept updates and
// simply go nowhere.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	initsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "lifecycle",
		Name:      "inits_total",
		Help:      "Number of successful data directory initializations.",
	})
	startsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "lifecycle",
		Name:      "starts_total",
		Help:      "Number of successful server starts.",
	})
	stopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "lifecycle",
		Name:      "stops_total",
		Help:      "Number of successful graceful stops.",
	})
	killsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "lifecycle",
		Name:      "kills_total",
		Help:      "Number of forced kills after graceful stop failed.",
	})
	probeAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "probe",
		Name:      "attempts_total",
		Help:      "Number of readiness probe connection attempts.",
	})
	probeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tinypg",
		Subsystem: "probe",
		Name:      "failures_total",
		Help:      "Number of readiness probes that exhausted all attempts.",
	})
	acquireDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tinypg",
		Subsystem: "lifecycle",
		Name:      "acquire_duration_seconds",
		Help:      "Time from initdb through confirmed readiness.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register registers all collectors with r. Safe to call multiple times;
// calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		initsTotal, startsTotal, stopsTotal, killsTotal,
		probeAttempts, probeFailures, acquireDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the promhttp handler for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncInit()         { initsTotal.Inc() }
func IncStart()        { startsTotal.Inc() }
func IncStop()         { stopsTotal.Inc() }
func IncKill()         { killsTotal.Inc() }
func IncProbeAttempt() { probeAttempts.Inc() }
func IncProbeFailure() { probeFailures.Inc() }

// ObserveAcquire records the acquire duration in seconds.
func ObserveAcquire(d time.Duration) { acquireDuration.Observe(d.Seconds()) }
