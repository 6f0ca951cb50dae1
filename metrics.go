package smr

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace   = "smr"
	labelScheme = "scheme"
	labelDomain = "domain"
)

var (
	// NumRetired has cumulative count of retired nodes
	NumRetired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_retired",
	}, []string{labelScheme, labelDomain})
	// NumDisposed has cumulative count of disposer calls
	NumDisposed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_disposed",
	}, []string{labelScheme, labelDomain})
	// NumDeferred has cumulative count of retired nodes a scan found guarded
	NumDeferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_deferred",
	}, []string{labelScheme, labelDomain})
	NumScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_scans",
	}, []string{labelScheme, labelDomain})
	NumHelpScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_help_scans",
	}, []string{labelScheme, labelDomain})
	// NumAdopted has cumulative count of retired nodes taken over from detached threads
	NumAdopted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_adopted",
	}, []string{labelScheme, labelDomain})
	NumDisposeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "num_dispose_failures",
	}, []string{labelScheme, labelDomain})
	AttachedThreads = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "attached_threads",
	}, []string{labelScheme, labelDomain})
)

type MetricsSet struct {
	scheme, name    string
	Retired         prometheus.Counter
	Disposed        prometheus.Counter
	Deferred        prometheus.Counter
	Scans           prometheus.Counter
	HelpScans       prometheus.Counter
	Adopted         prometheus.Counter
	DisposeFailures prometheus.Counter
	Attached        prometheus.Gauge
}

func NewMetricsSet(scheme, domain string) *MetricsSet {
	return &MetricsSet{
		scheme:          scheme,
		name:            domain,
		Retired:         NumRetired.WithLabelValues(scheme, domain),
		Disposed:        NumDisposed.WithLabelValues(scheme, domain),
		Deferred:        NumDeferred.WithLabelValues(scheme, domain),
		Scans:           NumScans.WithLabelValues(scheme, domain),
		HelpScans:       NumHelpScans.WithLabelValues(scheme, domain),
		Adopted:         NumAdopted.WithLabelValues(scheme, domain),
		DisposeFailures: NumDisposeFailures.WithLabelValues(scheme, domain),
		Attached:        AttachedThreads.WithLabelValues(scheme, domain),
	}
}

// Delete drops the series of this set from every vector. Collectors call it on Close so a process creating many short-lived domains doesn't grow the registry. Domains sharing a name share series, and lose them together.
func (m *MetricsSet) Delete() {
	for _, v := range []*prometheus.CounterVec{NumRetired, NumDisposed, NumDeferred, NumScans, NumHelpScans, NumAdopted, NumDisposeFailures} {
		v.DeleteLabelValues(m.scheme, m.name)
	}
	AttachedThreads.DeleteLabelValues(m.scheme, m.name)
}

// These variables are global and have cumulative values for all domains.
func init() {
	prometheus.MustRegister(NumRetired)
	prometheus.MustRegister(NumDisposed)
	prometheus.MustRegister(NumDeferred)
	prometheus.MustRegister(NumScans)
	prometheus.MustRegister(NumHelpScans)
	prometheus.MustRegister(NumAdopted)
	prometheus.MustRegister(NumDisposeFailures)
	prometheus.MustRegister(AttachedThreads)
}
