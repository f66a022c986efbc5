package observer

import (
	"github.com/rcrowley/go-metrics"
)

const (
	notifyEpsName        = "notify_eps"
	tickEpsName          = "tick_eps"
	callbackFailuresName = "observer_callback_failures"
	observersName        = "observers"
)

type subjectMetrics struct {
	notifyEps        metrics.Meter
	tickEps          metrics.Meter
	callbackFailures metrics.Counter
	observers        metrics.Gauge
}

func newSubjectMetrics(r metrics.Registry) *subjectMetrics {
	return &subjectMetrics{
		notifyEps:        metrics.GetOrRegisterMeter(notifyEpsName, r),
		tickEps:          metrics.GetOrRegisterMeter(tickEpsName, r),
		callbackFailures: metrics.GetOrRegisterCounter(callbackFailuresName, r),
		observers:        metrics.GetOrRegisterGauge(observersName, r),
	}
}
