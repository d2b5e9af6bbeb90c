package metrics

import "time"

// IncAuthRejection counts an access gate rejection.
func (m *ServerMetrics) IncAuthRejection(reason string) {
	m.authRejections.WithLabelValues(reason).Inc()
}

// IncLocaleResolution counts one resolver outcome.
func (m *ServerMetrics) IncLocaleResolution(outcome string) {
	m.localeResolutions.WithLabelValues(outcome).Inc()
}

// ObserveAggregation records how long a site document took. failedSlot is
// empty on success.
func (m *ServerMetrics) ObserveAggregation(d time.Duration, failedSlot string) {
	result := "ok"
	if failedSlot != "" {
		result = "error"
		m.slotFailures.WithLabelValues(failedSlot).Inc()
	}
	m.aggregationDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncCacheRequest counts a cache lookup by result.
func (m *ServerMetrics) IncCacheRequest(result string) {
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncWatcherPolls()                    { m.watcherPollsTotal.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()                    { m.watcherSwapsTotal.Inc() }
func (m *ServerMetrics) IncWatcherError(errType string)      { m.watcherErrorsTotal.WithLabelValues(errType).Inc() }
func (m *ServerMetrics) ObserveBundleLoadDuration(s float64) { m.bundleLoadDuration.Observe(s) }
func (m *ServerMetrics) SetWatcherLastSuccess(unix float64)  { m.watcherLastSuccessTs.Set(unix) }
func (m *ServerMetrics) SetWatcherStale(stale bool)          { m.watcherStale.Set(boolGauge(stale)) }
