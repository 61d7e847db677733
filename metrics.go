package authguard

import "sync/atomic"

// MetricID identifies one Guard counter.
type MetricID uint16

const (
	// MetricRateLimitAllowed counts requests admitted by the limiter.
	MetricRateLimitAllowed MetricID = iota
	// MetricRateLimitDenied counts requests denied by the limiter.
	MetricRateLimitDenied
	// MetricRateLimitFailOpen counts rate-limit checks allowed because
	// the store was unreachable.
	MetricRateLimitFailOpen
	// MetricLockoutTriggered counts failures that crossed the
	// lockout threshold.
	MetricLockoutTriggered
	// MetricLockoutDenied counts checks that found a live lockout.
	MetricLockoutDenied
	// MetricLockoutFailOpen counts lockout checks allowed because the
	// store was unreachable.
	MetricLockoutFailOpen
	// MetricLockoutCleared counts explicit failure-budget resets.
	MetricLockoutCleared
	// MetricSuspicionFlagged counts assessments at or above the
	// suspicion threshold.
	MetricSuspicionFlagged
	// MetricSessionCreated counts sessions registered.
	MetricSessionCreated
	// MetricSessionEvicted counts sessions removed by the per-user cap.
	MetricSessionEvicted
	// MetricSessionExpired counts sessions removed by lazy expiry.
	MetricSessionExpired
	// MetricSessionDeleted counts explicit session deletions,
	// including logout-everywhere.
	MetricSessionDeleted
	// MetricSessionFailClosed counts session operations degraded to
	// "not authenticated" because the store was unreachable.
	MetricSessionFailClosed
	// MetricCSRFIssued counts CSRF tokens issued.
	MetricCSRFIssued
	// MetricCSRFRejected counts CSRF verifications that failed.
	MetricCSRFRejected

	metricCount
)

var metricNames = [metricCount]string{
	MetricRateLimitAllowed:  "rate_limit_allowed",
	MetricRateLimitDenied:   "rate_limit_denied",
	MetricRateLimitFailOpen: "rate_limit_fail_open",
	MetricLockoutTriggered:  "lockout_triggered",
	MetricLockoutDenied:     "lockout_denied",
	MetricLockoutFailOpen:   "lockout_fail_open",
	MetricLockoutCleared:    "lockout_cleared",
	MetricSuspicionFlagged:  "suspicion_flagged",
	MetricSessionCreated:    "session_created",
	MetricSessionEvicted:    "session_evicted",
	MetricSessionExpired:    "session_expired",
	MetricSessionDeleted:    "session_deleted",
	MetricSessionFailClosed: "session_fail_closed",
	MetricCSRFIssued:        "csrf_issued",
	MetricCSRFRejected:      "csrf_rejected",
}

// MetricName returns the stable exposition name for a metric id.
func MetricName(id MetricID) string {
	if id >= metricCount {
		return ""
	}
	return metricNames[id]
}

// MetricIDs returns every defined metric id, in exposition order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, metricCount)
	for i := range ids {
		ids[i] = MetricID(i)
	}
	return ids
}

// MetricsSnapshot is a point-in-time copy of every Guard counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// metricsRegistry is a fixed array of lock-free counters. Increment is
// a single atomic add; snapshots copy, never reset.
type metricsRegistry struct {
	counters [metricCount]atomic.Uint64
}

func (m *metricsRegistry) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *metricsRegistry) add(id MetricID, n uint64) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(n)
}

func (m *metricsRegistry) snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricCount),
	}
	if m == nil {
		return snap
	}
	for i := range m.counters {
		snap.Counters[MetricID(i)] = m.counters[i].Load()
	}
	return snap
}
