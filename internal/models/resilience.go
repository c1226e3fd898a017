package models

import "time"

// ResilienceMetrics is one sampled measurement of system fault tolerance.
// MTTR and MTBF are expressed in milliseconds.
type ResilienceMetrics struct {
	ID                     string
	Timestamp              time.Time
	MTTR                   float64
	MTBF                   float64
	Availability           float64
	FaultToleranceScore    float64
	RecoverySuccessRate    float64
	CascadeResistance      float64
	PerformanceDegradation float64
	DataConsistencyScore   float64
	FailoverEffectiveness  float64
	CircuitBreakerCoverage float64
}

// MetricPoint is one sample in a named time series.
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// TimeRange selects a trailing window over metric history.
type TimeRange string

const (
	RangeLastMinute TimeRange = "last_minute"
	RangeLastHour   TimeRange = "last_hour"
	RangeLastDay    TimeRange = "last_day"
	RangeLastWeek   TimeRange = "last_week"
)

// Window converts a TimeRange into a duration, defaulting to an hour.
func (r TimeRange) Window() time.Duration {
	switch r {
	case RangeLastMinute:
		return time.Minute
	case RangeLastDay:
		return 24 * time.Hour
	case RangeLastWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
