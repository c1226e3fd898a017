package chaosmetrics

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Statistics summarises one metric over a time range.
type Statistics struct {
	Metric string
	Count  int
	Min    float64
	Max    float64
	Avg    float64
	P50    float64
	P95    float64
	P99    float64
	StdDev float64
}

// GetStatistics computes summary statistics over the filtered point set.
// An empty series yields a zeroed Statistics, never an error.
func (s *Store) GetStatistics(name string, r models.TimeRange) Statistics {
	points := s.GetMetrics(name, r)
	stats := Statistics{Metric: name, Count: len(points)}
	if len(points) == 0 {
		return stats
	}

	values := make([]float64, 0, len(points))
	sum := 0.0
	for _, point := range points {
		values = append(values, point.Value)
		sum += point.Value
	}
	sort.Float64s(values)

	stats.Min = values[0]
	stats.Max = values[len(values)-1]
	stats.Avg = sum / float64(len(values))
	stats.P50 = percentile(values, 0.50)
	stats.P95 = percentile(values, 0.95)
	stats.P99 = percentile(values, 0.99)

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-stats.Avg, 2)
	}
	variance /= float64(len(values))
	stats.StdDev = math.Sqrt(variance)
	return stats
}

// percentile is nearest-rank over an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortBucketsByStart(buckets []Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
}

// countSince tallies points newer than the cutoff; callers hold no lock.
func (s *Store) countSince(name string, window time.Duration) int {
	cutoff := time.Now().UTC().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, point := range s.points[name] {
		if point.Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return count
}
