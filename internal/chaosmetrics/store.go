package chaosmetrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Config controls retention and background maintenance of the metric store.
type Config struct {
	MaxPointsPerMetric  int
	Retention           time.Duration
	AggregationInterval time.Duration
	CleanupInterval     time.Duration
	BucketSize          time.Duration
}

// DefaultConfig returns the retention defaults.
func DefaultConfig() Config {
	return Config{
		MaxPointsPerMetric:  1000,
		Retention:           7 * 24 * time.Hour,
		AggregationInterval: time.Minute,
		CleanupInterval:     time.Hour,
		BucketSize:          5 * time.Minute,
	}
}

// Bucket holds pre-aggregated values for one fixed time window.
type Bucket struct {
	Start time.Time
	Count int
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// Store is a bounded in-memory time-series store. Points are kept per metric
// name, most recent first. All other components report into it; it depends on
// nothing.
type Store struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	cfg     Config
	points  map[string][]models.MetricPoint
	buckets map[string][]Bucket

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewStore constructs a metric store. Call Start to arm background
// aggregation and retention cleanup.
func NewStore(logger *slog.Logger, cfg Config) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPointsPerMetric <= 0 {
		cfg.MaxPointsPerMetric = DefaultConfig().MaxPointsPerMetric
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.AggregationInterval <= 0 {
		cfg.AggregationInterval = DefaultConfig().AggregationInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = DefaultConfig().BucketSize
	}
	return &Store{
		logger:  logger,
		cfg:     cfg,
		points:  make(map[string][]models.MetricPoint),
		buckets: make(map[string][]Bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Record appends one sample to the named series.
func (s *Store) Record(name string, value float64, tags map[string]string) {
	if name == "" {
		return
	}
	point := models.MetricPoint{Timestamp: time.Now().UTC(), Value: value, Tags: tags}

	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.points[name]
	// Newest first; trim the tail when the bound is exceeded.
	series = append([]models.MetricPoint{point}, series...)
	if len(series) > s.cfg.MaxPointsPerMetric {
		series = series[:s.cfg.MaxPointsPerMetric]
	}
	s.points[name] = series
}

// GetMetrics returns the points for a metric inside the trailing window,
// newest first. Unknown metrics yield an empty slice, never an error.
func (s *Store) GetMetrics(name string, r models.TimeRange) []models.MetricPoint {
	cutoff := time.Now().UTC().Add(-r.Window())

	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.points[name]
	filtered := make([]models.MetricPoint, 0, len(series))
	for _, point := range series {
		if point.Timestamp.Before(cutoff) {
			continue
		}
		filtered = append(filtered, point)
	}
	return filtered
}

// MetricNames returns all currently retained metric names.
func (s *Store) MetricNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.points))
	for name := range s.points {
		names = append(names, name)
	}
	return names
}

// Buckets returns the pre-aggregated windows for a metric, oldest first.
func (s *Store) Buckets(name string) []Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bucket(nil), s.buckets[name]...)
}

// Start launches background aggregation and retention cleanup. Errors inside
// a tick are logged and never stop future ticks.
func (s *Store) Start() {
	go func() {
		aggregate := time.NewTicker(s.cfg.AggregationInterval)
		cleanup := time.NewTicker(s.cfg.CleanupInterval)
		defer aggregate.Stop()
		defer cleanup.Stop()
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				return
			case <-aggregate.C:
				s.aggregate()
			case <-cleanup.C:
				s.cleanup()
			}
		}
	}()
}

// Close stops background maintenance.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// aggregate buckets every metric's points into fixed-size windows.
func (s *Store) aggregate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, series := range s.points {
		byWindow := make(map[time.Time]*Bucket)
		for _, point := range series {
			start := point.Timestamp.Truncate(s.cfg.BucketSize)
			bucket, ok := byWindow[start]
			if !ok {
				bucket = &Bucket{Start: start, Min: point.Value, Max: point.Value}
				byWindow[start] = bucket
			}
			bucket.Count++
			bucket.Sum += point.Value
			if point.Value < bucket.Min {
				bucket.Min = point.Value
			}
			if point.Value > bucket.Max {
				bucket.Max = point.Value
			}
		}
		buckets := make([]Bucket, 0, len(byWindow))
		for _, bucket := range byWindow {
			bucket.Avg = bucket.Sum / float64(bucket.Count)
			buckets = append(buckets, *bucket)
		}
		sortBucketsByStart(buckets)
		s.buckets[name] = buckets
	}
}

// cleanup prunes points older than the retention period and drops metrics
// whose retained list becomes empty.
func (s *Store) cleanup() {
	cutoff := time.Now().UTC().Add(-s.cfg.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, series := range s.points {
		kept := series[:0]
		for _, point := range series {
			if point.Timestamp.Before(cutoff) {
				continue
			}
			kept = append(kept, point)
		}
		if len(kept) == 0 {
			delete(s.points, name)
			delete(s.buckets, name)
			continue
		}
		s.points[name] = kept
	}
}
