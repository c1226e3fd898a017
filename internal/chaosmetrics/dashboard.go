package chaosmetrics

import (
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Dashboard carries the precomputed rollups consumed by external dashboards.
type Dashboard struct {
	GeneratedAt             time.Time          `json:"generated_at"`
	FaultsByType            map[string]int     `json:"faults_by_type"`
	FaultsBySeverity        map[string]int     `json:"faults_by_severity"`
	AvgBlastRadius          float64            `json:"avg_blast_radius"`
	AvgCascadeDepth         float64            `json:"avg_cascade_depth"`
	RecoveryTimeByComponent map[string]float64 `json:"recovery_time_by_component"`
	ExperimentSuccessRate   float64            `json:"experiment_success_rate"`
	FaultsLastMinute        int                `json:"faults_last_minute"`
	FaultsLastHour          int                `json:"faults_last_hour"`
	FaultsLastDay           int                `json:"faults_last_day"`
}

// GetDashboardData computes the rollups from retained history. Empty history
// yields zeroed structures, never an error.
func (s *Store) GetDashboardData() Dashboard {
	dash := Dashboard{
		GeneratedAt:             time.Now().UTC(),
		FaultsByType:            make(map[string]int),
		FaultsBySeverity:        make(map[string]int),
		RecoveryTimeByComponent: make(map[string]float64),
	}

	for _, point := range s.GetMetrics("fault.injected", models.RangeLastWeek) {
		dash.FaultsByType[point.Tags["type"]]++
		dash.FaultsBySeverity[point.Tags["severity"]]++
	}

	if stats := s.GetStatistics("cascade.blast_radius", models.RangeLastWeek); stats.Count > 0 {
		dash.AvgBlastRadius = stats.Avg
	}
	if stats := s.GetStatistics("cascade.depth", models.RangeLastWeek); stats.Count > 0 {
		dash.AvgCascadeDepth = stats.Avg
	}

	recoverySums := make(map[string]float64)
	recoveryCounts := make(map[string]int)
	for _, point := range s.GetMetrics("recovery.duration", models.RangeLastWeek) {
		component := point.Tags["component"]
		recoverySums[component] += point.Value
		recoveryCounts[component]++
	}
	for component, sum := range recoverySums {
		dash.RecoveryTimeByComponent[component] = sum / float64(recoveryCounts[component])
	}

	if stats := s.GetStatistics("experiment.success", models.RangeLastWeek); stats.Count > 0 {
		dash.ExperimentSuccessRate = stats.Avg
	}

	dash.FaultsLastMinute = s.countSince("fault.injected", time.Minute)
	dash.FaultsLastHour = s.countSince("fault.injected", time.Hour)
	dash.FaultsLastDay = s.countSince("fault.injected", 24*time.Hour)
	return dash
}
