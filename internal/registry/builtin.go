package registry

import "github.com/miradorstack/mirador-chaos/internal/models"

// presets builds the four severity levels from ascending parameter values.
func presets(key string, low, medium, high, critical float64, extra ...map[models.Severity]map[string]float64) map[models.Severity]map[string]float64 {
	p := map[models.Severity]map[string]float64{
		models.SeverityLow:      {key: low},
		models.SeverityMedium:   {key: medium},
		models.SeverityHigh:     {key: high},
		models.SeverityCritical: {key: critical},
	}
	for _, overlay := range extra {
		for sev, params := range overlay {
			for k, v := range params {
				p[sev][k] = v
			}
		}
	}
	return p
}

func builtinDefinitions() []models.FaultDefinition {
	return []models.FaultDefinition{
		{
			ID:          "network_latency",
			Name:        "Network latency",
			Type:        models.FaultNetworkLatency,
			Category:    "network",
			Description: "Adds artificial delay to traffic towards the target component.",
			Parameters:  map[string]models.ParameterRange{"latency_ms": {Min: 10, Max: 30000}, "jitter_ms": {Min: 0, Max: 5000}},
			Presets:     presets("latency_ms", 100, 500, 2000, 10000),
			Impact:      "Slower responses, queue growth, timeout pressure on upstream callers.",
			Mitigation:  "Timeout budgets and hedged requests on critical paths.",
			Recovery:    "Latency table entry is dropped when the fault clears.",
			Enabled:    true,
		},
		{
			ID:          "network_partition",
			Name:        "Network partition",
			Type:        models.FaultNetworkPartition,
			Category:    "network",
			Description: "Severs connectivity between the target and a subset of its peers.",
			Parameters:  map[string]models.ParameterRange{"partition_pct": {Min: 10, Max: 100}},
			Presets:     presets("partition_pct", 25, 50, 75, 100),
			Impact:      "Split-brain risk, replication lag, quorum loss at full partition.",
			Mitigation:  "Quorum-aware leadership and partition-tolerant consensus.",
			Recovery:    "Partitioned peers are reconnected on clear.",
			Enabled:    true,
		},
		{
			ID:          "process_crash",
			Name:        "Process crash",
			Type:        models.FaultProcessCrash,
			Category:    "process",
			Description: "Terminates target processes abruptly.",
			Parameters:  map[string]models.ParameterRange{"kill_count": {Min: 1, Max: 64}},
			Presets:     presets("kill_count", 1, 2, 4, 8),
			Impact:      "In-flight work lost, restart churn, cold caches.",
			Mitigation:  "Supervision with exponential backoff and idempotent handlers.",
			Recovery:    "One-shot effect; the crash completes immediately.",
			Enabled:    true,
		},
		{
			ID:          "memory_pressure",
			Name:        "Memory pressure",
			Type:        models.FaultMemoryPressure,
			Category:    "resource",
			Description: "Allocates memory on the target until the configured size is held.",
			Parameters:  map[string]models.ParameterRange{"allocated_mb": {Min: 64, Max: 16384}},
			Presets:     presets("allocated_mb", 256, 1024, 4096, 8192),
			Impact:      "GC pauses, OOM kills at critical levels, page cache eviction.",
			Mitigation:  "Memory limits with headroom and load shedding.",
			Recovery:    "Held allocations are released when the fault clears.",
			Enabled:    true,
		},
		{
			ID:          "cpu_throttle",
			Name:        "CPU throttle",
			Type:        models.FaultCPUThrottle,
			Category:    "resource",
			Description: "Spins busy threads to steal CPU from the target.",
			Parameters:  map[string]models.ParameterRange{"cpu_threads": {Min: 1, Max: 128}},
			Presets: presets("cpu_threads", 1, 2, 4, 8, map[models.Severity]map[string]float64{
				models.SeverityLow:      {"cpu_pct": 25},
				models.SeverityMedium:   {"cpu_pct": 50},
				models.SeverityHigh:     {"cpu_pct": 80},
				models.SeverityCritical: {"cpu_pct": 95},
			}),
			Impact:     "Scheduling delay, missed deadlines, latency amplification.",
			Mitigation: "CPU quotas and priority classes for latency-sensitive work.",
			Recovery:   "Busy threads stop when the fault clears.",
			Enabled:    true,
		},
		{
			ID:          "disk_failure",
			Name:        "Disk failure",
			Type:        models.FaultDiskFailure,
			Category:    "storage",
			Description: "Fails a fraction of disk operations on the target.",
			Parameters:  map[string]models.ParameterRange{"error_rate": {Min: 0.01, Max: 1}},
			Presets:     presets("error_rate", 0.05, 0.2, 0.5, 1.0),
			Impact:      "Write stalls, WAL corruption risk, read-only fallback.",
			Mitigation:  "Replicated storage and checksummed writes.",
			Recovery:    "The failure table entry is dropped on clear.",
			Enabled:    true,
		},
		{
			ID:          "byzantine_fault",
			Name:        "Byzantine fault",
			Type:        models.FaultByzantine,
			Category:    "consistency",
			Description: "Makes the target return wrong-but-plausible answers.",
			Parameters:  map[string]models.ParameterRange{"deviation_rate": {Min: 0.01, Max: 1}},
			Presets:     presets("deviation_rate", 0.02, 0.1, 0.3, 0.6),
			Impact:      "Silent divergence, poisoned caches, consensus disruption.",
			Mitigation:  "Cross-checking reads and byzantine-tolerant quorums.",
			Recovery:    "Deviating behaviour stops on clear; downstream caches need flushing.",
			Enabled:    true,
		},
		{
			ID:          "clock_skew",
			Name:        "Clock skew",
			Type:        models.FaultClockSkew,
			Category:    "consistency",
			Description: "Shifts the target's clock by a fixed offset.",
			Parameters:  map[string]models.ParameterRange{"skew_ms": {Min: 100, Max: 3600000}},
			Presets:     presets("skew_ms", 500, 5000, 60000, 600000),
			Impact:      "Certificate validation failures, ordering anomalies, lease misjudgement.",
			Mitigation:  "Monotonic clocks for intervals, generous lease slack.",
			Recovery:    "Clock offset is removed on clear.",
			Enabled:    true,
		},
		{
			ID:          "resource_exhaustion",
			Name:        "Resource exhaustion",
			Type:        models.FaultResourceExhaustion,
			Category:    "resource",
			Description: "Consumes connection or descriptor pools on the target.",
			Parameters:  map[string]models.ParameterRange{"connections": {Min: 10, Max: 100000}},
			Presets:     presets("connections", 100, 1000, 5000, 20000),
			Impact:      "Pool starvation, accept-queue overflow, cascading timeouts.",
			Mitigation:  "Per-client quotas and aggressive idle reaping.",
			Recovery:    "Held connections are dropped on clear.",
			Enabled:    true,
		},
		{
			ID:          "data_corruption",
			Name:        "Data corruption",
			Type:        models.FaultDataCorruption,
			Category:    "storage",
			Description: "Corrupts a fraction of payloads passing through the target.",
			Parameters:  map[string]models.ParameterRange{"corruption_rate": {Min: 0.001, Max: 1}},
			Presets:     presets("corruption_rate", 0.01, 0.05, 0.2, 0.5),
			Impact:      "Checksum failures, poisoned replicas, application-level errors.",
			Mitigation:  "End-to-end checksums and write verification.",
			Recovery:    "The corruption table entry is dropped on clear; stored damage persists.",
			Enabled:    true,
		},
		{
			ID:          "thundering_herd",
			Name:        "Thundering herd",
			Type:        models.FaultThunderingHerd,
			Category:    "load",
			Description: "Releases a burst of synchronized requests at the target.",
			Parameters:  map[string]models.ParameterRange{"burst_rps": {Min: 100, Max: 1000000}},
			Presets:     presets("burst_rps", 500, 2000, 10000, 50000),
			Impact:      "Connection storms, cache stampedes, retry amplification.",
			Mitigation:  "Request coalescing, jittered retries, admission control.",
			Recovery:    "Burst generation stops when the fault clears.",
			Enabled:    true,
		},
	}
}
