package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the chaos engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Registry     RegistryConfig     `yaml:"registry"`
	Injector     InjectorConfig     `yaml:"injector"`
	Simulator    SimulatorConfig    `yaml:"simulator"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Graph        GraphConfig        `yaml:"graph"`
	Cache        CacheConfig        `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RegistryConfig controls fault-catalog loading.
type RegistryConfig struct {
	CatalogPath string `yaml:"catalogPath"`
}

// InjectorConfig controls fault injection behaviour.
type InjectorConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MaxConcurrentFaults int           `yaml:"maxConcurrentFaults"`
	FaultProbability    float64       `yaml:"faultProbability"`
	HistoryLimit        int           `yaml:"historyLimit"`
	Targets             []string      `yaml:"targets"`
	TickMin             time.Duration `yaml:"tickMin"`
	TickMax             time.Duration `yaml:"tickMax"`
	PolicyInterval      time.Duration `yaml:"policyInterval"`
}

// SimulatorConfig controls cascade simulation defaults.
type SimulatorConfig struct {
	MaxDepth     int           `yaml:"maxDepth"`
	Probability  float64       `yaml:"probability"`
	RecoveryTime time.Duration `yaml:"recoveryTime"`
	HistoryLimit int           `yaml:"historyLimit"`
	RulesPath    string        `yaml:"rulesPath"`
}

// AnalyzerConfig controls resilience analysis cadence.
type AnalyzerConfig struct {
	AnalysisInterval time.Duration `yaml:"analysisInterval"`
	SettleDelay      time.Duration `yaml:"settleDelay"`
	HistoryLimit     int           `yaml:"historyLimit"`
}

// OrchestratorConfig bounds experiment execution.
type OrchestratorConfig struct {
	MaxConcurrentExperiments int      `yaml:"maxConcurrentExperiments"`
	MaxActiveFaults          int      `yaml:"maxActiveFaults"`
	ProtectedTargets         []string `yaml:"protectedTargets"`
	HistoryLimit             int      `yaml:"historyLimit"`
}

// MetricsConfig controls the in-memory chaos metric store.
type MetricsConfig struct {
	MaxPointsPerMetric  int           `yaml:"maxPointsPerMetric"`
	Retention           time.Duration `yaml:"retention"`
	AggregationInterval time.Duration `yaml:"aggregationInterval"`
	CleanupInterval     time.Duration `yaml:"cleanupInterval"`
	BucketSize          time.Duration `yaml:"bucketSize"`
}

// GraphConfig selects the dependency-graph source. With a URL set the remote
// provider wins; otherwise a file path; otherwise the built-in topology.
type GraphConfig struct {
	URL      string        `yaml:"url"`
	FilePath string        `yaml:"filePath"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls Valkey-backed caching of dependency-graph snapshots.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	GraphTTL     time.Duration `yaml:"graphTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHAOS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Registry: RegistryConfig{CatalogPath: "configs/faults/default.yaml"},
		Injector: InjectorConfig{
			Enabled:             true,
			MaxConcurrentFaults: 10,
			FaultProbability:    0.1,
			HistoryLimit:        500,
			TickMin:             30 * time.Second,
			TickMax:             90 * time.Second,
			PolicyInterval:      30 * time.Second,
		},
		Simulator: SimulatorConfig{
			MaxDepth:     5,
			Probability:  0.7,
			RecoveryTime: 30 * time.Second,
			HistoryLimit: 100,
			RulesPath:    "configs/rules/propagation.yaml",
		},
		Analyzer: AnalyzerConfig{
			AnalysisInterval: time.Minute,
			SettleDelay:      500 * time.Millisecond,
			HistoryLimit:     500,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentExperiments: 3,
			MaxActiveFaults:          8,
			HistoryLimit:             200,
		},
		Metrics: MetricsConfig{
			MaxPointsPerMetric:  1000,
			Retention:           7 * 24 * time.Hour,
			AggregationInterval: time.Minute,
			CleanupInterval:     time.Hour,
			BucketSize:          5 * time.Minute,
		},
		Graph: GraphConfig{Timeout: 5 * time.Second},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			GraphTTL:     5 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHAOS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CHAOS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("CHAOS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHAOS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("CHAOS_CATALOG_PATH"); v != "" {
		cfg.Registry.CatalogPath = v
	}
	if v := os.Getenv("CHAOS_INJECTOR_ENABLED"); v != "" {
		cfg.Injector.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("CHAOS_MAX_CONCURRENT_FAULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Injector.MaxConcurrentFaults = n
		}
	}
	if v := os.Getenv("CHAOS_FAULT_PROBABILITY"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Injector.FaultProbability = p
		}
	}
	if v := os.Getenv("CHAOS_TARGETS"); v != "" {
		cfg.Injector.Targets = strings.Split(v, ",")
	}
	if v := os.Getenv("CHAOS_SIMULATOR_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulator.MaxDepth = n
		}
	}
	if v := os.Getenv("CHAOS_SIMULATOR_PROBABILITY"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulator.Probability = p
		}
	}
	if v := os.Getenv("CHAOS_RULES_PATH"); v != "" {
		cfg.Simulator.RulesPath = v
	}
	if v := os.Getenv("CHAOS_PROTECTED_TARGETS"); v != "" {
		cfg.Orchestrator.ProtectedTargets = strings.Split(v, ",")
	}
	if v := os.Getenv("CHAOS_GRAPH_URL"); v != "" {
		cfg.Graph.URL = v
	}
	if v := os.Getenv("CHAOS_GRAPH_FILE"); v != "" {
		cfg.Graph.FilePath = v
	}
	if v := os.Getenv("CHAOS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("CHAOS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("CHAOS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("CHAOS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("CHAOS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("CHAOS_CACHE_KEY_PREFIX"); v != "" {
		cfg.Cache.KeyPrefix = v
	}
	if v := os.Getenv("CHAOS_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("CHAOS_CACHE_GRAPH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.GraphTTL = d
		}
	}
}
