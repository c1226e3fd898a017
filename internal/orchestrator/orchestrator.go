package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/chaosmetrics"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Config bounds concurrent experiment execution and guards targets.
type Config struct {
	MaxConcurrentExperiments int
	MaxActiveFaults          int
	ProtectedTargets         []string
	HistoryLimit             int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExperiments: 3,
		MaxActiveFaults:          8,
		HistoryLimit:             200,
	}
}

// Orchestrator runs experiments and campaigns against the injector and
// simulator. All experiment state lives behind its mutex; RunExperiment
// blocks the caller until the experiment finishes.
type Orchestrator struct {
	mu        sync.Mutex
	logger    *slog.Logger
	cfg       Config
	injector  *injector.Injector
	simulator *simulator.Simulator
	store     *chaosmetrics.Store

	experiments map[string]*models.Experiment
	order       []string
	running     int
	cancels     map[string]context.CancelFunc

	campaigns      map[string]*models.Campaign
	campaignOrder  []string
	campaignTimers map[string]*time.Timer

	closeOnce sync.Once
}

// New constructs an Orchestrator.
func New(logger *slog.Logger, cfg Config, inj *injector.Injector, sim *simulator.Simulator, store *chaosmetrics.Store) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrentExperiments <= 0 {
		cfg.MaxConcurrentExperiments = def.MaxConcurrentExperiments
	}
	if cfg.MaxActiveFaults <= 0 {
		cfg.MaxActiveFaults = def.MaxActiveFaults
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	return &Orchestrator{
		logger:         logger,
		cfg:            cfg,
		injector:       inj,
		simulator:      sim,
		store:          store,
		experiments:    make(map[string]*models.Experiment),
		cancels:        make(map[string]context.CancelFunc),
		campaigns:      make(map[string]*models.Campaign),
		campaignTimers: make(map[string]*time.Timer),
	}
}

// RunExperiment validates, safety-checks, and executes an experiment
// synchronously. Dry runs evaluate validation and safety, record a synthetic
// result per step, and inject nothing. The returned experiment is a copy of
// the terminal state.
func (o *Orchestrator) RunExperiment(ctx context.Context, exp models.Experiment) (models.Experiment, error) {
	if err := validateExperiment(exp); err != nil {
		return models.Experiment{}, err
	}
	if err := o.safetyChecks(exp); err != nil {
		return models.Experiment{}, err
	}

	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	exp.Results = make(map[string]models.StepResult)
	exp.StartedAt = time.Now().UTC()

	if exp.DryRun {
		finished := time.Now().UTC()
		for _, step := range exp.Steps {
			exp.Results[step.ID] = models.StepResult{
				StepID:     step.ID,
				OK:         true,
				Values:     map[string]float64{"simulated": 1},
				FinishedAt: finished,
			}
		}
		exp.Status = models.StatusDryRunCompleted
		exp.EndedAt = &finished
		o.record(&exp)
		return exp, nil
	}

	o.mu.Lock()
	if o.running >= o.cfg.MaxConcurrentExperiments {
		o.mu.Unlock()
		return models.Experiment{}, fmt.Errorf("experiment %s: %w", exp.Name, utils.ErrMaxConcurrentExperiments)
	}
	o.running++
	runCtx, cancel := context.WithCancel(ctx)
	o.cancels[exp.ID] = cancel
	exp.Status = models.StatusRunning
	o.experiments[exp.ID] = &exp
	o.order = append(o.order, exp.ID)
	o.trimLocked()
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.running--
		delete(o.cancels, exp.ID)
		o.mu.Unlock()
	}()

	var executed []models.ExperimentStep
	failed := false
	for _, step := range exp.Steps {
		if runCtx.Err() != nil {
			break
		}
		result := o.runStep(runCtx, exp, step)
		executed = append(executed, step)
		o.mu.Lock()
		exp.Results[step.ID] = result
		o.mu.Unlock()
		if !result.OK {
			failed = true
			o.logger.Warn("experiment step failed",
				slog.String("experiment", exp.Name),
				slog.String("step", step.ID),
				slog.String("error", result.Error),
			)
			break
		}
	}

	stopped := runCtx.Err() != nil && ctx.Err() == nil

	o.mu.Lock()
	switch {
	case stopped:
		exp.Status = models.StatusStopped
	case failed || !o.criteriaMetLocked(&exp):
		exp.Status = models.StatusFailed
	default:
		exp.Status = models.StatusSucceeded
	}
	ended := time.Now().UTC()
	exp.EndedAt = &ended
	done := exp
	o.mu.Unlock()

	if done.Status != models.StatusSucceeded && exp.AutoRollback {
		o.rollback(executed, done)
	} else if done.Status == models.StatusStopped {
		// A stopped experiment must never strand faults, rollback or not.
		cleared := o.injector.ClearAll()
		o.logger.Info("stopped experiment faults cleared",
			slog.String("experiment", done.Name),
			slog.Int("faults_cleared", cleared),
		)
	}
	if o.store != nil {
		o.store.RecordExperiment(done)
	}
	o.logger.Info("experiment finished",
		slog.String("experiment", done.Name),
		slog.String("status", string(done.Status)),
	)
	return done, nil
}

// GetExperiment returns a copy of a stored experiment.
func (o *Orchestrator) GetExperiment(id string) (models.Experiment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	exp, ok := o.experiments[id]
	if !ok {
		return models.Experiment{}, fmt.Errorf("experiment %s: %w", id, utils.ErrExperimentNotFound)
	}
	return *exp, nil
}

// ListExperiments returns copies of stored experiments, oldest first.
func (o *Orchestrator) ListExperiments() []models.Experiment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Experiment, 0, len(o.order))
	for _, id := range o.order {
		if exp, ok := o.experiments[id]; ok {
			out = append(out, *exp)
		}
	}
	return out
}

// StopExperiment cancels a running experiment. Stopping one that already
// finished is a no-op; an unknown id is an error.
func (o *Orchestrator) StopExperiment(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.experiments[id]; !ok {
		return fmt.Errorf("experiment %s: %w", id, utils.ErrExperimentNotFound)
	}
	if cancel, running := o.cancels[id]; running {
		cancel()
	}
	return nil
}

// Close cancels running experiments and pending campaign timers.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, cancel := range o.cancels {
			cancel()
		}
		for id, timer := range o.campaignTimers {
			timer.Stop()
			delete(o.campaignTimers, id)
		}
	})
}

func (o *Orchestrator) record(exp *models.Experiment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.experiments[exp.ID] = exp
	o.order = append(o.order, exp.ID)
	o.trimLocked()
}

func (o *Orchestrator) trimLocked() {
	for len(o.order) > o.cfg.HistoryLimit {
		delete(o.experiments, o.order[0])
		o.order = o.order[1:]
	}
}

// criteriaMetLocked evaluates success criteria over the merged step values.
// With no criteria the experiment succeeds when every step passed.
func (o *Orchestrator) criteriaMetLocked(exp *models.Experiment) bool {
	if len(exp.SuccessCriteria) == 0 {
		for _, step := range exp.Steps {
			result, ran := exp.Results[step.ID]
			if !ran || !result.OK {
				return false
			}
		}
		return true
	}
	merged := make(map[string]float64)
	for _, step := range exp.Steps {
		if result, ran := exp.Results[step.ID]; ran {
			for key, value := range result.Values {
				merged[key] = value
			}
		}
	}
	for key, ceiling := range exp.SuccessCriteria {
		actual, present := merged[key]
		if !present || actual > ceiling {
			return false
		}
	}
	return true
}

// rollback executes compensating actions for the executed steps in reverse
// order, then clears any remaining faults. Rollback never fails the caller.
func (o *Orchestrator) rollback(executed []models.ExperimentStep, exp models.Experiment) {
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		result := exp.Results[step.ID]
		switch step.Rollback {
		case models.RollbackClearFaults, models.RollbackHealPartition:
			if result.FaultID != "" {
				if err := o.injector.Clear(result.FaultID); err != nil {
					o.logger.Debug("rollback clear skipped",
						slog.String("fault_id", result.FaultID),
						slog.Any("error", err),
					)
				}
			}
		case models.RollbackRestoreTraffic:
			o.logger.Info("traffic restored", slog.String("target", step.Target))
		}
	}
	cleared := o.injector.ClearAll()
	o.logger.Info("experiment rolled back",
		slog.String("experiment", exp.Name),
		slog.Int("faults_cleared", cleared),
	)
}
