package models

import "time"

// ExperimentStatus tracks the lifecycle of one experiment.
type ExperimentStatus string

const (
	StatusPending         ExperimentStatus = "pending"
	StatusRunning         ExperimentStatus = "running"
	StatusSucceeded       ExperimentStatus = "succeeded"
	StatusFailed          ExperimentStatus = "failed"
	StatusStopped         ExperimentStatus = "stopped"
	StatusDryRunCompleted ExperimentStatus = "dry_run_completed"
)

// StepAction enumerates the operations an experiment step can perform.
type StepAction string

const (
	ActionInjectFault        StepAction = "inject_fault"
	ActionCreatePartition    StepAction = "create_partition"
	ActionTriggerCascade     StepAction = "trigger_cascade"
	ActionVerifyRecovery     StepAction = "verify_recovery"
	ActionVerifyConsistency  StepAction = "verify_consistency"
	ActionMeasureBlastRadius StepAction = "measure_blast_radius"
)

// RollbackAction enumerates compensating actions for a failed experiment.
type RollbackAction string

const (
	RollbackNone           RollbackAction = ""
	RollbackClearFaults    RollbackAction = "clear_faults"
	RollbackHealPartition  RollbackAction = "heal_partition"
	RollbackRestoreTraffic RollbackAction = "restore_traffic"
)

// StepParams carries the typed knobs a step action understands.
type StepParams struct {
	FaultType   FaultType
	Severity    Severity
	Duration    time.Duration
	MaxDepth    int
	Probability float64
}

// StepResult records the raw outcome of one executed step.
type StepResult struct {
	StepID     string
	OK         bool
	Error      string
	Values     map[string]float64
	FaultID    string
	CascadeID  string
	FinishedAt time.Time
}

// ExperimentStep is one ordered action inside an experiment.
type ExperimentStep struct {
	ID       string
	Action   StepAction
	Target   string
	Params   StepParams
	Duration time.Duration
	Validate func(StepResult) bool
	Rollback RollbackAction
}

// Experiment is one ordered fault-injection test with success criteria.
type Experiment struct {
	ID              string
	Name            string
	Type            string
	Hypothesis      string
	Steps           []ExperimentStep
	SuccessCriteria map[string]float64
	DryRun          bool
	AutoRollback    bool
	Status          ExperimentStatus
	Results         map[string]StepResult
	StartedAt       time.Time
	EndedAt         *time.Time
}

// CampaignStatus tracks the lifecycle of a campaign.
type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignScheduled CampaignStatus = "scheduled"
)

// Schedule controls one-shot or recurring campaign execution.
type Schedule struct {
	Interval  time.Duration
	Recurring bool
}

// ExperimentOutcome captures one experiment result inside a campaign run.
type ExperimentOutcome struct {
	ExperimentID string
	Name         string
	Status       ExperimentStatus
	Error        string
}

// Campaign is a scheduled or sequenced group of experiments.
type Campaign struct {
	ID          string
	Name        string
	Experiments []Experiment
	Schedule    *Schedule
	Status      CampaignStatus
	Results     []ExperimentOutcome
	StartedAt   time.Time
	EndedAt     *time.Time
}
