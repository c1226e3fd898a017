package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// defaultCampaignInterval applies when a schedule omits one.
const defaultCampaignInterval = time.Hour

// RunCampaign executes a campaign's experiments sequentially. Individual
// experiment failures are captured in the campaign results, never propagated;
// only context cancellation aborts the run.
func (o *Orchestrator) RunCampaign(ctx context.Context, campaign models.Campaign) (models.Campaign, error) {
	if campaign.Name == "" {
		return models.Campaign{}, &utils.ValidationError{Field: "name", Msg: "campaign name is required"}
	}
	if len(campaign.Experiments) == 0 {
		return models.Campaign{}, &utils.ValidationError{Field: "experiments", Msg: "campaign has no experiments"}
	}
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	campaign.Status = models.CampaignRunning
	campaign.StartedAt = time.Now().UTC()
	campaign.Results = campaign.Results[:0]

	for _, exp := range campaign.Experiments {
		if err := ctx.Err(); err != nil {
			return campaign, err
		}
		outcome := models.ExperimentOutcome{Name: exp.Name}
		done, err := o.RunExperiment(ctx, exp)
		if err != nil {
			outcome.Status = models.StatusFailed
			outcome.Error = err.Error()
		} else {
			outcome.ExperimentID = done.ID
			outcome.Status = done.Status
		}
		campaign.Results = append(campaign.Results, outcome)
	}

	campaign.Status = models.CampaignCompleted
	ended := time.Now().UTC()
	campaign.EndedAt = &ended

	o.mu.Lock()
	stored := campaign
	o.campaigns[campaign.ID] = &stored
	o.campaignOrder = append(o.campaignOrder, campaign.ID)
	for len(o.campaignOrder) > o.cfg.HistoryLimit {
		delete(o.campaigns, o.campaignOrder[0])
		o.campaignOrder = o.campaignOrder[1:]
	}
	o.mu.Unlock()

	o.logger.Info("campaign finished",
		slog.String("campaign", campaign.Name),
		slog.Int("experiments", len(campaign.Results)),
	)
	return campaign, nil
}

// ScheduleCampaign arms a campaign to run after its schedule interval.
// Recurring schedules re-arm after every run, including failed ones.
// The returned id cancels the schedule via StopCampaign.
func (o *Orchestrator) ScheduleCampaign(campaign models.Campaign) (string, error) {
	if campaign.Name == "" {
		return "", &utils.ValidationError{Field: "name", Msg: "campaign name is required"}
	}
	if len(campaign.Experiments) == 0 {
		return "", &utils.ValidationError{Field: "experiments", Msg: "campaign has no experiments"}
	}
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	interval := defaultCampaignInterval
	recurring := false
	if campaign.Schedule != nil {
		if campaign.Schedule.Interval > 0 {
			interval = campaign.Schedule.Interval
		}
		recurring = campaign.Schedule.Recurring
	}
	campaign.Status = models.CampaignScheduled

	o.mu.Lock()
	stored := campaign
	o.campaigns[campaign.ID] = &stored
	o.campaignOrder = append(o.campaignOrder, campaign.ID)
	o.mu.Unlock()

	o.armCampaign(campaign.ID, interval, recurring)
	return campaign.ID, nil
}

func (o *Orchestrator) armCampaign(id string, interval time.Duration, recurring bool) {
	timer := time.AfterFunc(interval, func() {
		o.mu.Lock()
		stored, ok := o.campaigns[id]
		if !ok {
			o.mu.Unlock()
			return
		}
		run := *stored
		o.mu.Unlock()

		if _, err := o.RunCampaign(context.Background(), run); err != nil {
			o.logger.Warn("scheduled campaign failed",
				slog.String("campaign", run.Name),
				slog.Any("error", err),
			)
		}
		if recurring {
			o.armCampaign(id, interval, recurring)
		} else {
			o.mu.Lock()
			delete(o.campaignTimers, id)
			o.mu.Unlock()
		}
	})

	o.mu.Lock()
	if old, ok := o.campaignTimers[id]; ok {
		old.Stop()
	}
	o.campaignTimers[id] = timer
	o.mu.Unlock()
}

// StopCampaign cancels a scheduled campaign. Stopping an unscheduled or
// already-fired campaign is a no-op.
func (o *Orchestrator) StopCampaign(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if timer, ok := o.campaignTimers[id]; ok {
		timer.Stop()
		delete(o.campaignTimers, id)
	}
}

// GetCampaign returns a copy of a stored campaign.
func (o *Orchestrator) GetCampaign(id string) (models.Campaign, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	campaign, ok := o.campaigns[id]
	if !ok {
		return models.Campaign{}, fmt.Errorf("campaign %s: %w", id, utils.ErrExperimentNotFound)
	}
	return *campaign, nil
}
