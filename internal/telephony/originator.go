package telephony

import (
	"context"
	"time"

	"github.com/rapidaai/dialer/internal/dispatcher"
	"github.com/rapidaai/dialer/internal/domain"
)

// RetryScheduler is the narrow dispatcher surface CampaignOriginator needs
// to resolve a dial's terminal outcome, kept separate so this package
// doesn't depend on dispatcher's lead-selection machinery.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, lead *domain.Lead, campaign *domain.Campaign, outcome dispatcher.Outcome) error
}

// CampaignOriginator implements scheduler.Originator by turning each
// selected lead into a new CallTask and dialing it through Service.
// A per-lead failure is logged and skipped rather than aborting the
// rest of the batch, since one bad number shouldn't stall a tick.
type CampaignOriginator struct {
	service *Service
	retry   RetryScheduler
}

func NewCampaignOriginator(service *Service, retry RetryScheduler) *CampaignOriginator {
	return &CampaignOriginator{service: service, retry: retry}
}

func (o *CampaignOriginator) PlaceCalls(ctx context.Context, campaign *domain.Campaign, leads []*domain.Lead) error {
	for _, lead := range leads {
		lead := lead
		task := &domain.CallTask{
			LeadID:     lead.ID,
			CampaignID: campaign.ID,
			State:      domain.CallStatePending,
			Phone:      lead.Phone,
			QueuedAt:   time.Now(),
		}
		if err := o.service.Dial(ctx, task, lead.Phone, "", campaign.EnableAMD); err != nil {
			o.service.logger.Warnf("originator: dial failed for lead %d: %v", lead.ID, err)
			continue
		}
		if o.retry != nil {
			o.service.WatchOutcome(task, func(t *domain.CallTask) {
				if err := o.retry.ScheduleRetry(context.Background(), lead, campaign, outcomeForTask(t)); err != nil {
					o.service.logger.Errorf("originator: schedule retry failed for lead %d: %v", lead.ID, err)
				}
			})
		}
	}
	return nil
}

// outcomeForTask maps a terminal CallTask to the dispatcher.Outcome its
// lead's retry should be scheduled under. An AMD machine verdict always
// wins over the raw terminal state, since a detected machine is a contact
// outcome regardless of which PBX event ultimately tore the channel down.
func outcomeForTask(t *domain.CallTask) dispatcher.Outcome {
	if t.AMDVerdict == domain.AMDMachine {
		return dispatcher.OutcomeMachine
	}
	switch t.State {
	case domain.CallStateNoAnswer:
		return dispatcher.OutcomeNoAnswer
	case domain.CallStateBusy:
		return dispatcher.OutcomeBusy
	case domain.CallStateFailed, domain.CallStateInvalid:
		return dispatcher.OutcomeInvalid
	case domain.CallStateAbandoned:
		return dispatcher.OutcomeNoAnswer
	default:
		return dispatcher.OutcomeAnswered
	}
}
